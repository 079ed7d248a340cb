// Package trash implements the versioned _papelera subtree: everything
// removed from a live tree is retained there until an explicit purge.
package trash

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xsoft-dev/rsyncx/internal/utils"
)

// Dir is the trash subtree name inside every synced root, local and remote.
const Dir = "_papelera"

// Manager moves files into a root's trash subtree with collision-safe
// renaming.
type Manager struct {
	now func() time.Time
}

func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// MoveToTrash moves each existing relative path under root into the
// trash subtree, renamed with a timestamp suffix. Missing sources are
// silent no-ops (already reconciled). Returns the number of entries
// actually moved.
func (m *Manager) MoveToTrash(root string, relPaths []string) int {
	moved := 0
	for _, rel := range relPaths {
		src := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(src)
		if err != nil || info.IsDir() {
			continue
		}

		dst := m.trashDest(root, rel)
		if err := utils.EnsureParent(dst); err != nil {
			slog.Warn("trash dir create failed", "path", dst, "error", err)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			slog.Warn("trash move failed", "src", src, "dst", dst, "error", err)
			continue
		}
		moved++
	}
	return moved
}

// trashDest builds _papelera/<parent>/<stem>_<YYYYMMDD_HHMMSS><ext>,
// appending a counter when the destination already exists so two moves
// within the same second still get distinct entries.
func (m *Manager) trashDest(root, rel string) string {
	ts := m.now().Format("20060102_150405")
	dir := filepath.Join(root, Dir, filepath.Dir(filepath.FromSlash(rel)))
	base := filepath.Base(rel)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	dst := filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, ts, ext))
	for i := 1; utils.FileExists(dst); i++ {
		dst = filepath.Join(dir, fmt.Sprintf("%s_%s_%d%s", stem, ts, i, ext))
	}
	return dst
}

// PurgeLocal empties a root's trash subtree, leaving it present but empty.
func PurgeLocal(root string) error {
	trashRoot := filepath.Join(root, Dir)
	if err := os.RemoveAll(trashRoot); err != nil {
		return fmt.Errorf("purge %s: %w", trashRoot, err)
	}
	return utils.EnsureDir(trashRoot)
}
