package engine

import (
	"io/fs"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/xsoft-dev/rsyncx/internal/state"
	"github.com/xsoft-dev/rsyncx/internal/trash"
	"github.com/xsoft-dev/rsyncx/internal/utils"
)

// localFiles enumerates the live relative paths under root, excluding
// the trash subtree and everything the filter rules reject. Paths are
// slash-normalized and sorted. A missing root yields an empty set.
func (e *Engine) localFiles(root string) ([]string, error) {
	if !utils.DirExists(root) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && d.Name() == trash.Dir {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = utils.NormPath(rel)
		if e.rules.ShouldExclude(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// deletedSince returns the paths present in the prior snapshot but
// missing from the current enumeration. Without a prior snapshot there
// is nothing to compare against, so nothing counts as deleted.
func deletedSince(prev *state.Snapshot, cur []string) []string {
	if prev == nil || len(prev.Files) == 0 {
		return nil
	}

	prevSet := mapset.NewSet(prev.Files...)
	curSet := mapset.NewSet(cur...)

	deleted := prevSet.Difference(curSet).ToSlice()
	sort.Strings(deleted)
	return deleted
}
