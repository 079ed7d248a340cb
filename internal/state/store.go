package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/xsoft-dev/rsyncx/internal/utils"
)

// Snapshot is the set of live relative paths observed under a group's
// local root at the end of the previous push or pull.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Files     []string  `json:"files"`
}

// DeletionEntry records what the local side believed was deleted at a
// point in time. Entries are append-only.
type DeletionEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Deleted   []string  `json:"deleted"`
}

// Store persists per-group snapshots and deletion logs as JSON files
// keyed by the group's safe ID. Pure local storage, no network.
type Store struct {
	stateDir   string
	deletedDir string
}

func NewStore(stateDir, deletedDir string) (*Store, error) {
	for _, dir := range []string{stateDir, deletedDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", dir, err)
		}
	}
	return &Store{stateDir: stateDir, deletedDir: deletedDir}, nil
}

func (s *Store) snapshotPath(groupID string) string {
	return filepath.Join(s.stateDir, groupID+".json")
}

func (s *Store) deletionLogPath(groupID string) string {
	return filepath.Join(s.deletedDir, groupID+".json")
}

// LockPath is the flock target guarding one group's operations.
func (s *Store) LockPath(groupID string) string {
	return filepath.Join(s.stateDir, groupID+".lock")
}

// LoadSnapshot returns the stored snapshot, or nil when the group has
// never been synced. A corrupt snapshot file is treated as absent; the
// next sync rebuilds it.
func (s *Store) LoadSnapshot(groupID string) (*Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(groupID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot for %s: %w", groupID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil
	}
	return &snap, nil
}

// SaveSnapshot overwrites the group's snapshot atomically (temp file +
// rename) with a sorted copy of files.
func (s *Store) SaveSnapshot(groupID string, files []string) error {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	snap := Snapshot{
		Timestamp: time.Now(),
		Files:     sorted,
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", groupID, err)
	}

	return writeAtomic(s.snapshotPath(groupID), data)
}

// AppendDeletions adds one timestamped entry to the group's deletion log.
// Existing entries are never rewritten.
func (s *Store) AppendDeletions(groupID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	history, err := s.Deletions(groupID)
	if err != nil {
		return err
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	history = append(history, DeletionEntry{
		Timestamp: time.Now(),
		Deleted:   sorted,
	})

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deletion log for %s: %w", groupID, err)
	}

	return writeAtomic(s.deletionLogPath(groupID), data)
}

// Deletions returns the group's full deletion history, oldest first.
func (s *Store) Deletions(groupID string) ([]DeletionEntry, error) {
	data, err := os.ReadFile(s.deletionLogPath(groupID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read deletion log for %s: %w", groupID, err)
	}

	var history []DeletionEntry
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, nil
	}
	return history, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
