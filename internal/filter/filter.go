// Package filter decides which relative paths are excluded from
// synchronization. Two layers apply: built-in control excludes (trash
// subtree, deletion markers, state files) that keep the sync machinery
// from feeding on itself, and user glob patterns loaded from the filter
// file. The same filter file is handed to rsync via --exclude-from so
// the local enumeration and the transfer agree on what exists.
package filter

import (
	"bufio"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/xsoft-dev/rsyncx/internal/marker"
	"github.com/xsoft-dev/rsyncx/internal/trash"
)

var controlLines = []string{
	trash.Dir + "/",
	"*" + marker.Suffix,
	".rsyncx_*",
}

// ControlExcludes returns the exclude patterns every bulk transfer must
// carry: the trash subtree, marker files and control metadata.
func ControlExcludes() []string {
	return []string{
		trash.Dir + "/",
		"*" + marker.Suffix,
		".rsyncx_*.json",
	}
}

// RuleSet matches relative paths against control excludes and the user
// filter file.
type RuleSet struct {
	control  *gitignore.GitIgnore
	patterns []string
}

// Load compiles the control excludes and reads the user filter file.
// A missing filter file is not an error.
func Load(filterFile string) (*RuleSet, error) {
	rs := &RuleSet{
		control: gitignore.CompileIgnoreLines(controlLines...),
	}

	if filterFile == "" {
		return rs, nil
	}

	f, err := os.Open(filterFile)
	if err != nil {
		if os.IsNotExist(err) {
			return rs, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rs.patterns = append(rs.patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return rs, nil
}

// ShouldExclude reports whether the slash-normalized relative path is
// excluded from the live tree.
func (r *RuleSet) ShouldExclude(relPath string) bool {
	if r.control.MatchesPath(relPath) {
		return true
	}

	for _, pattern := range r.patterns {
		if matchPattern(pattern, relPath) {
			return true
		}
	}
	return false
}

// matchPattern applies one glob pattern the way rsync excludes behave:
// a pattern without a slash matches any path segment; a trailing slash
// marks a directory pattern matching the whole subtree.
func matchPattern(pattern, relPath string) bool {
	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" {
		return false
	}

	candidates := []string{pattern, pattern + "/**"}
	if !strings.Contains(pattern, "/") {
		candidates = append(candidates, "**/"+pattern, "**/"+pattern+"/**")
	}

	for _, c := range candidates {
		if ok, err := doublestar.Match(c, relPath); err == nil && ok {
			return true
		}
	}
	return false
}
