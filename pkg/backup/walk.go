package backup

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marmos91/conserve/pkg/apath"
)

// sourceEntry describes one filesystem entry discovered while walking the
// source tree, carrying enough to decide incremental reuse without a
// second stat.
type sourceEntry struct {
	Apath   string
	AbsPath string
	Info    fs.FileInfo
	IsDir   bool
	IsLink  bool
}

// matcher decides whether a discovered apath should be skipped, built
// from the backup options' glob exclude patterns.
type matcher struct {
	excludes []string
}

func newMatcher(excludes []string) *matcher {
	return &matcher{excludes: excludes}
}

func (m *matcher) excluded(p string) bool {
	base := filepath.Base(p)
	for _, pat := range m.excludes {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, p); ok {
			return true
		}
	}
	return false
}

// walkSource walks root and returns its entries sorted into apath order,
// the order the backup pipeline and the band writer both require.
// filepath.WalkDir is depth-first and not apath order, so entries are
// collected first and sorted afterward, mirroring the way the teacher's
// own filesystem block store walks then filters rather than assuming
// directory iteration order (pkg/payload/store/fs).
func walkSource(root string, excludes []string) ([]sourceEntry, []error) {
	m := newMatcher(excludes)
	var entries []sourceEntry
	var failures []error

	root = filepath.Clean(root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			failures = append(failures, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel := strings.TrimPrefix(path, root)
		rel = filepath.ToSlash(rel)
		if rel == "" {
			rel = "/"
		} else if !strings.HasPrefix(rel, "/") {
			rel = "/" + rel
		}

		if rel != "/" && m.excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			failures = append(failures, err)
			return nil
		}

		entries = append(entries, sourceEntry{
			Apath:   rel,
			AbsPath: path,
			Info:    info,
			IsDir:   d.IsDir(),
			IsLink:  info.Mode()&fs.ModeSymlink != 0,
		})
		return nil
	})
	if err != nil {
		failures = append(failures, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return apath.Less(entries[i].Apath, entries[j].Apath)
	})

	return entries, failures
}
