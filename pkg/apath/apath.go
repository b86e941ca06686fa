// Package apath implements the total order on archive paths described in
// spec.md §3: a dedicated comparator used identically by the backup
// pipeline, the stitcher, and the validator so hunk and band ordering is
// reproducible regardless of filesystem iteration order.
package apath

import "strings"

// Compare returns -1, 0, or 1 according to the apath total order: compare
// parent-directory byte strings first; if equal, compare final path
// components. This guarantees every directory's entries are contiguous and
// that the order is independent of locale or filesystem iteration order.
//
// Both a and b must be forward-slash, root-relative paths beginning with
// "/" and containing no "." or ".." components; callers are responsible
// for normalizing before calling Compare (see Validate).
func Compare(a, b string) int {
	if a == b {
		return 0
	}

	aParent, aName := split(a)
	bParent, bName := split(b)

	if aParent != bParent {
		return strings.Compare(aParent, bParent)
	}
	return strings.Compare(aName, bName)
}

// Less reports whether a strictly precedes b in apath order.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// split divides an apath into its parent directory and final component.
// split("/") == ("", "/"); split("/a/b") == ("/a", "b").
func split(p string) (parent, name string) {
	if p == "/" {
		return "", "/"
	}
	idx := strings.LastIndexByte(p, '/')
	if idx <= 0 {
		return "/", p[idx+1:]
	}
	return p[:idx], p[idx+1:]
}

// Validate reports whether p is a well-formed apath: slash-rooted,
// containing no empty, "." or ".." components, and no trailing slash
// (except the root "/" itself).
func Validate(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	if p == "/" {
		return true
	}
	if strings.HasSuffix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p[1:], "/") {
		switch seg {
		case "", ".", "..":
			return false
		}
	}
	return true
}

// Parent returns the parent apath of p, or "" if p is the root.
func Parent(p string) string {
	parent, _ := split(p)
	return parent
}

// Join appends name as a child component of parent, which must already be
// a valid apath.
func Join(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// IsAscending reports whether paths is strictly ascending in apath order
// with no duplicates, as required of every band's hunks (spec.md invariant 2).
func IsAscending(paths []string) bool {
	for i := 1; i < len(paths); i++ {
		if Compare(paths[i-1], paths[i]) >= 0 {
			return false
		}
	}
	return true
}
