package utils

import (
	"strings"
)

// NormalizeWindowsPath lower-cases a Windows path, unifies separators, strips
// surrounding quotes and collapses repeated separators. It does not touch the
// filesystem so it behaves the same on every platform.
func NormalizeWindowsPath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.Trim(p, `"`)
	p = strings.ReplaceAll(p, "/", `\`)
	for strings.Contains(p, `\\`) {
		p = strings.ReplaceAll(p, `\\`, `\`)
	}
	return strings.ToLower(p)
}

// IsWindowsPathWithin returns true if path equals root or lies below it.
// The comparison ends on a separator boundary, so C:\Windows2 is not within
// C:\Windows.
func IsWindowsPathWithin(path, root string) bool {
	p := NormalizeWindowsPath(path)
	r := strings.TrimSuffix(NormalizeWindowsPath(root), `\`)
	if p == "" || r == "" {
		return false
	}
	if p == r {
		return true
	}
	return strings.HasPrefix(p, r+`\`)
}

// IsWindowsPathWithinAny returns true if path lies within any of the roots.
func IsWindowsPathWithinAny(path string, roots []string) bool {
	for _, root := range roots {
		if IsWindowsPathWithin(path, root) {
			return true
		}
	}
	return false
}
