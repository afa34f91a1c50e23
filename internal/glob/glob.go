// Package glob matches cue names against shell-style patterns (*, ?,
// [set]) applied to the whole string.
//
// This is built on gobwas/glob rather than the standard library's
// path.Match/filepath.Match: those stdlib matchers special-case '/' as a
// path separator that '*' and '?' cannot cross, which is a filesystem-path
// semantic, not the fnmatch-style whole-string semantic the wire contract
// calls for. Cue names have an unrestricted charset and may contain '/',
// so a pattern like "*" or "*.done" must match a name like
// "build/release.done" - path.Match silently refuses to, which would
// break fan-out for any such name. gobwas/glob compiles a pattern with no
// separator argument, giving true whole-string matching.
package glob

import "github.com/gobwas/glob"

// Match reports whether name matches pattern under shell-glob semantics,
// with no path-separator carve-out. A malformed pattern is treated as no
// match.
func Match(name, pattern string) bool {
	g, err := glob.Compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(name)
}

// MatchAny reports whether name matches any of patterns.
func MatchAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if Match(name, p) {
			return true
		}
	}
	return false
}
