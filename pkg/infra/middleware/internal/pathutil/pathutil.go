// Package pathutil matches request paths against skip lists.
package pathutil

import "strings"

// NewPathMatcher returns a matcher reporting whether a path equals one of
// paths or starts with one of prefixes. Empty inputs yield a matcher that
// never matches.
func NewPathMatcher(paths, prefixes []string) func(string) bool {
	if len(paths) == 0 && len(prefixes) == 0 {
		return func(string) bool { return false }
	}

	exact := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		exact[p] = struct{}{}
	}
	prefixList := append([]string(nil), prefixes...)

	return func(path string) bool {
		if _, ok := exact[path]; ok {
			return true
		}
		for _, prefix := range prefixList {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}
}
