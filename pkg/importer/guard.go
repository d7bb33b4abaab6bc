package importer

import "strings"

// disruptivePatterns is the fixed, case-insensitive rejection list the
// status_command read-only exec path checks against (spec.md §6 /
// SUPPLEMENTED FEATURES, grounded on the original backend's main.py guard).
var disruptivePatterns = []string{
	"configure",
	"conf t",
	"reload",
	"write erase",
	"erase",
	"format",
	"delete",
	"no ",
}

// CheckDisruptive reports whether any command in cmds matches a disruptive
// pattern, returning the first offending command and the pattern it matched,
// so status_command callers can reject the whole batch up front.
func CheckDisruptive(cmds []string) (offending string, pattern string, disruptive bool) {
	for _, cmd := range cmds {
		lower := strings.ToLower(cmd)
		for _, p := range disruptivePatterns {
			if strings.Contains(lower, p) {
				return cmd, p, true
			}
		}
	}

	return "", "", false
}
