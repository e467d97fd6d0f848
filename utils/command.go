package utils

import "strings"

// SplitExecutable splits a Windows command line into its executable and the
// remaining argument string. A leading quoted path is taken verbatim; an
// unquoted command is split after the first ".exe" token. ok is false when no
// executable token can be recognized. An unterminated quote yields the whole
// string as the executable.
func SplitExecutable(cmdline string) (exe, args string, ok bool) {
	s := strings.TrimSpace(cmdline)
	if s == "" {
		return "", "", false
	}
	if s[0] == '"' {
		end := strings.IndexByte(s[1:], '"')
		if end < 0 {
			return strings.TrimSpace(s[1:]), "", true
		}
		exe = strings.TrimSpace(s[1 : end+1])
		if exe == "" {
			return "", "", false
		}
		return exe, strings.TrimSpace(s[end+2:]), true
	}
	lower := strings.ToLower(s)
	from := 0
	for {
		i := strings.Index(lower[from:], ".exe")
		if i < 0 {
			return "", "", false
		}
		cut := from + i + len(".exe")
		if cut == len(s) || s[cut] == ' ' || s[cut] == '\t' || s[cut] == '"' {
			return s[:cut], strings.TrimSpace(s[cut:]), true
		}
		from = cut
	}
}
