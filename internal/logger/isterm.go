package logger

import "golang.org/x/term"

// isTerminal reports whether fd refers to a terminal, gating whether the
// color text handler emits ANSI escapes (e.g. session/SPID highlighting)
// or plain text suited to a log file or pipe.
func isTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
