package logger

import "golang.org/x/term"

// isTerminal reports whether fd refers to a terminal, used to decide
// whether colored output is appropriate.
func isTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
