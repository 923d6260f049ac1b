package tty

import (
	"os"

	"golang.org/x/term"
)

// RawStdin puts the host's stdin into raw mode for the duration of the
// bridge (disabling line buffering and local echo so every byte reaches
// vtty_push immediately), returning a restore function.
func RawStdin() (restore func(), err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, oldState) }, nil
}
