package sandbox

import (
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// runWithTTY starts cmd attached to a pseudo-terminal and relays bytes
// between it and the host terminal, putting the host terminal into raw mode
// for the duration (spec §6 "tty — allocate a pseudo-terminal for the
// agent").
func runWithTTY(cmd *exec.Cmd) (int, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return -1, runtimeError(err, "failed to allocate a pseudo-terminal")
	}
	defer ptmx.Close()

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		prevState, err := term.MakeRaw(stdinFd)
		if err == nil {
			defer term.Restore(stdinFd, prevState)
		}
	}

	resize := make(chan os.Signal, 1)
	signal.Notify(resize, syscall.SIGWINCH)
	defer signal.Stop(resize)
	go func() {
		for range resize {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	resize <- syscall.SIGWINCH // sync terminal size on attach

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	doneCopy := make(chan struct{})
	go func() {
		_, _ = io.Copy(os.Stdout, ptmx)
		close(doneCopy)
	}()

	err = cmd.Wait()
	<-doneCopy

	if err == nil {
		return 0, nil
	}
	if code, ok := asExitError(err); ok {
		return code, nil
	}
	return -1, runtimeError(err, "agent process exited abnormally")
}
