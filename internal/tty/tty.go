// Package tty provides a line-oriented REPL console over a Unix terminal.
package tty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console is a serial console for the `repl` CLI command, built on Unix
// terminal I/O[^1]. It puts the terminal into raw mode and uses
// golang.org/x/term's line editor to read commands and print results.
//
// [1]: See: tty(4), termios(4).
type Console struct {
	in    *os.File
	out   *term.Terminal
	fd    int
	state *term.State

	cmdCh chan string
}

// ErrNoTTY is returned if standard input is not a terminal. In this case,
// asynchronous command reading is not supported by the console.
var ErrNoTTY error = errors.New("console: not a TTY")

// ConsoleContext creates a Console context reading from the standard
// streams. Calling cancel restores the terminal state and stops the
// background command reader.
func ConsoleContext(parent context.Context) (context.Context, *Console, context.CancelFunc) {
	ctx, cause := context.WithCancelCause(parent)

	console, err := NewConsole(os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		cause(err)

		return ctx, console, func() { cause(err) }
	}

	go console.readCommands(ctx, cause)

	return ctx, console, console.Restore
}

// NewConsole creates a Console using the provided streams. If the input
// stream is not a terminal, ErrNoTTY is returned. Callers are responsible
// for calling [Console.Restore] to return the terminal to its initial
// state.
func NewConsole(sin, sout, serr *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	cons := Console{
		fd:    fd,
		in:    sin,
		out:   term.NewTerminal(sin, "memhier> "),
		state: saved,
		cmdCh: make(chan string, 1),
	}

	if err := cons.setTerminalParams(1, 0); err != nil {
		return nil, err
	}

	return &cons, nil
}

// Writer returns an io.Writer that writes to the terminal, for output that
// doesn't go through WriteLine (e.g. a hex dump).
func (c *Console) Writer() io.Writer {
	return c.out
}

// WriteLine writes a formatted line, followed by a newline, to the
// terminal.
func (c *Console) WriteLine(format string, args ...any) error {
	_, err := fmt.Fprintf(c.out, format+"\n", args...)
	return err
}

// ReadCommand returns the next line read from the terminal, blocking until
// one arrives or ctx is cancelled.
func (c *Console) ReadCommand(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", context.Cause(ctx)
	case line := <-c.cmdCh:
		return line, nil
	}
}

// Restore returns the terminal to its initial state and unblocks any
// in-progress read.
func (c *Console) Restore() {
	_ = os.Stdin.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(c.fd, true)

	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO); err != nil {
		return err
	}

	_ = os.Stdin.SetReadDeadline(time.Time{})

	return nil
}

// readCommands reads lines from the terminal and writes them to the command
// channel until the context is cancelled. If the line editor returns an
// error (including on EOF / ^D), the cancel cause is set.
func (c *Console) readCommands(ctx context.Context, cancel context.CancelCauseFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.out.ReadLine()
		if err != nil {
			cancel(err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case c.cmdCh <- line:
		}
	}
}
