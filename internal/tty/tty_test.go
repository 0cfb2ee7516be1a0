// Package tty_test exercises the REPL console.
//
// These tests are skipped when stdin is not a terminal (ErrNoTTY). Notably,
// this includes when run with "go test" because it redirects tests'
// standard input/output streams. You can test it by building a test binary
// and running it directly:
//
//	$ go test -c && ./tty.test
package tty_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kestrelcore/memhier/internal/tty"
)

const timeout = 100 * time.Millisecond

func TestConsoleReadCommand(t *testing.T) {
	ctx, cancel := context.WithTimeoutCause(context.Background(), timeout, context.DeadlineExceeded)
	defer cancel()

	ctx, console, cancel := tty.ConsoleContext(ctx)
	defer cancel()

	if err := context.Cause(ctx); errors.Is(err, tty.ErrNoTTY) {
		t.Skipf("error: %s", context.Cause(ctx))
	}

	if err := console.WriteLine("ready"); err != nil {
		t.Errorf("WriteLine: %s", err)
	}

	_, err := console.ReadCommand(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadCommand: %s", err)
	}
}
