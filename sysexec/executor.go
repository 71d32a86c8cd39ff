// Package sysexec provides the single port through which the rest of
// ramboot talks to external binaries (lsblk, zpool, mdadm, mount, ...).
// Every stage of the boot pipeline depends on this interface rather than
// on os/exec directly, so the whole pipeline can be driven by a recorded
// MockExecutor in tests without spawning a single real process.
package sysexec

import (
	"context"
	"errors"
	"fmt"
)

// ErrToolMissing is returned when the named binary cannot be resolved on
// PATH. Callers in best-effort stages (activation, device hiding) treat
// this as "this kind of device/service simply isn't present" rather than
// a fatal error; callers in the destructive path (format, mount, pivot)
// treat it as fatal.
var ErrToolMissing = errors.New("sysexec: tool not found")

// Executor is an interface for running external commands.
type Executor interface {
	// Run executes a command and returns an error if it fails.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a command and returns its standard output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// CombinedOutput executes a command and returns its combined stdout and stderr.
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

// IsToolMissing reports whether err represents an unresolved binary.
func IsToolMissing(err error) bool {
	return errors.Is(err, ErrToolMissing)
}

func missingToolErr(name string) error {
	return fmt.Errorf("%w: %s", ErrToolMissing, name)
}
