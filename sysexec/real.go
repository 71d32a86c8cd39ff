package sysexec

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
)

// RealExecutor executes real system commands using os/exec.
type RealExecutor struct{}

// NewExecutor creates a new real command executor.
func NewExecutor() *RealExecutor {
	return &RealExecutor{}
}

// resolve checks whether name can be found before spawning it, so callers
// can distinguish "tool not installed" from "tool ran and failed" the way
// spec.md's external-tool invocation rules require.
func resolve(name string) error {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return missingToolErr(name)
			}
			return err
		}
		return nil
	}
	if _, err := exec.LookPath(name); err != nil {
		return missingToolErr(name)
	}
	return nil
}

// Run executes a command and returns an error if it fails.
func (e *RealExecutor) Run(ctx context.Context, name string, args ...string) error {
	if err := resolve(name); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run()
}

// Output executes a command and returns its standard output.
func (e *RealExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := resolve(name); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// CombinedOutput executes a command and returns its combined stdout and stderr.
func (e *RealExecutor) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := resolve(name); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
