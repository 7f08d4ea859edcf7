package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes external commands. All pipeline steps go through a
// Runner so tests can substitute a fake and record invocations.
type Runner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// CombinedOutput runs the command with stdin attached and returns its
	// interleaved stdout and stderr. Some tools print their confirmation
	// lines on stderr, so callers that scrape output want both.
	CombinedOutput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
	// Run runs the command, discarding stdout.
	Run(ctx context.Context, name string, args ...string) error
	// Stream runs the command with stdout connected to w. Used for
	// commands whose stdout is a data stream rather than text.
	Stream(ctx context.Context, w io.Writer, name string, args ...string) error
}

// New returns a Runner backed by os/exec.
func New() Runner {
	return execRunner{}
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return run(ctx, nil, name, args)
}

func (execRunner) CombinedOutput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), commandError(ctx, cmd, err, out.Bytes())
	}
	return out.Bytes(), nil
}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := run(ctx, nil, name, args)
	return err
}

func (execRunner) Stream(ctx context.Context, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError(ctx, cmd, err, stderr.Bytes())
	}
	return nil
}

func run(ctx context.Context, stdin io.Reader, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), commandError(ctx, cmd, err, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}

// commandError wraps a command failure with enough of its stderr to
// diagnose it. Context cancellation takes precedence so callers can
// match against context.Canceled / DeadlineExceeded.
func commandError(ctx context.Context, cmd *exec.Cmd, err error, stderr []byte) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return fmt.Errorf("%s: %w", cmd.Args[0], err)
	}
	return fmt.Errorf("%s: %w: %s", cmd.Args[0], err, msg)
}
