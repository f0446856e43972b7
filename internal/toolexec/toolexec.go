// Package toolexec runs the external build tools (compilers, linters,
// minifiers, test runners) that project tasks delegate to.
package toolexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"github.com/kballard/go-shellquote"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/logging"
)

// Runner executes configured tools.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Env    []string
	Logger *logging.Logger
	DryRun bool
}

// Command returns the argv for tool, with targets replacing the configured
// targets when non-empty.
func Command(tool config.ToolConfig, targets []string) ([]string, error) {
	argv, err := shellquote.Split(tool.Command)
	if err != nil {
		return nil, errors.NewValidationError("invalid tool command").
			WithValue(tool.Command).WithCause(err)
	}
	if len(argv) == 0 {
		return nil, nil
	}
	if len(targets) == 0 {
		targets = tool.Targets
	}
	return append(argv, targets...), nil
}

// Run runs the tool called name. A tool with an empty command is skipped.
func (r *Runner) Run(ctx context.Context, name string, tool config.ToolConfig, targets []string) error {
	log := r.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	log = log.With("tool", name)

	argv, err := Command(tool, targets)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errors.ErrToolFailed, name, err)
	}
	if len(argv) == 0 {
		log.Info("tool has no command configured, skipping")
		return nil
	}

	line := shellquote.Join(argv...)
	if r.DryRun {
		log.Info("would run", "command", line, "dir", tool.Dir)
		return nil
	}
	log.Info("running", "command", line, "dir", tool.Dir)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = tool.Dir
	cmd.Env = append(os.Environ(), r.Env...)

	if tool.PTY {
		err = r.runPTY(cmd)
	} else {
		err = r.runPiped(cmd)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", errors.ErrToolFailed, name, err)
	}
	return nil
}

func (r *Runner) writers() (io.Writer, io.Writer) {
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

func (r *Runner) runPiped(cmd *exec.Cmd) error {
	stdout, stderr := r.writers()
	tail := &tailBuffer{max: stderrTailSize}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)
	if err := cmd.Run(); err != nil {
		if msg := lastLine(tail.String()); msg != "" {
			return fmt.Errorf("%w (%s)", err, msg)
		}
		return err
	}
	return nil
}

// runPTY runs cmd attached to a pseudo-terminal so tools that check for a
// terminal keep their colour output. Both streams arrive on Stdout.
func (r *Runner) runPTY(cmd *exec.Cmd) error {
	stdout, _ := r.writers()
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	// Reading a pty after the child exits returns EIO on Linux.
	_, _ = io.Copy(stdout, f)
	return cmd.Wait()
}

// stderrTailSize bounds how much of a tool's stderr is kept for the error
// message.
const stderrTailSize = 4 << 10

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.max {
		p = p[len(p)-t.max:]
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
