package typeset

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jonathan/resume-render-api/internal/rendering"
)

const (
	// maxCapturedOutput bounds how much of each output stream is kept.
	maxCapturedOutput = 64 << 10
	// maxDiagnostics bounds the summary attached to errors.
	maxDiagnostics = 2 << 10
	// waitDelay is how long Wait blocks on inherited pipes after the process is killed.
	waitDelay = 2 * time.Second
)

// commandResult holds the captured output of a finished process.
type commandResult struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Diagnostics summarizes the captured output for error reports.
func (r commandResult) Diagnostics() string {
	return summarizeDiagnostics(r.Stdout + "\n" + r.Stderr)
}

// runCommand runs a toolchain process in dir and waits for it.
//
// The process gets its own process group so a timeout kills every descendant.
// Its lifetime is detached from ctx cancellation: a disconnecting caller does
// not abort it, only the timeout does.
func runCommand(ctx context.Context, toolchain, path string, args []string, dir string, env []string, timeout time.Duration) (commandResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	stdout := newTailBuffer(maxCapturedOutput)
	stderr := newTailBuffer(maxCapturedOutput)

	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd.Process.Pid)
		return cmd.Process.Kill()
	}

	start := time.Now()
	runErr := cmd.Run()
	if cmd.Process != nil {
		// Descendants that outlived the group leader are killed too.
		killProcessGroup(cmd.Process.Pid)
	}

	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return result, &TimeoutError{
			Toolchain:   toolchain,
			Timeout:     timeout,
			Diagnostics: result.Diagnostics(),
		}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return result, &CrashError{
				Toolchain:   toolchain,
				ExitCode:    exitErr.ExitCode(),
				Message:     "process exited with an error",
				Diagnostics: result.Diagnostics(),
				Cause:       runErr,
			}
		}
		return result, &CrashError{
			Toolchain:   toolchain,
			ExitCode:    -1,
			Message:     "process could not be run",
			Diagnostics: result.Diagnostics(),
			Cause:       runErr,
		}
	}

	return result, nil
}

// Command is a Typesetter backed by a single subprocess. Args may contain the
// placeholders {input}, {output} and {dir}, which are replaced by the input
// file name, the output file name and the scoped directory.
type Command struct {
	Toolchain        string
	Path             string
	Args             []string
	Env              []string
	Output           string
	Timeout          time.Duration
	MaxArtifactBytes int64
	Logger           *slog.Logger
}

// Typeset implements Typesetter.
func (c *Command) Typeset(ctx context.Context, doc *rendering.MarkupDocument, dir string) (*Artifact, error) {
	if _, err := writeInput(doc, dir); err != nil {
		return nil, err
	}

	output := c.Output
	if output == "" {
		output = outputName
	}

	replacer := strings.NewReplacer("{input}", doc.InputName, "{output}", output, "{dir}", dir)
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = replacer.Replace(arg)
	}

	result, err := runCommand(ctx, c.Toolchain, c.Path, args, dir, c.Env, c.Timeout)
	c.logger().Debug("toolchain finished",
		"toolchain", c.Toolchain,
		"duration", result.Duration,
		"error", err,
	)
	if err != nil {
		return nil, err
	}

	return collectArtifact(ctx, c.Toolchain, dir, output, c.MaxArtifactBytes, result.Diagnostics())
}

func (c *Command) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// tailBuffer is an io.Writer that keeps only the last max bytes written.
// Each exec output stream has a single writing goroutine, and the buffer is
// only read after the process has been waited on.
type tailBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		b.truncated = true
		return n, nil
	}
	if over := len(b.buf) + len(p) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	if b.truncated {
		return "...\n" + string(b.buf)
	}
	return string(b.buf)
}

// summarizeDiagnostics extracts the useful part of toolchain output. For TeX
// logs that is every "!" error line and the line after it; otherwise the last
// lines of output.
func summarizeDiagnostics(output string) string {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")

	var picked []string
	for i, line := range lines {
		if strings.HasPrefix(line, "!") {
			picked = append(picked, line)
			if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
				picked = append(picked, lines[i+1])
			}
		}
	}

	if len(picked) == 0 {
		for _, line := range lines {
			if strings.TrimSpace(line) != "" {
				picked = append(picked, line)
			}
		}
		if len(picked) > 20 {
			picked = picked[len(picked)-20:]
		}
	}

	summary := strings.Join(picked, "\n")
	if len(summary) > maxDiagnostics {
		summary = "..." + summary[len(summary)-maxDiagnostics:]
	}
	return summary
}
