// Package command runs shell commands for execute_command. Commands that
// invoke git are refused before a shell is started.
package command

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/pathguard"
)

const (
	DefaultTimeout = 30 * time.Second
	maxStdout      = 500
	maxStderr      = 200
	waitDelay      = 500 * time.Millisecond
)

// BlockedMessage is returned instead of running a git command.
const BlockedMessage = "Git commands are blocked for security reasons.\n" +
	"Version control is not available through this server; run git outside of it."

var gitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*git\s`),
	regexp.MustCompile(`&&\s*git\s`),
	regexp.MustCompile(`;\s*git\s`),
	regexp.MustCompile(`\|\s*git\s`),
	regexp.MustCompile("`git\\s"),
	regexp.MustCompile(`\$\(git\s`),
}

// IsGitCommand reports whether command invokes git anywhere in a simple
// shell pipeline or substitution.
func IsGitCommand(command string) bool {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, re := range gitPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// Runner executes commands through the platform shell.
type Runner struct {
	resolver   *pathguard.Resolver
	maxTimeout time.Duration
	logger     zerolog.Logger
}

type Option func(*Runner)

// WithMaxTimeout caps the timeout a caller may request.
func WithMaxTimeout(d time.Duration) Option {
	return func(r *Runner) { r.maxTimeout = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func NewRunner(resolver *pathguard.Resolver, opts ...Option) *Runner {
	r := &Runner{resolver: resolver, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// Run executes command in cwd (the primary allowed directory when empty).
// A zero timeout means DefaultTimeout. Non-zero exit codes and timeouts are
// reported in the returned text, not as errors.
func (r *Runner) Run(ctx context.Context, command string, timeout time.Duration, cwd string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.InvalidParams("command", "command is required")
	}
	if IsGitCommand(command) {
		return BlockedMessage, nil
	}
	if timeout < 0 {
		return "", errors.InvalidRange("timeout must be positive, got %s", timeout)
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if r.maxTimeout > 0 && timeout > r.maxTimeout {
		timeout = r.maxTimeout
	}

	dir := r.resolver.Allowed().Primary()
	if cwd != "" {
		rp, err := r.resolver.ResolveDir(cwd)
		if err != nil {
			return "", err
		}
		dir = rp.Path
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(timeoutCtx, command)
	cmd.Dir = dir
	// Background children may keep the output pipes open after the shell is killed.
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stdErrors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		r.logger.Warn().Str("cwd", dir).Dur("timeout", timeout).Msg("command timed out")
		return fmt.Sprintf("Command timed out after %d seconds", int(timeout.Seconds())), nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !stdErrors.As(err, &exitErr) {
			return "", errors.Wrap(errors.KindIOFailure, err, "could not start command")
		}
		return fmt.Sprintf("Command failed with exit code %d:\n%s",
			exitErr.ExitCode(), truncate(strings.TrimSpace(stderr.String()), maxStderr, "")), nil
	}
	return "Command executed successfully:\n" +
		truncate(strings.TrimSpace(stdout.String()), maxStdout, "... (truncated)"), nil
}

func truncate(s string, n int, suffix string) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + suffix
}
