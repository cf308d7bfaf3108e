package provider

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
)

// DefaultDispatchTimeout is the hard cap on a single provider dispatch.
const DefaultDispatchTimeout = 30 * time.Minute

// CLIProvider dispatches prompts to a provider's command-line tool as a
// subprocess, writing the prompt to stdin and reading JSON-or-text
// output from stdout.
type CLIProvider struct {
	name    string
	command string
	args    []string
	timeout time.Duration
}

// CLIOptions configures a CLIProvider.
type CLIOptions struct {
	Name    string
	Command string
	Args    []string
	Timeout time.Duration
}

// NewCLIProvider builds a subprocess-backed Provider.
func NewCLIProvider(opts CLIOptions) *CLIProvider {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultDispatchTimeout
	}
	return &CLIProvider{
		name:    opts.Name,
		command: opts.Command,
		args:    opts.Args,
		timeout: timeout,
	}
}

func (p *CLIProvider) Name() string {
	return p.name
}

// Execute spawns the provider CLI with req.Cwd as its working
// directory, feeds the prompt on stdin, and collects stdout/stderr.
func (p *CLIProvider) Execute(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := append([]string{}, p.args...)
	if req.SessionID != "" {
		args = append(args, "--session-id", req.SessionID)
	}
	if req.AgentMode != "" {
		args = append(args, "--agent-mode", req.AgentMode)
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Dir = req.Cwd
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.Newf(apperrors.KindProviderFailure, "provider %s dispatch timed out after %s", p.name, p.timeout).
				WithDetails(stderr.String())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, apperrors.Wrapf(err, apperrors.KindTransientIO, "spawn provider %s", p.name)
		}
	}

	return &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode,
		RawOutput: stdout.String(),
	}, nil
}
