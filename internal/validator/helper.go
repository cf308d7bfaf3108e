package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kadirpekel/supervisor/internal/concurrency"
	apperrors "github.com/kadirpekel/supervisor/internal/errors"
	"github.com/kadirpekel/supervisor/internal/provider"
)

// perCommandTimeout bounds a single verification command's runtime.
const perCommandTimeout = 30 * time.Second

// defaultConcurrentCommands caps how many verification commands run at once.
const defaultConcurrentCommands = 4

// destructivePatterns reject any command that could mutate the sandbox
// or exfiltrate data; the helper agent may only read.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\b`),
	regexp.MustCompile(`\bmv\b`),
	regexp.MustCompile(`>>?[^=]`),
	regexp.MustCompile(`\bchmod\b`),
	regexp.MustCompile(`\bchown\b`),
	regexp.MustCompile(`curl\s+.*-X\s*POST`),
	regexp.MustCompile(`\bgit\s+push\b`),
	regexp.MustCompile(`\bdd\b`),
	regexp.MustCompile(`\bsudo\b`),
}

// isDestructive reports whether a verification command matches a refused pattern.
func isDestructive(cmd string) bool {
	for _, p := range destructivePatterns {
		if p.MatchString(cmd) {
			return true
		}
	}
	return false
}

// HelperVerdict is the helper agent's parsed JSON response.
type HelperVerdict struct {
	IsValid              bool     `json:"isValid"`
	VerificationCommands []string `json:"verificationCommands"`
	Reasoning            string   `json:"reasoning"`
}

// HelperOrchestrator dispatches Stage 3: an AI provider call that
// proposes read-only verification commands, then runs them.
type HelperOrchestrator struct {
	provider     provider.Provider
	sandboxRoot  string
	strictHelper bool
	concurrency  *concurrency.Limiter
}

// NewHelperOrchestrator binds an orchestrator to a provider and sandbox dir.
// Verification commands it proposes run concurrently, bounded by the
// global concurrent-command cap.
func NewHelperOrchestrator(p provider.Provider, sandboxRoot string, strictHelper bool) *HelperOrchestrator {
	return &HelperOrchestrator{
		provider:     p,
		sandboxRoot:  sandboxRoot,
		strictHelper: strictHelper,
		concurrency:  concurrency.NewLimiter(defaultConcurrentCommands),
	}
}

// maxFileTreeEntries bounds the sandbox listing included in the helper prompt.
const maxFileTreeEntries = 200

// FileTreeSummary lists the sandbox's files relative to its root, one
// per line, truncated at maxFileTreeEntries, for the helper prompt's
// file-tree context.
func (h *HelperOrchestrator) FileTreeSummary() string {
	var entries []string
	truncated := false
	_ = filepath.WalkDir(h.sandboxRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(entries) >= maxFileTreeEntries {
			truncated = true
			return filepath.SkipAll
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(h.sandboxRoot, path)
		if relErr != nil {
			return nil
		}
		entries = append(entries, rel)
		return nil
	})
	if truncated {
		entries = append(entries, "... (truncated)")
	}
	if len(entries) == 0 {
		return "(empty)"
	}
	return strings.Join(entries, "\n")
}

// CommandOutcome records one verification command's execution.
type CommandOutcome struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Refused  bool
}

// HelperResult is Stage 3's outcome: the parsed verdict plus the
// outcome of every command actually executed.
type HelperResult struct {
	Verdict  HelperVerdict
	Outcomes []CommandOutcome
	Valid    bool
}

// Run dispatches the helper prompt, parses its verdict, and executes
// any verification commands it proposed.
func (h *HelperOrchestrator) Run(ctx context.Context, req provider.Request) (*HelperResult, error) {
	result, err := h.provider.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	var verdict HelperVerdict
	if err := json.Unmarshal([]byte(result.RawOutput), &verdict); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidationFailure, "helper response is not valid JSON")
	}

	if verdict.IsValid && len(verdict.VerificationCommands) == 0 {
		if h.strictHelper {
			return &HelperResult{Verdict: verdict, Valid: false}, nil
		}
		return &HelperResult{Verdict: verdict, Valid: true}, nil
	}

	fns := make([]func(context.Context) (CommandOutcome, error), len(verdict.VerificationCommands))
	for i, cmd := range verdict.VerificationCommands {
		cmd := cmd
		fns[i] = func(ctx context.Context) (CommandOutcome, error) {
			return h.runCommand(ctx, cmd), nil
		}
	}
	outcomes, _ := concurrency.Run(ctx, h.concurrency, fns)

	allPassed := true
	for _, outcome := range outcomes {
		if outcome.Refused || outcome.ExitCode != 0 {
			allPassed = false
		}
	}

	return &HelperResult{Verdict: verdict, Outcomes: outcomes, Valid: allPassed && len(outcomes) > 0}, nil
}

func (h *HelperOrchestrator) runCommand(ctx context.Context, cmdline string) CommandOutcome {
	if isDestructive(cmdline) {
		return CommandOutcome{Command: cmdline, Refused: true, ExitCode: -1,
			Stderr: "refused: command matches a destructive pattern"}
	}

	ctx, cancel := context.WithTimeout(ctx, perCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = h.sandboxRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderr.WriteString(fmt.Sprintf("\n%v", err))
		}
	}

	return CommandOutcome{Command: cmdline, ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}
}
