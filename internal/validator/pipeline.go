package validator

import (
	"context"
	"regexp"

	"github.com/kadirpekel/supervisor/internal/prompt"
	"github.com/kadirpekel/supervisor/internal/provider"
	"github.com/kadirpekel/supervisor/internal/state"
)

// responseExcerptLimit bounds how much of the agent's raw response is
// quoted into the helper prompt.
const responseExcerptLimit = 1500

// quotedPathPattern pulls a file path an acceptance criterion names
// explicitly, either backtick- or quote-delimited ("creates `foo.go`")
// or a bare dotted token ("creates config.yaml").
var quotedPathPattern = regexp.MustCompile("[`\"]([^`\"]+)[`\"]|\\b([\\w./-]+\\.[a-zA-Z0-9]+)\\b")

func criterionPath(criterion string) string {
	m := quotedPathPattern.FindStringSubmatch(criterion)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// withCriterionPath fills any check's empty Path with the path
// named in criterion, since DefaultRules' entries are keyword-only and
// don't know which file a given criterion instance refers to.
func withCriterionPath(checks []Check, criterion string) []Check {
	path := criterionPath(criterion)
	if path == "" {
		return checks
	}
	out := make([]Check, len(checks))
	for i, c := range checks {
		if c.Path == "" {
			c.Path = path
		}
		out[i] = c
	}
	return out
}

// RuleTable maps acceptance-criterion keywords to deterministic checks.
type RuleTable []Rule

// Pipeline sequences Stage 1-4 of the validation pipeline, short-
// circuiting on the first HIGH-confidence pass.
type Pipeline struct {
	deterministic *Deterministic
	helper        *HelperOrchestrator
	interrogator  *Interrogator
	rules         RuleTable
}

// NewPipeline wires every stage's collaborators into one Pipeline.
func NewPipeline(det *Deterministic, helper *HelperOrchestrator, interrogator *Interrogator, rules RuleTable) *Pipeline {
	return &Pipeline{deterministic: det, helper: helper, interrogator: interrogator, rules: rules}
}

// Outcome is the pipeline's verdict plus the retry signal the Retry
// Orchestrator consumes.
type Outcome struct {
	Report     state.ValidationReport
	NeedsRetry bool

	// InterrogationRan reports whether Stage 4 actually dispatched a
	// round this call, so the caller can advance its per-task round
	// counter (the 2-round cap is tracked across calls, not within
	// one).
	InterrogationRan bool

	// HelperCalled reports whether Stage 3 dispatched the helper
	// agent this call, for analytics accounting.
	HelperCalled bool
}

// RunBehavioral runs Stage 1 only; behavioral tasks never reach
// deterministic/helper/interrogation stages.
func (p *Pipeline) RunBehavioral(response string, criteria []BehavioralCriterion) Outcome {
	passed, failed := EvaluateBehavioral(response, criteria)
	valid := len(failed) == 0
	return Outcome{
		Report: state.ValidationReport{
			Valid:          valid,
			Confidence:     state.ConfidenceHigh,
			Reason:         behavioralReason(valid),
			RulesPassed:    passed,
			RulesFailed:    failed,
			FailedCriteria: failed,
		},
		NeedsRetry: !valid,
	}
}

func behavioralReason(valid bool) string {
	if valid {
		return "all behavioral criteria matched"
	}
	return "one or more behavioral criteria did not match the response"
}

// RunNonBehavioral runs Stages 2-4 against acceptanceCriteria, given
// the agent's raw response and a sandbox file-tree summary for the
// helper prompt. helperReq and interrogateReq are pre-filled Provider
// requests missing only their final Prompt text.
//
// finalRetryCycle marks the validation attempt that would push the
// task's retry count past its policy's MaxRetries. That attempt runs
// zero Stage 4 rounds of its own: the Retry
// Orchestrator's one-shot final interrogation (outside this pipeline)
// owns the last word, so Stage 4 never spends a round right before it.
func (p *Pipeline) RunNonBehavioral(ctx context.Context, acceptanceCriteria []string, helperReq, interrogateReq provider.Request, interrogationRoundsUsed int, finalRetryCycle bool) (Outcome, error) {
	failedCriteria, evidence, allHigh := p.runDeterministic(acceptanceCriteria)

	if len(failedCriteria) == 0 {
		return Outcome{Report: state.ValidationReport{
			Valid: true, Confidence: state.ConfidenceHigh, Reason: "all criteria satisfied by deterministic checks",
		}}, nil
	}
	if allHigh {
		return Outcome{
			Report: state.ValidationReport{
				Valid: false, Confidence: state.ConfidenceHigh,
				Reason:         "deterministic checks failed with high confidence",
				FailedCriteria: failedCriteria,
			},
			NeedsRetry: true,
		}, nil
	}

	if p.helper == nil {
		return Outcome{
			Report: state.ValidationReport{
				Valid: false, Confidence: state.ConfidenceLow,
				Reason: "no deterministic rule mapping and no helper agent configured",
				FailedCriteria: failedCriteria, UncertainCriteria: failedCriteria,
			},
			NeedsRetry: true,
		}, nil
	}

	helperReq.Prompt = prompt.BuildHelperPrompt(failedCriteria, excerpt(interrogateReq.Prompt), p.helper.FileTreeSummary())
	helperResult, err := p.helper.Run(ctx, helperReq)
	if err != nil {
		return Outcome{}, err
	}
	if helperResult.Valid {
		return Outcome{HelperCalled: true, Report: state.ValidationReport{
			Valid: true, Confidence: state.ConfidenceMedium, Reason: helperResult.Verdict.Reasoning,
		}}, nil
	}

	if p.interrogator == nil || finalRetryCycle || interrogationRoundsUsed >= maxQuestionsPerCriterion {
		reason := "helper verification failed and interrogation is exhausted"
		if finalRetryCycle {
			reason = "helper verification failed; interrogation deferred to the final retry cycle"
		}
		return Outcome{
			HelperCalled: true,
			Report: state.ValidationReport{
				Valid: false, Confidence: state.ConfidenceLow,
				Reason:         reason,
				FailedCriteria: failedCriteria,
			},
			NeedsRetry: true,
		}, nil
	}

	round, err := p.interrogator.Run(ctx, interrogateReq, failedCriteria, evidence, interrogationRoundsUsed+1, missingPathsFrom(helperResult))
	if err != nil {
		return Outcome{}, err
	}

	uncertain := criteriaFrom(round.Dropped)
	if round.AllFailed {
		return Outcome{
			HelperCalled: true, InterrogationRan: true,
			Report: state.ValidationReport{
				Valid: false, Confidence: state.ConfidenceLow,
				Reason:            "all interrogated criteria came back incomplete or not started",
				FailedCriteria:    failedCriteria,
				UncertainCriteria: uncertain,
			},
			NeedsRetry: true,
		}, nil
	}

	resolved := len(round.Resolved) == len(failedCriteria)
	return Outcome{
		HelperCalled: true, InterrogationRan: true,
		Report: state.ValidationReport{
			Valid:             resolved,
			Confidence:        state.ConfidenceMedium,
			Reason:            "interrogation round resolved some or all failed criteria",
			FailedCriteria:    failedCriteria,
			UncertainCriteria: uncertain,
		},
		NeedsRetry: !resolved,
	}, nil
}

func (p *Pipeline) runDeterministic(criteria []string) (failed []string, evidence map[string]string, allHigh bool) {
	evidence = make(map[string]string)
	allHigh = true
	for _, criterion := range criteria {
		rule, ok := matchRule(p.rules, criterion)
		if !ok {
			failed = append(failed, criterion)
			allHigh = false
			continue
		}
		checks := withCriterionPath(rule.Checks, criterion)
		if !checksBound(checks) {
			failed = append(failed, criterion)
			allHigh = false
			continue
		}
		results, err := p.deterministic.Run(checks)
		if err != nil {
			failed = append(failed, criterion)
			allHigh = false
			continue
		}
		pass := true
		for _, r := range results {
			if !r.Passed {
				pass = false
				if _, set := evidence[criterion]; !set {
					evidence[criterion] = r.Detail
				}
			}
			if r.Confidence != ConfidenceHigh {
				allHigh = false
			}
		}
		if !pass {
			failed = append(failed, criterion)
		}
	}
	return failed, evidence, allHigh
}

// checksBound reports whether every check still has the inputs it
// needs after path substitution. A criterion that names no usable path
// falls through to the helper agent rather than being evaluated against
// a guessed or empty target, which would pass or fail vacuously.
func checksBound(checks []Check) bool {
	for _, c := range checks {
		switch c.Kind {
		case CheckFileExists, CheckFileNotExists, CheckDirExists:
			if c.Path == "" {
				return false
			}
		case CheckJSONContains:
			if c.Path == "" || c.JSONKey == "" {
				return false
			}
		case CheckFileCount:
			if c.Glob == "" {
				return false
			}
		case CheckGrepFound, CheckGrepNotFound:
			if c.Pattern == "" {
				return false
			}
		case CheckASTHas:
			if c.Path == "" || c.ASTName == "" {
				return false
			}
		}
	}
	return true
}

func criteriaFrom(answers []CriterionAnswer) []string {
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		out = append(out, a.Criterion)
	}
	return out
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= responseExcerptLimit {
		return s
	}
	return string(r[:responseExcerptLimit]) + "..."
}

func missingPathsFrom(result *HelperResult) []string {
	var missing []string
	for _, o := range result.Outcomes {
		if o.ExitCode != 0 {
			missing = append(missing, o.Command)
		}
	}
	return missing
}
