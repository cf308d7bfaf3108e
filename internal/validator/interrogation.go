package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
	"github.com/kadirpekel/supervisor/internal/provider"
)

// maxQuestionsPerCriterion bounds how many interrogation rounds one task may consume.
const maxQuestionsPerCriterion = 2

// CriterionStatus is the agent's self-report for one interrogated criterion.
type CriterionStatus string

const (
	StatusDone       CriterionStatus = "DONE"
	StatusNotStarted CriterionStatus = "NOT_STARTED"
	StatusIncomplete CriterionStatus = "INCOMPLETE"
)

// CriterionAnswer is one parsed entry of an interrogation response.
type CriterionAnswer struct {
	Criterion string          `json:"criterion"`
	Status    CriterionStatus `json:"status"`
	Evidence  string          `json:"evidence"`
}

type interrogationResponse struct {
	Answers []CriterionAnswer `json:"answers"`
}

// Interrogator runs bounded question/answer rounds over criteria that
// stage 3 left unresolved.
type Interrogator struct {
	provider provider.Provider
}

// NewInterrogator binds an Interrogator to the provider used for questioning.
func NewInterrogator(p provider.Provider) *Interrogator {
	return &Interrogator{provider: p}
}

// Round is the outcome of one interrogation round.
type Round struct {
	Resolved  []CriterionAnswer // criteria that came back DONE
	Dropped   []CriterionAnswer // NOT_STARTED / INCOMPLETE, dropped from further rounds
	AllFailed bool              // 100% NOT_STARTED/INCOMPLETE: halts interrogation
}

// Run dispatches one interrogation round for the given unresolved
// criteria and evidence, and classifies the response, dropping any
// criterion the agent admits is incomplete or not started.
func (i *Interrogator) Run(ctx context.Context, req provider.Request, criteria []string, evidence map[string]string, roundNumber int, missingPaths []string) (*Round, error) {
	if roundNumber < 1 || roundNumber > maxQuestionsPerCriterion {
		return nil, apperrors.Newf(apperrors.KindInvariantViolation, "interrogation round %d exceeds bound of %d", roundNumber, maxQuestionsPerCriterion)
	}

	req.Prompt = buildInterrogationPrompt(req.Prompt, criteria, evidence, roundNumber, missingPaths)

	result, err := i.provider.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	var parsed interrogationResponse
	if err := json.Unmarshal([]byte(result.RawOutput), &parsed); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidationFailure, "interrogation response is not valid JSON")
	}

	round := &Round{}
	unresolved := 0
	for _, a := range parsed.Answers {
		switch a.Status {
		case StatusDone:
			round.Resolved = append(round.Resolved, a)
		case StatusNotStarted, StatusIncomplete:
			round.Dropped = append(round.Dropped, a)
			unresolved++
		}
	}
	if len(parsed.Answers) > 0 && unresolved == len(parsed.Answers) {
		round.AllFailed = true
	}
	return round, nil
}

func buildInterrogationPrompt(base string, criteria []string, evidence map[string]string, round int, missingPaths []string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nThe following acceptance criteria remain unresolved:\n")
	for _, c := range criteria {
		b.WriteString(fmt.Sprintf("- %s", c))
		if ev, ok := evidence[c]; ok && ev != "" {
			b.WriteString(fmt.Sprintf(" (evidence: %s)", ev))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nPoint to your implementation for each criterion, or admit it is incomplete.\n")
	if round == 2 && len(missingPaths) > 0 {
		b.WriteString("The following paths were not found and must be created or their absence explained:\n")
		for _, p := range missingPaths {
			b.WriteString(fmt.Sprintf("- %s\n", p))
		}
	}
	return b.String()
}
