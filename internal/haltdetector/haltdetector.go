// Package haltdetector classifies raw provider output, exit code, and
// stderr into a halt reason or ambiguity signal.
package haltdetector

import (
	"encoding/json"
	"regexp"
)

// Reason is the Halt Detector's verdict for one provider dispatch.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonBlocked               Reason = "BLOCKED"
	ReasonOutputFormatInvalid   Reason = "OUTPUT_FORMAT_INVALID"
	ReasonProviderExecFailure   Reason = "PROVIDER_EXEC_FAILURE"
	ReasonResourceExhausted     Reason = "RESOURCE_EXHAUSTED"
	ReasonProviderCircuitBroken Reason = "PROVIDER_CIRCUIT_BROKEN"
	ReasonAmbiguityDetected     Reason = "AMBIGUITY_DETECTED"
)

// IsCritical reports whether reason must immediately halt the control loop.
func (r Reason) IsCritical() bool {
	switch r {
	case ReasonBlocked, ReasonOutputFormatInvalid, ReasonProviderCircuitBroken:
		return true
	default:
		return false
	}
}

var ambiguityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)could you clarify`),
	regexp.MustCompile(`(?i)which (?:one |option )?do you prefer`),
	regexp.MustCompile(`(?i)can you confirm`),
	regexp.MustCompile(`(?i)I'?m not sure (?:what|which|how) you (?:want|mean)`),
	regexp.MustCompile(`(?i)please (?:specify|clarify)`),
	regexp.MustCompile(`(?i)do you want me to`),
}

var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI cannot (?:proceed|complete|continue)\b`),
	regexp.MustCompile(`(?i)\bblocked\b.*\b(?:permission|access|credentials)\b`),
	regexp.MustCompile(`(?i)requires (?:human|operator|manual) (?:approval|intervention)`),
}

var resourceExhaustedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)quota exceeded`),
	regexp.MustCompile(`(?i)rate limit`),
	regexp.MustCompile(`(?i)resource.?exhausted`),
	regexp.MustCompile(`(?i)too many requests`),
}

// Input bundles the raw signals the Halt Detector classifies.
type Input struct {
	RawOutput string
	ExitCode  int
	Stderr    string
	TaskType  string // "coding" tasks are held to the JSON schema check
}

// expectedCodingOutput is the minimal shape a coding-task response must parse as.
type expectedCodingOutput struct {
	Summary string `json:"summary"`
}

// Detect classifies one dispatch's raw output into a Reason.
func Detect(in Input) Reason {
	for _, p := range blockedPatterns {
		if p.MatchString(in.RawOutput) || p.MatchString(in.Stderr) {
			return ReasonBlocked
		}
	}

	for _, p := range ambiguityPatterns {
		if p.MatchString(in.RawOutput) {
			return ReasonAmbiguityDetected
		}
	}

	for _, p := range resourceExhaustedPatterns {
		if p.MatchString(in.Stderr) || p.MatchString(in.RawOutput) {
			return ReasonResourceExhausted
		}
	}

	if in.TaskType == "coding" && in.RawOutput != "" {
		var parsed expectedCodingOutput
		if err := json.Unmarshal([]byte(in.RawOutput), &parsed); err != nil {
			return ReasonOutputFormatInvalid
		}
	}

	if in.ExitCode != 0 {
		return ReasonProviderExecFailure
	}

	return ReasonNone
}
