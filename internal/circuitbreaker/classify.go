package circuitbreaker

import "regexp"

var authPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunauthorized\b`),
	regexp.MustCompile(`(?i)invalid (?:api[ -]?key|credentials|token)`),
	regexp.MustCompile(`(?i)authentication failed`),
	regexp.MustCompile(`(?i)\b401\b`),
}

var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate limit`),
	regexp.MustCompile(`(?i)too many requests`),
	regexp.MustCompile(`(?i)\b429\b`),
}

var resourceExhaustedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)quota exceeded`),
	regexp.MustCompile(`(?i)resource.?exhausted`),
	regexp.MustCompile(`(?i)out of (?:memory|capacity)`),
}

var invalidModelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)invalid model`),
	regexp.MustCompile(`(?i)model not found`),
	regexp.MustCompile(`(?i)unsupported model`),
}

// Classify maps a provider dispatch failure to an ErrorClass via a
// fixed pattern table. Every registered Provider in this repo
// reports a failed dispatch as a wrapped error carrying only a message
// (internal/provider's CLIProvider itself only returns a non-nil error
// on timeout or spawn failure, neither of which has a real process
// exit code), so classification is driven entirely by stderr/message
// text; exitCode is accepted for a future Provider that can supply a
// real one (e.g. a numeric-code auth/rate-limit convention) but is not
// consulted today.
func Classify(stderr string, exitCode int) ErrorClass {
	_ = exitCode
	for _, p := range authPatterns {
		if p.MatchString(stderr) {
			return ErrorAuth
		}
	}
	for _, p := range rateLimitPatterns {
		if p.MatchString(stderr) {
			return ErrorRateLimit
		}
	}
	for _, p := range resourceExhaustedPatterns {
		if p.MatchString(stderr) {
			return ErrorResourceExhausted
		}
	}
	for _, p := range invalidModelPatterns {
		if p.MatchString(stderr) {
			return ErrorInvalidModel
		}
	}
	return ErrorUnknown
}
