package validator

import "regexp"

// DefaultRules is the operator-agnostic keyword-to-check table Stage 2
// starts from. Each Check's Path is filled in from
// whatever file path the criterion names (withCriterionPath); criteria
// that don't match any entry here, or whose file checks get no path,
// fall through to the helper agent. The tests-pass grep entry needs no
// path: without one it scans the whole sandbox tree.
var DefaultRules = RuleTable{
	{
		Keyword: regexp.MustCompile(`(?i)\btests? (?:pass|passing)\b`),
		Checks:  []Check{{Kind: CheckGrepNotFound, Path: "", Pattern: `t\.Skip\(`}},
	},
	{
		Keyword: regexp.MustCompile(`(?i)\bcreates? (?:a |an )?(?:file|script)\b`),
		Checks:  []Check{{Kind: CheckFileExists}},
	},
	{
		Keyword: regexp.MustCompile(`(?i)\bremoves?\b.*\bfile\b`),
		Checks:  []Check{{Kind: CheckFileNotExists}},
	},
	{
		Keyword: regexp.MustCompile(`(?i)\b(?:adds?|creates?) (?:a )?(?:directory|folder)\b`),
		Checks:  []Check{{Kind: CheckDirExists}},
	},
	{
		Keyword: regexp.MustCompile(`(?i)\b(?:directory|folder)\b.*\bexists?\b`),
		Checks:  []Check{{Kind: CheckDirExists}},
	},
	{
		Keyword: regexp.MustCompile(`(?i)\bexists\b`),
		Checks:  []Check{{Kind: CheckFileExists}},
	},
}
