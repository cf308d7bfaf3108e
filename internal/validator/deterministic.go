package validator

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "github.com/kadirpekel/supervisor/internal/errors"
)

const (
	maxScanFiles = 2000
	maxScanBytes = 10 * 1024 * 1024
)

// pathologicalRegex rejects patterns whose nested-quantifier shape is
// a known catastrophic-backtracking trap, e.g. (.*)+ or (a+)+.
var pathologicalRegex = regexp.MustCompile(`\([^)]*[+*]\)[+*]`)

func compileBounded(pattern string) (*regexp.Regexp, error) {
	if pathologicalRegex.MatchString(pattern) {
		return nil, apperrors.Newf(apperrors.KindInvariantViolation, "rejected pathological regex %q", pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.KindValidationFailure, "invalid regex %q", pattern)
	}
	return re, nil
}

// Deterministic runs Check-typed rule checks against one sandbox directory.
type Deterministic struct {
	root string
}

// NewDeterministic binds a Deterministic validator to a project sandbox root.
func NewDeterministic(root string) *Deterministic {
	return &Deterministic{root: root}
}

// Result is the outcome of one Check.
type Result struct {
	Check      Check
	Passed     bool
	Confidence Confidence
	Detail     string
}

// Run evaluates checks in order, stopping at the first hard error
// (e.g. a rejected regex), and returns one Result per check attempted.
func (d *Deterministic) Run(checks []Check) ([]Result, error) {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		r, err := d.runOne(c)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (d *Deterministic) runOne(c Check) (Result, error) {
	switch c.Kind {
	case CheckFileExists:
		ok := d.fileExists(c.Path)
		return Result{Check: c, Passed: ok, Confidence: c.confidence(), Detail: detailExists(c.Path, ok)}, nil

	case CheckFileNotExists:
		ok := !d.fileExists(c.Path)
		return Result{Check: c, Passed: ok, Confidence: c.confidence(), Detail: detailExists(c.Path, !ok)}, nil

	case CheckDirExists:
		info, err := os.Stat(filepath.Join(d.root, c.Path))
		ok := err == nil && info.IsDir()
		return Result{Check: c, Passed: ok, Confidence: c.confidence(), Detail: detailExists(c.Path, ok)}, nil

	case CheckJSONContains:
		ok, detail, err := d.jsonContains(c)
		if err != nil {
			return Result{}, err
		}
		return Result{Check: c, Passed: ok, Confidence: c.confidence(), Detail: detail}, nil

	case CheckFileCount:
		n, err := d.countGlob(c.Glob)
		if err != nil {
			return Result{}, err
		}
		ok := n >= c.Min && (c.Max == 0 || n <= c.Max)
		return Result{Check: c, Passed: ok, Confidence: c.confidence(),
			Detail: fmt.Sprintf("%s matched %d files (want [%d,%d])", c.Glob, n, c.Min, c.Max)}, nil

	case CheckGrepFound, CheckGrepNotFound:
		found, err := d.grep(c.Path, c.Pattern)
		if err != nil {
			return Result{}, err
		}
		want := c.Kind == CheckGrepFound
		return Result{Check: c, Passed: found == want, Confidence: c.confidence(),
			Detail: fmt.Sprintf("pattern %q found=%v in %s", c.Pattern, found, c.Path)}, nil

	case CheckASTHas:
		ok, detail, err := d.astHas(c)
		if err != nil {
			return Result{}, err
		}
		return Result{Check: c, Passed: ok, Confidence: c.confidence(), Detail: detail}, nil

	default:
		return Result{}, apperrors.Newf(apperrors.KindInvariantViolation, "unknown check kind %q", c.Kind)
	}
}

func (d *Deterministic) fileExists(rel string) bool {
	_, err := os.Stat(filepath.Join(d.root, rel))
	return err == nil
}

func detailExists(path string, ok bool) string {
	if ok {
		return fmt.Sprintf("%s exists", path)
	}
	return fmt.Sprintf("%s does not exist", path)
}

func (d *Deterministic) jsonContains(c Check) (bool, string, error) {
	raw, err := os.ReadFile(filepath.Join(d.root, c.Path))
	if err != nil {
		return false, fmt.Sprintf("cannot read %s: %v", c.Path, err), nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Sprintf("%s is not valid JSON", c.Path), nil
	}

	node := doc
	if c.JSONPath != "" {
		for _, seg := range strings.Split(c.JSONPath, ".") {
			m, ok := node.(map[string]any)
			if !ok {
				return false, fmt.Sprintf("%s: path %q not found", c.Path, c.JSONPath), nil
			}
			node, ok = m[seg]
			if !ok {
				return false, fmt.Sprintf("%s: key %q not found", c.Path, seg), nil
			}
		}
	}

	m, ok := node.(map[string]any)
	if !ok {
		return false, fmt.Sprintf("%s: %q is not an object", c.Path, c.JSONPath), nil
	}
	val, exists := m[c.JSONKey]
	if !exists {
		return false, fmt.Sprintf("%s: key %q missing", c.Path, c.JSONKey), nil
	}
	if c.JSONVal == nil {
		return true, fmt.Sprintf("%s: key %q present", c.Path, c.JSONKey), nil
	}
	return fmt.Sprint(val) == fmt.Sprint(c.JSONVal),
		fmt.Sprintf("%s: key %q = %v (want %v)", c.Path, c.JSONKey, val, c.JSONVal), nil
}

func (d *Deterministic) countGlob(pattern string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(d.root, pattern))
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.KindValidationFailure, "invalid glob %q", pattern)
	}
	if len(matches) > maxScanFiles {
		matches = matches[:maxScanFiles]
	}
	return len(matches), nil
}

// grep matches pattern against one file, or against the whole sandbox
// tree when rel is empty or names a directory, bounded by maxScanFiles
// and maxScanBytes across the scan.
func (d *Deterministic) grep(rel, pattern string) (bool, error) {
	re, err := compileBounded(pattern)
	if err != nil {
		return false, err
	}
	path := filepath.Join(d.root, rel)
	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	if info.IsDir() {
		return d.grepTree(path, re)
	}
	if info.Size() > maxScanBytes {
		return false, apperrors.Newf(apperrors.KindValidationFailure, "%s exceeds max scan size", rel)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, apperrors.Wrapf(err, apperrors.KindTransientIO, "read %s", rel)
	}
	return re.Match(raw), nil
}

func (d *Deterministic) grepTree(dir string, re *regexp.Regexp) (bool, error) {
	files := 0
	var bytesRead int64
	found := false
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if entry.Name() == ".git" || entry.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if files >= maxScanFiles || bytesRead >= maxScanBytes {
			return filepath.SkipAll
		}
		info, infoErr := entry.Info()
		if infoErr != nil || info.Size() > maxScanBytes-bytesRead {
			return nil
		}
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		files++
		bytesRead += int64(len(raw))
		if re.Match(raw) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.KindTransientIO, "scan sandbox tree")
	}
	return found, nil
}

// astHas parses typescript/javascript sources with a real tree-sitter
// grammar (ast.go) and falls back to a regex over the common
// declaration forms for every other language.
func (d *Deterministic) astHas(c Check) (bool, string, error) {
	path := filepath.Join(d.root, c.Path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Sprintf("cannot read %s: %v", c.Path, err), nil
	}

	if lang := astLanguageFor(c.Path); lang != nil {
		found, err := astHasViaTreeSitter(lang, raw, c.ASTSymbolKind, c.ASTName)
		if err != nil {
			return false, "", err
		}
		return found, fmt.Sprintf("%s %q in %s (tree-sitter): %v", c.ASTSymbolKind, c.ASTName, c.Path, found), nil
	}

	pattern := astFallbackPattern(c.ASTSymbolKind, c.ASTName)
	re, err := compileBounded(pattern)
	if err != nil {
		return false, "", err
	}
	found := re.Match(raw)
	return found, fmt.Sprintf("%s %q in %s (regex fallback): %v", c.ASTSymbolKind, c.ASTName, c.Path, found), nil
}

func astFallbackPattern(symbolKind, name string) string {
	escaped := regexp.QuoteMeta(name)
	switch symbolKind {
	case "function":
		return fmt.Sprintf(`function\s+%s\s*\(|const\s+%s\s*=\s*(?:async\s*)?\(`, escaped, escaped)
	case "class":
		return fmt.Sprintf(`class\s+%s\b`, escaped)
	case "interface":
		return fmt.Sprintf(`interface\s+%s\b`, escaped)
	default:
		return escaped
	}
}
