package detector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// LineRule flags source lines matching Pattern.
type LineRule struct {
	ID          string
	Pattern     *regexp.Regexp
	Kind        domain.ErrorKind
	Severity    domain.Severity
	Category    string
	Message     string
	Fix         string
	AutoFixable bool
}

// DefaultDesignRules are the built-in source-pattern rules.
var DefaultDesignRules = []LineRule{
	{
		ID:       "hardcoded-color",
		Pattern:  regexp.MustCompile(`(^|['"\s:(,\[])#(?:[0-9a-fA-F]{8}|[0-9a-fA-F]{6}|[0-9a-fA-F]{4}|[0-9a-fA-F]{3})\b`),
		Kind:     domain.KindDesign,
		Severity: domain.SeverityHigh,
		Category: "design-tokens",
		Message:  "Hardcoded color value",
		Fix:      "Use design tokens instead of literal colors",
	},
	{
		ID:       "contrast-classes",
		Pattern:  regexp.MustCompile(`\b(bg-white\s+text-white|text-white\s+bg-white|bg-black\s+text-black|text-black\s+bg-black)\b`),
		Kind:     domain.KindDesign,
		Severity: domain.SeverityMedium,
		Category: "design-classes",
		Message:  "Foreground and background classes resolve to the same color",
		Fix:      "Use semantic foreground/background token pairs",
	},
	{
		ID:          "important-override",
		Pattern:     regexp.MustCompile(`!important\b`),
		Kind:        domain.KindDesign,
		Severity:    domain.SeverityLow,
		Category:    "design-styles",
		Message:     "Style override with !important",
		Fix:         "Raise selector specificity or use a variant instead",
		AutoFixable: false,
	},
}

// LineRuleCheck applies a set of line rules to every file in a source tree.
type LineRuleCheck struct {
	name  string
	tree  SourceTree
	rules []LineRule
}

func NewLineRuleCheck(name string, tree SourceTree, rules []LineRule) *LineRuleCheck {
	return &LineRuleCheck{name: name, tree: tree, rules: rules}
}

func (c *LineRuleCheck) Name() string { return c.name }

func (c *LineRuleCheck) Run(ctx context.Context) ([]domain.DetectedError, error) {
	if len(c.rules) == 0 {
		return nil, nil
	}
	files, err := c.tree.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sources: %w", err)
	}

	var findings []domain.DetectedError
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		found, err := c.scanFile(path)
		if err != nil {
			// unreadable files are skipped
			continue
		}
		findings = append(findings, found...)
	}
	return findings, nil
}

func (c *LineRuleCheck) scanFile(path string) ([]domain.DetectedError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []domain.DetectedError
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	inBlock := false
	for scanner.Scan() {
		lineNo++
		var code string
		code, inBlock = stripComments(scanner.Text(), inBlock)
		if strings.TrimSpace(code) == "" {
			continue
		}
		for _, rule := range c.rules {
			if !rule.Pattern.MatchString(code) {
				continue
			}
			findings = append(findings, domain.DetectedError{
				Kind:         rule.Kind,
				Severity:     rule.Severity,
				Category:     rule.Category,
				Message:      rule.Message,
				FilePath:     path,
				Line:         lineNo,
				Rule:         rule.ID,
				AutoFixable:  rule.AutoFixable,
				SuggestedFix: rule.Fix,
			})
		}
	}
	return findings, scanner.Err()
}

// stripComments removes // line comments and /* */ block comments.
// inBlock carries an unterminated block comment across lines.
func stripComments(line string, inBlock bool) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(line); {
		if inBlock {
			end := strings.Index(line[i:], "*/")
			if end < 0 {
				return b.String(), true
			}
			i += end + 2
			inBlock = false
			continue
		}
		if strings.HasPrefix(line[i:], "/*") {
			inBlock = true
			i += 2
			continue
		}
		if strings.HasPrefix(line[i:], "//") && (i == 0 || line[i-1] != ':') {
			break
		}
		b.WriteByte(line[i])
		i++
	}
	return b.String(), inBlock
}
