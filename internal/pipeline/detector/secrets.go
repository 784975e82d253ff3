package detector

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/vietddude/errwatch/internal/core/domain"
)

var credentialAssignment = regexp.MustCompile(`(?i)\b(password|passwd|api[_-]?key|secret)\s*[:=]\s*["'][^"'\n]+["']`)

// SecretsCheck flags files with inline credential-like assignments. One
// finding per file; the value itself is never copied into the finding.
type SecretsCheck struct {
	tree SourceTree
}

func NewSecretsCheck(tree SourceTree) *SecretsCheck {
	return &SecretsCheck{tree: tree}
}

func (c *SecretsCheck) Name() string { return "secrets" }

func (c *SecretsCheck) Run(ctx context.Context) ([]domain.DetectedError, error) {
	files, err := c.tree.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sources: %w", err)
	}

	var findings []domain.DetectedError
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		m := credentialAssignment.FindSubmatchIndex(data)
		if m == nil {
			continue
		}
		line := 1 + strings.Count(string(data[:m[0]]), "\n")
		name := strings.ToLower(string(data[m[2]:m[3]]))

		findings = append(findings, domain.DetectedError{
			Kind:         domain.KindSecurity,
			Severity:     domain.SeverityCritical,
			Category:     "secrets",
			Message:      fmt.Sprintf("Possible hardcoded %s", name),
			FilePath:     path,
			Line:         line,
			Rule:         "inline-credential",
			SuggestedFix: "Load credentials from the environment or a secret manager",
		})
	}
	return findings, nil
}
