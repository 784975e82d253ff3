package detector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/errwatch/internal/core/domain"
)

type lintFileResult struct {
	FilePath string        `json:"filePath"`
	Messages []lintMessage `json:"messages"`
}

type lintMessage struct {
	RuleID   string          `json:"ruleId"`
	Severity int             `json:"severity"`
	Line     int             `json:"line"`
	Message  string          `json:"message"`
	Fixable  bool            `json:"fixable"`
	Fix      json.RawMessage `json:"fix,omitempty"`
}

// LintCheck runs a linter that emits a JSON list of per-file findings.
type LintCheck struct {
	runner  CommandRunner
	dir     string
	command []string
}

func NewLintCheck(runner CommandRunner, dir string, command []string) *LintCheck {
	return &LintCheck{runner: runner, dir: dir, command: command}
}

func (c *LintCheck) Name() string { return "lint" }

func (c *LintCheck) Run(ctx context.Context) ([]domain.DetectedError, error) {
	name, args, ok := splitCommand(c.command)
	if !ok {
		return nil, nil
	}
	out, err := c.runner.Run(ctx, c.dir, name, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run linter: %w", err)
	}

	var results []lintFileResult
	if err := json.Unmarshal(out, &results); err != nil {
		return nil, fmt.Errorf("failed to parse linter output: %w", err)
	}

	var findings []domain.DetectedError
	for _, file := range results {
		for _, msg := range file.Messages {
			rule := msg.RuleID
			if rule == "" {
				rule = "lint"
			}
			findings = append(findings, domain.DetectedError{
				Kind:        domain.KindSyntax,
				Severity:    lintSeverity(msg.Severity),
				Category:    "lint",
				Message:     msg.Message,
				FilePath:    file.FilePath,
				Line:        msg.Line,
				Rule:        rule,
				AutoFixable: msg.Fixable || hasFix(msg.Fix),
			})
		}
	}
	return findings, nil
}

func lintSeverity(n int) domain.Severity {
	switch n {
	case 2:
		return domain.SeverityHigh
	case 1:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func hasFix(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
