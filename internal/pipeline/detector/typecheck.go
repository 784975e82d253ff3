package detector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// diagnosticLine matches `path(line,col): severity CODE: message`.
var diagnosticLine = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\):\s+(error|warning)\s+([A-Za-z]+\d+):\s+(.*)$`)

// TypeCheck runs a type checker and classifies its diagnostics.
type TypeCheck struct {
	runner        CommandRunner
	dir           string
	command       []string
	criticalCodes []string
}

func NewTypeCheck(runner CommandRunner, dir string, command, criticalCodes []string) *TypeCheck {
	return &TypeCheck{
		runner:        runner,
		dir:           dir,
		command:       command,
		criticalCodes: criticalCodes,
	}
}

func (c *TypeCheck) Name() string { return "typecheck" }

func (c *TypeCheck) Run(ctx context.Context) ([]domain.DetectedError, error) {
	name, args, ok := splitCommand(c.command)
	if !ok {
		return nil, nil
	}
	out, err := c.runner.Run(ctx, c.dir, name, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run type checker: %w", err)
	}
	return c.parse(out), nil
}

func (c *TypeCheck) parse(out []byte) []domain.DetectedError {
	var findings []domain.DetectedError
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := diagnosticLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		code := m[5]

		severity := domain.SeverityHigh
		if slices.Contains(c.criticalCodes, code) {
			severity = domain.SeverityCritical
		}

		findings = append(findings, domain.DetectedError{
			Kind:     domain.KindType,
			Severity: severity,
			Category: "typecheck",
			Message:  fmt.Sprintf("%s: %s", code, m[6]),
			FilePath: m[1],
			Line:     line,
			Rule:     code,
		})
	}
	return findings
}
