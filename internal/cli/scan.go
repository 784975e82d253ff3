package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vietddude/errwatch/internal/control"
	"github.com/vietddude/errwatch/internal/core/domain"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one detection pass and print the findings",
	Run:   runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app, err := control.NewWatcher(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize Watcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	res := app.Detector().DetectErrors(ctx)

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			slog.Error("Failed to encode result", "error", err)
		}
		return
	}

	writeFindings(os.Stdout, res.Findings)

	fmt.Printf("\n%d findings, %d auto-fixable\n", res.Summary.Total, res.Summary.AutoFixable)
	kinds := make([]string, 0, len(res.Summary.ByKind))
	for k := range res.Summary.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-12s %d\n", k, res.Summary.ByKind[domain.ErrorKind(k)])
	}
}

// writeFindings prints one row per finding. Severity is padded before it is
// colored and stays outside the tabwriter.
func writeFindings(out io.Writer, findings []domain.DetectedError) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tLOCATION\tMESSAGE")
	for _, f := range findings {
		loc := f.FilePath
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.FilePath, f.Line)
		}
		msg := strings.ReplaceAll(f.Message, "\n", " ")
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.Kind, loc, msg)
	}
	_ = w.Flush()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, line := range lines {
		sev := fmt.Sprintf("%-*s", severityWidth, "SEVERITY")
		if i > 0 {
			sev = severityColor(findings[i-1].Severity)
		}
		_, _ = fmt.Fprintf(out, "%s  %s\n", sev, line)
	}
}

const severityWidth = len("critical")

func severityColor(s domain.Severity) string {
	padded := fmt.Sprintf("%-*s", severityWidth, s)
	switch s {
	case domain.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(padded)
	case domain.SeverityHigh:
		return color.RedString(padded)
	case domain.SeverityMedium:
		return color.YellowString(padded)
	default:
		return padded
	}
}
