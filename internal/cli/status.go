package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vietddude/errwatch/internal/control"
	"github.com/vietddude/errwatch/internal/core/domain"
)

var statusWindow time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent health and recent error patterns",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().DurationVar(&statusWindow, "window", 24*time.Hour, "pattern analysis window")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	st, err := app.Status(ctx, statusWindow)
	if err != nil {
		slog.Error("Failed to read status", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "AGENT\tHEALTHY\tERROR RATE\tRESPONSE\tISSUES")
	for _, r := range st.Agents {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%.0fms\t%s\n",
			r.AgentID,
			healthyLabel(r.Healthy),
			r.Performance.ErrorRate*100,
			r.Performance.ResponseTime,
			strings.Join(r.Issues, "; "),
		)
	}
	_ = w.Flush()

	p := st.Patterns
	fmt.Printf("\nErrors: %d total, %d critical, %d in the last 24h, %d recovery actions\n",
		p.Total, p.CriticalCount, p.RecentCount, st.Actions)
	printCounts("Types", p.MostCommonTypes)
	printCounts("Categories", p.MostCommonCategories)
	printCounts("Files", p.MostCommonFiles)
}

func healthyLabel(ok bool) string {
	if ok {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}

func printCounts(title string, entries []domain.CountEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	for _, e := range entries {
		fmt.Printf("  %-30s %d\n", e.Key, e.Count)
	}
}
