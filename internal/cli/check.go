package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vietddude/errwatch/internal/control"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe storage and run one health check over every agent",
	Run:   runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	cfg := setup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app, err := control.NewWatcher(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize Watcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	if err := app.Health(ctx); err != nil {
		fmt.Println(color.RedString("storage unreachable: %v", err))
		os.Exit(1)
	}
	fmt.Println(color.GreenString("ok"), "storage:", cfg.Storage.Driver)

	unhealthy := 0
	for _, r := range app.Monitor().PerformAllHealthChecks(ctx) {
		if r.Healthy {
			fmt.Printf("%s %s\n", color.GreenString("healthy  "), r.AgentID)
			continue
		}
		unhealthy++
		fmt.Printf("%s %s: %s\n", color.RedString("unhealthy"), r.AgentID, strings.Join(r.Issues, "; "))
	}
	if unhealthy > 0 {
		_ = app.Stop(ctx)
		os.Exit(1)
	}
}
