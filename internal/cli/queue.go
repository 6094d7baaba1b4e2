package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/snapcook/internal/control"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drain the sync queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending, in-flight and dead-lettered task counts",
	Run:   runQueueStatus,
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Attempt every due task once",
	Run:   runQueueDrain,
}

var queueDeadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List tasks that exhausted their retries",
	Run:   runQueueDeadLetters,
}

func init() {
	queueCmd.AddCommand(queueStatusCmd, queueDrainCmd, queueDeadLettersCmd)
	rootCmd.AddCommand(queueCmd)
}

func openApp(cmd *cobra.Command) (*control.App, context.Context) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize app", "error", err)
		os.Exit(1)
	}
	return app, ctx
}

func runQueueStatus(cmd *cobra.Command, args []string) {
	app, ctx := openApp(cmd)
	defer app.Close()

	stats, err := app.Queue().Stats(ctx)
	if err != nil {
		slog.Error("Failed to read queue", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PENDING\tIN FLIGHT\tDEAD LETTERS")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\n", stats.Pending, stats.InFlight, stats.DeadLetters)
	_ = w.Flush()
}

func runQueueDrain(cmd *cobra.Command, args []string) {
	app, ctx := openApp(cmd)
	defer app.Close()

	report, err := app.Queue().Drain(ctx)
	if err != nil {
		slog.Error("Drain failed", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ATTEMPTED\tSUCCEEDED\tFAILED\tDEAD LETTERED\tDEFERRED\tDURATION")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%s\n",
		report.Attempted, report.Succeeded, report.Failed, report.DeadLettered, report.Deferred,
		report.Duration.Round(time.Millisecond))
	_ = w.Flush()
}

func runQueueDeadLetters(cmd *cobra.Command, args []string) {
	app, ctx := openApp(cmd)
	defer app.Close()

	dead, err := app.Queue().DeadLetters(ctx)
	if err != nil {
		slog.Error("Failed to read dead letters", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tENTITY\tRETRIES\tDEAD SINCE\tLAST ERROR")
	for _, t := range dead {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s/%s\t%d\t%s\t%s\n",
			t.ID, t.Kind, t.EntityType, t.EntityID, t.RetryCount,
			t.DeadLetteredAt.Format(time.RFC3339), t.LastError)
	}
	_ = w.Flush()
}
