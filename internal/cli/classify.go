package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/starsort/internal/classify/job"
	"github.com/vietddude/starsort/internal/control"
)

var (
	classifyLimit       int
	classifyForce       bool
	classifyReadme      bool
	classifyConcurrency int
	classifyCursor      string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Run one classification pass and wait for it to finish",
	Run:   runClassify,
}

func init() {
	classifyCmd.Flags().IntVar(&classifyLimit, "limit", 0, "batch size per page (0 = configured default)")
	classifyCmd.Flags().BoolVar(&classifyForce, "force", false, "reclassify everything, walking the table by full name")
	classifyCmd.Flags().BoolVar(&classifyReadme, "readme", false, "prefetch README excerpts for sparse repositories")
	classifyCmd.Flags().IntVar(&classifyConcurrency, "concurrency", 0, "worker count (0 = configured default)")
	classifyCmd.Flags().StringVar(&classifyCursor, "cursor", "", "resume a force run after this full name")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop()
	}()

	includeReadme := classifyReadme || cfg.Classify.IncludeReadme

	taskID, err := app.Orchestrator().Start(ctx, job.Params{
		Limit:          classifyLimit,
		Force:          classifyForce,
		IncludeReadme:  includeReadme,
		Concurrency:    classifyConcurrency,
		CursorFullName: classifyCursor,
	})
	if err != nil {
		slog.Error("Failed to start classification run", "error", err)
		os.Exit(1)
	}

	slog.Info("Classification run started", "task_id", taskID)
	app.Orchestrator().Wait()

	state := app.Orchestrator().Snapshot()
	if state.LastError != "" {
		slog.Error("Classification run failed",
			"task_id", taskID, "processed", state.Processed, "error", state.LastError)
		os.Exit(1)
	}
	slog.Info("Classification run finished",
		"task_id", taskID, "processed", state.Processed, "failed", state.Failed)
}
