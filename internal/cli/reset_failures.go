package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/starsort/internal/infra/storage/postgres"
)

var resetFailuresCmd = &cobra.Command{
	Use:   "reset-failures [full_name ...]",
	Short: "Clear classification failure counters so quarantined repositories are retried",
	Run:   runResetFailures,
}

func init() {
	rootCmd.AddCommand(resetFailuresCmd)
}

func runResetFailures(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("reset-failures requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	repos := postgres.NewRepoRepo(db, cfg.Classify.FailCountCeiling)

	// No arguments resets every quarantined repository.
	var fullNames []string
	if len(args) > 0 {
		fullNames = args
	}

	affected, err := repos.ResetClassifyFailCount(ctx, fullNames)
	if err != nil {
		slog.Error("Failed to reset failure counters", "error", err)
		os.Exit(1)
	}
	slog.Info("Failure counters reset", "repos", affected)
}
