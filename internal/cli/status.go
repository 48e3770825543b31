package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/starsort/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent classification runs and backlog counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("status requires a configured database")
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
	unclassified, err := repos.CountUnclassified(ctx)
	if err != nil {
		slog.Error("Failed to count unclassified repositories", "error", err)
		os.Exit(1)
	}
	pending, err := repos.CountForClassification(ctx, false, "")
	if err != nil {
		slog.Error("Failed to count pending repositories", "error", err)
		os.Exit(1)
	}

	fmt.Printf("unclassified: %d\npending (incl. stale): %d\n\n", unclassified, pending)

	rows, err := db.QueryContext(ctx, `
		SELECT task_id, task_type, status, COALESCE(message, ''), created_at, finished_at
		FROM tasks
		ORDER BY created_at DESC
		LIMIT 10`)
	if err != nil {
		slog.Error("Failed to query tasks", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TASK\tTYPE\tSTATUS\tCREATED\tFINISHED\tMESSAGE")

	for rows.Next() {
		var taskID, taskType, status, message string
		var createdAt time.Time
		var finishedAt *time.Time
		if err := rows.Scan(&taskID, &taskType, &status, &message, &createdAt, &finishedAt); err != nil {
			continue
		}
		finished := "-"
		if finishedAt != nil {
			finished = finishedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			taskID, taskType, status, createdAt.Format(time.RFC3339), finished, message)
	}
	_ = w.Flush()
}
