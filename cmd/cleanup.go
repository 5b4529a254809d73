package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rituo/rituo/internal/store"
)

// newCleanupCmd purges expired grants and refresh tokens from the database.
// The serve command does this on a timer; the subcommand exists for cron
// jobs and one-off maintenance against a stopped server.
func newCleanupCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired grants and refresh tokens from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := store.NewSQLite(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer repo.Close()

			removed, err := repo.CleanupExpired(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Printf("Removed %d expired records\n", removed)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "./data/rituo.db", "SQLite database path")
	return cmd
}
