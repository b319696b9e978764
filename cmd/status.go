package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"timekeep/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent liveness heartbeats and sleep gaps",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.DBPath, cfg.FlushInterval(), slog.Default())
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		if err := st.Health(); err != nil {
			return fmt.Errorf("store health check failed: %w", err)
		}

		rows, err := st.RecentStatuses(statusLimit)
		if err != nil {
			return fmt.Errorf("failed to read statuses: %w", err)
		}
		if len(rows) == 0 {
			fmt.Println("No heartbeats recorded yet.")
			return nil
		}

		expected := cfg.StatusPoll()
		var prev time.Time
		for _, row := range rows {
			line := fmt.Sprintf("%s  %s", row.TS.Format("2006-01-02 15:04:05"), row.Status)
			if !prev.IsZero() && row.Status == store.StatusOnline {
				if gap := row.TS.Sub(prev); gap > 2*expected {
					line += fmt.Sprintf("  (gap: %s)", gap.Round(time.Second))
				}
			}
			fmt.Println(line)
			prev = row.TS
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 50, "Number of heartbeats to show")
}
