package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/snapshot"
)

func newSnapshotCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect locally autosaved answers",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the latest snapshot of recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.Open(cmd.Context(), cfg.SnapshotPath, "", zerolog.Nop())
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  %d answered\n", e.SavedAt.Format(time.RFC3339), e.SessionID, len(e.Answers))
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "number of sessions to list")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the latest answers of a session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.Open(cmd.Context(), cfg.SnapshotPath, "", zerolog.Nop())
			if err != nil {
				return err
			}
			defer store.Close()

			e, err := store.Latest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"session_id": e.SessionID,
				"saved_at":   e.SavedAt,
				"answers":    e.Answers,
			})
		},
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots older than a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.Open(cmd.Context(), cfg.SnapshotPath, "", zerolog.Nop())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d snapshot(s)\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour, "age cutoff")

	cmd.AddCommand(list, show, prune)
	return cmd
}
