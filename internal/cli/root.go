package cli

import (
	"github.com/spf13/cobra"

	"github.com/stemsi/exstem-proctor/internal/config"
)

// Execute runs the exam client CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:           "proctor",
		Short:         "Terminal client for proctored EXSTEM exams",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&cfg.ExamBaseURL, "base-url", cfg.ExamBaseURL, "exam gateway base URL")
	cmd.PersistentFlags().StringVar(&cfg.ExamToken, "token", cfg.ExamToken, "student access token")
	cmd.PersistentFlags().StringVar(&cfg.SnapshotPath, "snapshots", cfg.SnapshotPath, "path to the local answer snapshot database")
	cmd.PersistentFlags().StringVar(&cfg.ClientLogFile, "log-file", cfg.ClientLogFile, "client log file")

	cmd.AddCommand(newTakeCmd(cfg))
	cmd.AddCommand(newSnapshotCmd(cfg))
	return cmd
}
