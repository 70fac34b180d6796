package main

import (
	"context"

	"github.com/jrsteele09/go-accounting-sync/internal/config"
	"github.com/spf13/cobra"
)

func newLogCmd(cfg config.Config, opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the most recent sync attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeStore, err := openManager(cfg, opts)
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := m.ListRecentSyncLogEntries(context.Background(), limit)
			if err != nil {
				return err
			}
			return printLog(cmd.OutOrStdout(), opts.jsonOut, entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries to show")
	return cmd
}
