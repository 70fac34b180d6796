package main

import (
	"fmt"

	"github.com/jrsteele09/go-accounting-sync/entities"
	"github.com/jrsteele09/go-accounting-sync/entitysync"
	"github.com/jrsteele09/go-accounting-sync/internal/config"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/spf13/cobra"
)

// kindNames maps command-line names to entity kinds.
var kindNames = map[string]entities.Kind{
	"customer": entities.KindCustomer,
	"item":     entities.KindItem,
	"document": entities.KindSalesDocument,
}

func parseKind(name string) (entities.Kind, error) {
	if k, ok := kindNames[name]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown type %q (want customer, item or document): %w", name, syncerrors.ErrUnsupported)
}

func newSyncCmd(cfg config.Config, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync records to the remote accounting system",
	}
	for name := range kindNames {
		cmd.AddCommand(newSyncOneCmd(cfg, opts, name))
	}
	cmd.AddCommand(newSyncAllCmd(cfg, opts))
	return cmd
}

func newSyncOneCmd(cfg config.Config, opts *rootOptions, name string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <local-id>",
		Short: "Sync one " + name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(name)
			if err != nil {
				return err
			}
			m, closeStore, err := openManager(cfg, opts)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signalContext()
			defer stop()
			out, err := m.SyncOne(ctx, kind, args[0])
			if printErr := printOutcomes(cmd.OutOrStdout(), opts.jsonOut, []entitysync.Outcome{out}); printErr != nil {
				return printErr
			}
			if err != nil {
				return err
			}
			if out.Failed() {
				return fmt.Errorf("%s %s failed: %s", name, args[0], out.Reason)
			}
			return nil
		},
	}
}

func newSyncAllCmd(cfg config.Config, opts *rootOptions) *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Sync every record, customers and items before documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeStore, err := openManager(cfg, opts)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signalContext()
			defer stop()

			if typeName != "" {
				kind, err := parseKind(typeName)
				if err != nil {
					return err
				}
				outs, runErr := m.SyncAllOfType(ctx, kind)
				if err := printOutcomes(cmd.OutOrStdout(), opts.jsonOut, outs); err != nil {
					return err
				}
				return batchError(runErr, countFailed(outs), len(outs))
			}

			result, runErr := m.SyncAll(ctx)
			if result == nil {
				return runErr
			}
			if err := printBatch(cmd.OutOrStdout(), opts.jsonOut, result); err != nil {
				return err
			}
			total := len(result.Customers) + len(result.Items) + len(result.Documents)
			return batchError(runErr, result.Failed(), total)
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "only sync one type: customer, item or document")
	return cmd
}

func countFailed(outs []entitysync.Outcome) int {
	n := 0
	for _, o := range outs {
		if o.Failed() {
			n++
		}
	}
	return n
}

func batchError(runErr error, failed, total int) error {
	if runErr != nil {
		return fmt.Errorf("sync aborted: %w", runErr)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed to sync", failed, total)
	}
	return nil
}

