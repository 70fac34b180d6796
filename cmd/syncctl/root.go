package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jrsteele09/go-accounting-sync/credentials"
	"github.com/jrsteele09/go-accounting-sync/internal/config"
	"github.com/jrsteele09/go-accounting-sync/internal/sqlitestore"
	"github.com/jrsteele09/go-accounting-sync/syncmanager"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	dbPath   string
	jsonOut  bool
	noBanner bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cfg := config.New()

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Push local customers, items and sales documents to the accounting API",
		Long: `syncctl syncs locally stored customers, items, invoices and estimates to
the remote accounting system and shows the sync log.

Connection settings are read from SYNC_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(cfg); err != nil {
				return err
			}
			if !opts.noBanner && !opts.jsonOut {
				displayAppname(cfg.GetAppName())
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", cfg.GetDBPath(), "path to the SQLite database")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	cmd.PersistentFlags().BoolVar(&opts.noBanner, "no-banner", false, "do not print the banner")

	cmd.AddCommand(newSyncCmd(cfg, opts))
	cmd.AddCommand(newLogCmd(cfg, opts))
	cmd.AddCommand(newCredentialCmd(cfg, opts))
	return cmd
}

func setupLogging(cfg config.Config) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.GetLogLevel()))
	if err != nil {
		return fmt.Errorf("invalid SYNC_LOG_LEVEL %q: %w", cfg.GetLogLevel(), err)
	}
	zerolog.SetGlobalLevel(level)
	if cfg.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("app", cfg.GetAppName()).Logger()
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM. Cancelling a batch stops
// new entities from starting; in-flight ones finish.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore(cfg config.Config, opts *rootOptions) (*sqlitestore.Store, *credentials.Sealer, error) {
	var sealer *credentials.Sealer
	if key := cfg.GetCredentialKey(); key != "" {
		var err error
		if sealer, err = credentials.NewSealer(key); err != nil {
			return nil, nil, err
		}
	}
	store, err := sqlitestore.Open(opts.dbPath)
	if err != nil {
		return nil, nil, err
	}
	return store, sealer, nil
}

func openManager(cfg config.Config, opts *rootOptions) (*syncmanager.Manager, func(), error) {
	store, sealer, err := openStore(cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			log.Err(err).Msg("failed to close database")
		}
	}
	m, err := syncmanager.New(cfg, syncmanager.Repos{
		Credentials: store.Credentials(sealer),
		Customers:   store.Customers(),
		Items:       store.Items(),
		Documents:   store.SalesDocuments(),
		Log:         store.SyncLog(),
	}, &http.Client{})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return m, closeStore, nil
}
