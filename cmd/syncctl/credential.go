package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jrsteele09/go-accounting-sync/credentials"
	"github.com/jrsteele09/go-accounting-sync/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// tokenResponse is the body returned by the token endpoint, as saved after
// the initial authorization.
type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in"`
}

func newCredentialCmd(cfg config.Config, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the stored OAuth2 credential",
	}
	cmd.AddCommand(newCredentialImportCmd(cfg, opts))
	return cmd
}

func newCredentialImportCmd(cfg config.Config, opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a token endpoint response for SYNC_REALM_ID",
		Long: `Reads a token endpoint JSON response (access_token, refresh_token,
expires_in, x_refresh_token_expires_in) from --file or stdin and stores it
with absolute expiry times.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			realmID := cfg.GetRealmID()
			if realmID == "" {
				return fmt.Errorf("SYNC_REALM_ID must be set")
			}
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var tr tokenResponse
			if err := json.NewDecoder(in).Decode(&tr); err != nil {
				return fmt.Errorf("decode token response: %w", err)
			}
			if tr.AccessToken == "" || tr.RefreshToken == "" {
				return fmt.Errorf("token response must contain access_token and refresh_token")
			}

			store, sealer, err := openStore(cfg, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			// A missing expires_in leaves a zero expiry, so the first call refreshes.
			now := time.Now()
			cred := &credentials.RemoteCredential{
				RealmID:               realmID,
				AccessToken:           tr.AccessToken,
				RefreshToken:          tr.RefreshToken,
				AccessTokenExpiresAt:  expiresAt(now, tr.ExpiresIn),
				RefreshTokenExpiresAt: expiresAt(now, tr.RefreshTokenExpiresIn),
				UpdatedAt:             now,
			}
			if err := store.Credentials(sealer).Upsert(cmd.Context(), cred); err != nil {
				return err
			}
			log.Info().Str("realm_id", realmID).Bool("sealed", sealer != nil).Time("access_expires_at", cred.AccessTokenExpiresAt).Msg("credential imported")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "token response JSON file, - for stdin")
	return cmd
}

func expiresAt(now time.Time, seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}
