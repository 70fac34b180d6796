// Package sqlitestore persists credentials, local records and the sync log
// in a single SQLite database.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-accounting-sync/credentials"
	"github.com/jrsteele09/go-accounting-sync/entities"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	applied, err := migrate(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if applied > 0 {
		log.Info().Str("path", path).Int("migrations", applied).Msg("database migrated")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Credentials returns the credential repo. A nil sealer stores tokens as-is.
func (s *Store) Credentials(sealer *credentials.Sealer) *CredentialRepo {
	return &CredentialRepo{db: s.db, sealer: sealer}
}

func (s *Store) Customers() *EntityRepo[*entities.Customer] {
	return newEntityRepo[*entities.Customer](s.db, "customers")
}

func (s *Store) Items() *EntityRepo[*entities.Item] {
	return newEntityRepo[*entities.Item](s.db, "items")
}

func (s *Store) SalesDocuments() *EntityRepo[*entities.SalesDocument] {
	return newEntityRepo[*entities.SalesDocument](s.db, "sales_documents")
}

func (s *Store) SyncLog() *SyncLogRepo {
	return &SyncLogRepo{db: s.db}
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", v.String, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
