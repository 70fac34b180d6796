package sqlitestore

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

type migration struct {
	version     int
	description string
	body        string
}

// migrate applies pending migrations in version order, each in its own
// transaction, and returns how many it applied.
func migrate(db *sql.DB) (int, error) {
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL,
		description TEXT NOT NULL,
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return 0, err
	}
	applied := map[int]string{}
	rows, err := db.Query("SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return 0, err
		}
		applied[version] = checksum
	}
	rows.Close()

	n := 0
	for _, m := range migrations {
		sum := checksum(m.body)
		if prev, ok := applied[m.version]; ok {
			if prev != sum {
				return n, fmt.Errorf("migration V%d was modified after being applied", m.version)
			}
			continue
		}
		if err := apply(db, m, sum); err != nil {
			return n, fmt.Errorf("failed to apply migration V%d: %w", m.version, err)
		}
		n++
	}
	return n, nil
}

func apply(db *sql.DB, m migration, sum string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.body); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		m.version, time.Now().Unix(), m.description, sum); err != nil {
		return err
	}
	return tx.Commit()
}

// loadMigrations reads files named V<version>__<description>.up.sql.
func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	var out []migration
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".up.sql")
		parts := strings.SplitN(name, "__", 2)
		if len(parts) != 2 {
			continue
		}
		version, err := strconv.Atoi(strings.TrimPrefix(parts[0], "V"))
		if err != nil {
			continue
		}
		body, err := fs.ReadFile(migrationFiles, "migrations/"+e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, description: strings.ReplaceAll(parts[1], "_", " "), body: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func checksum(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
