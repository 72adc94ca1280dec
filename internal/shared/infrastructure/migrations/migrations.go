// Package migrations applies the embedded versioned schema migrations.
//
// Migration files are named <version>_<name>.sql and listed with their
// SHA-256 hashes in manifest.sha256. Startup verifies every file against
// the manifest, applies pending versions in order (one transaction per
// file), and records each in schema_revisions. Any mismatch or failure
// is fatal.
package migrations

import (
	"bufio"
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sqlite/*.sql sqlite/manifest.sha256
var migrationFS embed.FS

type migration struct {
	Version     int
	Description string
	File        string
	SQL         string
}

// Run verifies the manifest and applies all pending migrations.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_revisions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_revisions: %w", err)
	}

	manifest, err := loadManifest()
	if err != nil {
		return err
	}

	all, err := loadMigrations(manifest)
	if err != nil {
		return err
	}

	applied := map[int]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_revisions`)
	if err != nil {
		return fmt.Errorf("failed to read schema_revisions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.File, err)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_revisions (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, time.Now().UTC().Format(time.RFC3339)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func loadManifest() (map[string]string, error) {
	f, err := migrationFS.Open("sqlite/manifest.sha256")
	if err != nil {
		return nil, fmt.Errorf("missing migration manifest: %w", err)
	}
	defer f.Close()

	manifest := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed manifest line: %q", line)
		}
		manifest[fields[1]] = fields[0]
	}
	return manifest, scanner.Err()
}

func loadMigrations(manifest map[string]string) ([]migration, error) {
	entries, err := migrationFS.ReadDir("sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var all []migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		raw, err := migrationFS.ReadFile("sqlite/" + name)
		if err != nil {
			return nil, err
		}

		want, ok := manifest[name]
		if !ok {
			return nil, fmt.Errorf("migration %s is not listed in the manifest", name)
		}
		sum := sha256.Sum256(raw)
		if got := hex.EncodeToString(sum[:]); got != want {
			return nil, fmt.Errorf("migration %s does not match its manifest hash", name)
		}

		version, description, err := parseName(name)
		if err != nil {
			return nil, err
		}
		all = append(all, migration{
			Version:     version,
			Description: description,
			File:        name,
			SQL:         string(raw),
		})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	return all, nil
}

func parseName(name string) (int, string, error) {
	base := strings.TrimSuffix(name, ".sql")
	idx := strings.Index(base, "_")
	if idx <= 0 {
		return 0, "", fmt.Errorf("migration %s is not named <version>_<name>.sql", name)
	}
	version, err := strconv.Atoi(base[:idx])
	if err != nil {
		return 0, "", fmt.Errorf("migration %s has a non-numeric version: %w", name, err)
	}
	return version, strings.ReplaceAll(base[idx+1:], "_", " "), nil
}
