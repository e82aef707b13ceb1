package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// tables lists every snapshotted table in foreign-key order. Restore
// truncates and reloads in this order so parents exist before children.
var tables = []string{
	"contacts",
	"products",
	"stock_transactions",
	"visits",
	"visit_lines",
	"ledger_entries",
	"audit_logs",
}

// TableDump is one table's full contents. Rows are jsonb renderings of whole
// records, so the file format survives column type changes that jsonb can
// still populate.
type TableDump struct {
	Table     string            `json:"table"`
	CreatedAt time.Time         `json:"created_at"`
	Count     int               `json:"count"`
	Rows      []json.RawMessage `json:"rows"`
}

// Manifest describes one snapshot directory.
type Manifest struct {
	CreatedAt time.Time      `json:"created_at"`
	Tables    map[string]int `json:"tables"`
}

// Snapshotter dumps and restores the full data set as JSON files.
type Snapshotter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// New builds Snapshotter.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{pool: pool, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Snapshotter) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Dump writes one JSON file per table plus a manifest into a timestamped
// directory under baseDir and returns the directory path.
func (s *Snapshotter) Dump(ctx context.Context, baseDir string) (string, error) {
	stamp := s.now().UTC().Format("20060102-150405")
	dir := filepath.Join(baseDir, "medirep-"+stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	manifest := Manifest{CreatedAt: s.now().UTC(), Tables: make(map[string]int, len(tables))}
	for _, table := range tables {
		dump, err := s.dumpTable(ctx, table)
		if err != nil {
			return "", fmt.Errorf("dump %s: %w", table, err)
		}
		if err := writeJSON(filepath.Join(dir, table+".json"), dump); err != nil {
			return "", err
		}
		manifest.Tables[table] = dump.Count
		s.logger.Info("table dumped", slog.String("table", table), slog.Int("rows", dump.Count))
	}
	if err := writeJSON(filepath.Join(dir, "manifest.json"), manifest); err != nil {
		return "", err
	}
	return dir, nil
}

// Restore truncates every snapshotted table and reloads it from dir. It runs
// in one transaction; a bad file leaves the database untouched.
func (s *Snapshotter) Restore(ctx context.Context, dir string) error {
	var manifest Manifest
	if err := readJSON(filepath.Join(dir, "manifest.json"), &manifest); err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.Exec(ctx, `DELETE FROM `+tables[i]); err != nil {
			return fmt.Errorf("clear %s: %w", tables[i], err)
		}
	}
	for _, table := range tables {
		var dump TableDump
		if err := readJSON(filepath.Join(dir, table+".json"), &dump); err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		if dump.Table != table {
			return fmt.Errorf("snapshot file for %s names table %q", table, dump.Table)
		}
		for _, row := range dump.Rows {
			if _, err := tx.Exec(ctx,
				`INSERT INTO `+table+` SELECT * FROM jsonb_populate_record(NULL::`+table+`, $1::jsonb)`,
				string(row)); err != nil {
				return fmt.Errorf("restore %s: %w", table, err)
			}
		}
		if _, err := tx.Exec(ctx,
			`SELECT setval(pg_get_serial_sequence($1, 'id'), (SELECT COALESCE(MAX(id), 0) + 1 FROM `+table+`), false)`,
			table); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
		s.logger.Info("table restored", slog.String("table", table), slog.Int("rows", len(dump.Rows)))
	}
	return tx.Commit(ctx)
}

func (s *Snapshotter) dumpTable(ctx context.Context, table string) (TableDump, error) {
	rows, err := s.pool.Query(ctx, `SELECT to_jsonb(t) FROM `+table+` t ORDER BY t.id`)
	if err != nil {
		return TableDump{}, err
	}
	defer rows.Close()

	dump := TableDump{Table: table, CreatedAt: s.now().UTC(), Rows: []json.RawMessage{}}
	for rows.Next() {
		var row json.RawMessage
		if err := rows.Scan(&row); err != nil {
			return TableDump{}, err
		}
		dump.Rows = append(dump.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return TableDump{}, err
	}
	dump.Count = len(dump.Rows)
	return dump, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	dec := json.NewDecoder(f)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("snapshot: trailing data in file " + filepath.Base(path))
	}
	return nil
}
