package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteTables = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		height INTEGER NOT NULL,
		state TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS batches (
		height INTEGER PRIMARY KEY,
		reset INTEGER NOT NULL DEFAULT 0,
		events TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// SQLite stores everything in one database file in WAL mode.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer connection keeps commits serialized inside the process.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	for _, table := range sqliteTables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: create table: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Commit(ctx context.Context, c Commit) error {
	if err := validCommit(c); err != nil {
		return err
	}
	st, err := encodeState(c.State)
	if err != nil {
		return err
	}
	evs, err := encodeEvents(c.Events)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if c.Height == 1 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO snapshots (id, height, state) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			SnapshotID, c.Height, st)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE snapshots SET height = ?, state = ? WHERE id = ? AND height = ?`,
			c.Height, st, SnapshotID, c.Height-1)
	}
	if err != nil {
		return fmt.Errorf("sqlite: write snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("sqlite: write snapshot: %w", err)
	} else if n == 0 {
		return ErrHeightConflict
	}

	if c.Reset {
		if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE height < ?`, c.Height); err != nil {
			return fmt.Errorf("sqlite: truncate batches: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (height, reset, events) VALUES (?, ?, ?)`,
		c.Height, c.Reset, evs); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrHeightConflict
		}
		return fmt.Errorf("sqlite: write batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *SQLite) Latest(ctx context.Context) (Snapshot, error) {
	var (
		height int64
		data   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT height, state FROM snapshots WHERE id = ?`, SnapshotID).Scan(&height, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("sqlite: read snapshot: %w", err)
	}
	st, err := decodeState([]byte(data))
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: SnapshotID, Height: height, State: st}, nil
}

func (s *SQLite) Batches(ctx context.Context, after int64) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT height, reset, events FROM batches WHERE height > ? ORDER BY height`, after)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var (
			b    Batch
			data string
		)
		if err := rows.Scan(&b.Height, &b.Reset, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scan batch: %w", err)
		}
		if b.Events, err = decodeEvents([]byte(data)); err != nil {
			return nil, fmt.Errorf("sqlite: batch %d: %w", b.Height, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) PutRecord(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: put record %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) GetRecord(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM games WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get record %s: %w", id, err)
	}
	return data, nil
}

func (s *SQLite) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data, updated_at FROM games ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Data, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
