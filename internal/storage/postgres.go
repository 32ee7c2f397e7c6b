package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresTables = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		height BIGINT NOT NULL,
		state TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS batches (
		height BIGINT PRIMARY KEY,
		reset BOOLEAN NOT NULL DEFAULT FALSE,
		events TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		data BYTEA NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
}

// Postgres keeps the same three tables as SQLite behind a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres connects to url and creates the tables if needed.
func ConnectPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	for _, table := range postgresTables {
		if _, err := pool.Exec(ctx, table); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: create table: %w", err)
		}
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Commit(ctx context.Context, c Commit) error {
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

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var cur int64
	err = tx.QueryRow(ctx, `SELECT height FROM snapshots WHERE id = $1 FOR UPDATE`, SnapshotID).Scan(&cur)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: lock snapshot: %w", err)
	}
	if c.Height != cur+1 {
		return ErrHeightConflict
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO snapshots (id, height, state) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET height = excluded.height, state = excluded.state
		 WHERE snapshots.height = $4`,
		SnapshotID, c.Height, st, c.Height-1)
	if err != nil {
		return fmt.Errorf("postgres: write snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHeightConflict
	}

	if c.Reset {
		if _, err := tx.Exec(ctx, `DELETE FROM batches WHERE height < $1`, c.Height); err != nil {
			return fmt.Errorf("postgres: truncate batches: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO batches (height, reset, events) VALUES ($1, $2, $3)`,
		c.Height, c.Reset, evs); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrHeightConflict
		}
		return fmt.Errorf("postgres: write batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (p *Postgres) Latest(ctx context.Context) (Snapshot, error) {
	var (
		height int64
		data   string
	)
	err := p.pool.QueryRow(ctx,
		`SELECT height, state FROM snapshots WHERE id = $1`, SnapshotID).Scan(&height, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("postgres: read snapshot: %w", err)
	}
	st, err := decodeState([]byte(data))
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: SnapshotID, Height: height, State: st}, nil
}

func (p *Postgres) Batches(ctx context.Context, after int64) ([]Batch, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT height, reset, events FROM batches WHERE height > $1 ORDER BY height`, after)
	if err != nil {
		return nil, fmt.Errorf("postgres: read batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var (
			b    Batch
			data string
		)
		if err := rows.Scan(&b.Height, &b.Reset, &data); err != nil {
			return nil, fmt.Errorf("postgres: scan batch: %w", err)
		}
		if b.Events, err = decodeEvents([]byte(data)); err != nil {
			return nil, fmt.Errorf("postgres: batch %d: %w", b.Height, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) PutRecord(ctx context.Context, id string, data []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO games (id, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("postgres: put record %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) GetRecord(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM games WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get record %s: %w", id, err)
	}
	return data, nil
}

func (p *Postgres) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, data, updated_at FROM games ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Data, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteRecord(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset drops all rows. Tests use it to start clean.
func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `TRUNCATE snapshots, batches, games`)
	return err
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
