package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const createSnapshotsTable = `CREATE TABLE IF NOT EXISTS ledger_snapshots (
    id UUID PRIMARY KEY,
    version INTEGER NOT NULL,
    taken_at TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL
)`

const (
	insertSnapshot = `INSERT INTO ledger_snapshots (id, version, taken_at, payload) VALUES ($1, $2, $3, $4)`
	latestSnapshot = `SELECT payload FROM ledger_snapshots ORDER BY taken_at DESC LIMIT 1`
)

// DB is the subset of *pgxpool.Pool the Postgres store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore appends snapshots to the ledger_snapshots table; the newest
// row wins on Load.
type PostgresStore struct {
	db DB
}

// NewPostgresStore builds a Postgres-backed snapshot store.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the snapshot table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createSnapshotsTable); err != nil {
		return fmt.Errorf("create ledger_snapshots: %w", err)
	}
	return nil
}

// Save inserts a new snapshot row.
func (s *PostgresStore) Save(ctx context.Context, state State) error {
	payload, err := Encode(state)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, insertSnapshot, uuid.New(), state.Version, state.TakenAt.UTC(), payload); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	return tx.Commit(ctx)
}

// Load returns the most recent snapshot.
func (s *PostgresStore) Load(ctx context.Context) (State, error) {
	var payload []byte
	if err := s.db.QueryRow(ctx, latestSnapshot).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, ErrNoSnapshot
		}
		return State{}, fmt.Errorf("load snapshot: %w", err)
	}
	return Decode(payload)
}
