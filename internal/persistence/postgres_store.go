package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresTombstoneStore is a TombstoneStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresTombstoneStore struct {
	db *sql.DB
}

// Ensure PostgresTombstoneStore implements TombstoneStore.
var _ TombstoneStore = (*PostgresTombstoneStore)(nil)

// NewPostgresTombstoneStore initializes the required schema in the given
// database and returns a new PostgresTombstoneStore.
func NewPostgresTombstoneStore(db *sql.DB) (*PostgresTombstoneStore, error) {
	s := &PostgresTombstoneStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresTombstoneStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tombstones (
			ticket TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			swept_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS tombstones_swept_at ON tombstones (swept_at);`)
	return err
}

func (s *PostgresTombstoneStore) Bury(ctx context.Context, t Tombstone) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tombstones (ticket, flow_name, swept_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticket) DO NOTHING`,
		t.Ticket,
		t.Flow,
		t.SweptAt.UTC(),
	)
	return err
}

func (s *PostgresTombstoneStore) IsBuried(ctx context.Context, ticket string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tombstones WHERE ticket = $1`, ticket).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PostgresTombstoneStore) Purge(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tombstones WHERE swept_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
