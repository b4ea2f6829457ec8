package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteTombstoneStore is a TombstoneStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteTombstoneStore struct {
	db *sql.DB
}

// Ensure SQLiteTombstoneStore implements TombstoneStore.
var _ TombstoneStore = (*SQLiteTombstoneStore)(nil)

// NewSQLiteTombstoneStore initializes the required schema in the given
// database and returns a new SQLiteTombstoneStore.
func NewSQLiteTombstoneStore(db *sql.DB) (*SQLiteTombstoneStore, error) {
	s := &SQLiteTombstoneStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteTombstoneStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tombstones (
			ticket TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			swept_at INTEGER NOT NULL
		);`,
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS tombstones_swept_at ON tombstones (swept_at);`)
	return err
}

func (s *SQLiteTombstoneStore) Bury(ctx context.Context, t Tombstone) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tombstones (ticket, flow_name, swept_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ticket) DO NOTHING`,
		t.Ticket,
		t.Flow,
		t.SweptAt.UnixNano(),
	)
	return err
}

func (s *SQLiteTombstoneStore) IsBuried(ctx context.Context, ticket string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tombstones WHERE ticket = ?`, ticket).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *SQLiteTombstoneStore) Purge(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tombstones WHERE swept_at < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
