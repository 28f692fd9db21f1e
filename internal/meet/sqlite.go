package meet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS meets (
		id TEXT PRIMARY KEY,
		creator TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`

// SQLiteStore persists meets across restarts of a gateway process.
type SQLiteStore struct {
	pool *sqlitex.Pool
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags: sqlite.OpenReadWrite | sqlite.OpenCreate,
	})
	if err != nil {
		return nil, fmt.Errorf("open meet database: %w", err)
	}
	s := &SQLiteStore{pool: pool}
	if err := s.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("take connection: %w", err)
	}
	defer s.pool.Put(conn)
	if err := sqlitex.ExecuteTransient(conn, schema, nil); err != nil {
		return fmt.Errorf("create meets table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, creator domain.UserID) (domain.Meet, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return domain.Meet{}, fmt.Errorf("take connection: %w", err)
	}
	defer s.pool.Put(conn)

	m := domain.Meet{
		ID:        domain.RoomID(uuid.NewString()),
		Creator:   creator,
		CreatedAt: time.Now(),
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO meets (id, creator, created_at) VALUES (?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []any{string(m.ID), string(m.Creator), m.CreatedAt.Unix()},
		})
	if err != nil {
		return domain.Meet{}, fmt.Errorf("insert meet: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id domain.RoomID) (domain.Meet, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return domain.Meet{}, fmt.Errorf("take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var m domain.Meet
	found := false
	err = sqlitex.Execute(conn, `
		SELECT id, creator, created_at FROM meets WHERE id = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				m.ID = domain.RoomID(stmt.ColumnText(0))
				m.Creator = domain.UserID(stmt.ColumnText(1))
				m.CreatedAt = time.Unix(stmt.ColumnInt64(2), 0)
				return nil
			},
		})
	if err != nil {
		return domain.Meet{}, fmt.Errorf("select meet: %w", err)
	}
	if !found {
		return domain.Meet{}, ErrNotFound
	}
	return m, nil
}

func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}
