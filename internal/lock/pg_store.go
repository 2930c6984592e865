package lock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code raised when the primary key
// on resource_locks rejects a duplicate insert.
const uniqueViolation = "23505"

// PgStore persists lock rows in the resource_locks table. The primary key
// on resource_key is what makes Insert an atomic insert-if-absent.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Insert(ctx context.Context, l Lock) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resource_locks (resource_key, lock_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, l.ResourceKey, l.LockID, l.AcquiredAt, l.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrLockExists
		}
		return err
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, key string) (Lock, error) {
	var l Lock
	err := s.pool.QueryRow(ctx, `
		SELECT resource_key, lock_id, acquired_at, expires_at
		FROM resource_locks
		WHERE resource_key = $1
	`, key).Scan(&l.ResourceKey, &l.LockID, &l.AcquiredAt, &l.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lock{}, ErrLockNotFound
		}
		return Lock{}, err
	}
	return l, nil
}

func (s *PgStore) Delete(ctx context.Context, key, lockID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM resource_locks
		WHERE resource_key = $1 AND lock_id = $2
	`, key, lockID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM resource_locks
		WHERE expires_at < $1
		RETURNING resource_key
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PgStore) List(ctx context.Context, key string) ([]Lock, error) {
	query := `
		SELECT resource_key, lock_id, acquired_at, expires_at
		FROM resource_locks
		ORDER BY resource_key
	`
	args := []any{}
	if key != "" {
		query = `
			SELECT resource_key, lock_id, acquired_at, expires_at
			FROM resource_locks
			WHERE resource_key = $1
		`
		args = append(args, key)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []Lock
	for rows.Next() {
		var l Lock
		if err := rows.Scan(&l.ResourceKey, &l.LockID, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}
