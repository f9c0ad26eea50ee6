package store

import (
	"context"
	"fmt"
	"time"
)

// Lock is a time-leased advisory lock over a named resource.
type Lock struct {
	ResourceName string `meddler:"resource_name"       json:"resource"`
	HolderID     string `meddler:"holder_id"           json:"holder_id"`
	AcquiredAt   int64  `meddler:"acquired_at"         json:"acquired_at"`
	ExpiresAt    int64  `meddler:"expires_at"          json:"expires_at"`
	Metadata     string `meddler:"metadata,zeroisnull" json:"metadata,omitempty"`
}

// AcquireLock takes resource for holder for the lease duration. It succeeds when the resource
// is free, when the current lease has expired, or when holder already owns it.
func (s *Store) AcquireLock(ctx context.Context, resource, holder string, lease time.Duration,
	metadata string) (bool, error) {
	now := s.now()

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO indexer_locks (resource_name, holder_id, acquired_at, expires_at, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (resource_name) DO UPDATE SET
			holder_id = excluded.holder_id,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at,
			metadata = excluded.metadata
		WHERE indexer_locks.expires_at <= ? OR indexer_locks.holder_id = excluded.holder_id`),
		resource, holder, now.Unix(), now.Add(lease).Unix(), nullableString(metadata), now.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", resource, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	acquired := n > 0
	lockAttemptInc(resource, acquired)
	return acquired, nil
}

// RenewLock extends the lease of a lock holder still owns.
func (s *Store) RenewLock(ctx context.Context, resource, holder string, lease time.Duration) (bool, error) {
	now := s.now()

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE indexer_locks SET expires_at = ?
		WHERE resource_name = ? AND holder_id = ? AND expires_at > ?`),
		now.Add(lease).Unix(), resource, holder, now.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to renew lock %s: %w", resource, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseLock deletes the lock if holder is its current holder.
func (s *Store) ReleaseLock(ctx context.Context, resource, holder string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM indexer_locks WHERE resource_name = ? AND holder_id = ?`), resource, holder)
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", resource, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HoldsLock reports whether holder owns an unexpired lease on resource.
func (s *Store) HoldsLock(ctx context.Context, resource, holder string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM indexer_locks
		WHERE resource_name = ? AND holder_id = ? AND expires_at > ?`),
		resource, holder, s.unixNow()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check lock %s: %w", resource, err)
	}
	return n > 0, nil
}

// ListLocks returns every lock row, expired or not.
func (s *Store) ListLocks(ctx context.Context) ([]*Lock, error) {
	var locks []*Lock
	if err := s.dialect.QueryAll(s.db, &locks, `SELECT * FROM indexer_locks ORDER BY resource_name`); err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	return locks, nil
}
