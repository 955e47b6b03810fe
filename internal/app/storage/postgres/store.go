package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/feed_layer/internal/app/domain/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/app/storage"
)

// Store implements storage.SnapshotStore backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.SnapshotStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const uniqueViolation = "23505"

func (s *Store) CreateSnapshot(ctx context.Context, snap pricefeed.Snapshot) (pricefeed.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO feed_snapshots (id, feed, price, decimals, last_update_time, collected_at)
		VALUES (:id, :feed, :price, :decimals, :last_update_time, :collected_at)
	`, snap)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return pricefeed.Snapshot{}, fmt.Errorf("snapshot %s: %w", snap.ID, storage.ErrDuplicate)
		}
		return pricefeed.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, feed string, limit int) ([]pricefeed.Snapshot, error) {
	query := `
		SELECT id, feed, price, decimals, last_update_time, collected_at
		FROM feed_snapshots
		WHERE feed = $1
		ORDER BY collected_at DESC`
	args := []interface{}{feed}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var result []pricefeed.Snapshot
	if err := s.db.SelectContext(ctx, &result, query, args...); err != nil {
		return nil, err
	}
	return result, nil
}
