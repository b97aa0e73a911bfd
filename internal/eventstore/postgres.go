package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists records in the order_events table. Expiry is
// enforced twice: every query filters on ttl, and a background sweeper
// physically deletes expired rows.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) (Record, error) {
	info, err := json.Marshal(rec.Info)
	if err != nil {
		return Record{}, fmt.Errorf("marshal record info: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO order_events (pk, sk, ttl, email, created_at, request_id, event_type, info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pk, sk) DO UPDATE
		SET ttl = EXCLUDED.ttl,
		    email = EXCLUDED.email,
		    created_at = EXCLUDED.created_at,
		    request_id = EXCLUDED.request_id,
		    event_type = EXCLUDED.event_type,
		    info = EXCLUDED.info`,
		rec.PK, rec.SK, rec.TTL, rec.Email, rec.CreatedAt, rec.RequestID, rec.EventType, info,
	)
	if err != nil {
		return Record{}, fmt.Errorf("append record: %w: %w", ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (s *PostgresStore) QueryByEntity(ctx context.Context, kind, subjectID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pk, sk, ttl, email, created_at, request_id, event_type, info
		FROM order_events
		WHERE pk = $1 AND ttl > $2
		ORDER BY sk`,
		PartitionKey(kind, subjectID), time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events by entity: %w: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) QueryByCustomer(ctx context.Context, email, eventTypePrefix string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pk, sk, ttl, email, created_at, request_id, event_type, info
		FROM order_events
		WHERE email = $1 AND left(event_type, length($2)) = $2 AND ttl > $3
		ORDER BY event_type, created_at`,
		email, eventTypePrefix, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events by customer: %w: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows pgRows) ([]Record, error) {
	var result []Record
	for rows.Next() {
		var rec Record
		var info []byte
		if err := rows.Scan(&rec.PK, &rec.SK, &rec.TTL, &rec.Email, &rec.CreatedAt, &rec.RequestID, &rec.EventType, &info); err != nil {
			return nil, fmt.Errorf("scan record: %w: %w", ErrStoreUnavailable, err)
		}
		if err := json.Unmarshal(info, &rec.Info); err != nil {
			return nil, fmt.Errorf("unmarshal record info: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w: %w", ErrStoreUnavailable, err)
	}
	return result, nil
}

// StartSweeper deletes expired rows on a fixed interval until ctx is done.
func (s *PostgresStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go s.sweepLoop(ctx, interval)
}

func (s *PostgresStore) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tag, err := s.pool.Exec(ctx, `DELETE FROM order_events WHERE ttl <= $1`, time.Now().Unix())
		if err != nil {
			s.logger.Error("sweep expired events failed", "err", err)
			continue
		}
		if tag.RowsAffected() > 0 {
			s.logger.Info("swept expired events", "rows", tag.RowsAffected())
		}
	}
}
