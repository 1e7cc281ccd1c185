package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-cart/internal/domain/cart"
)

var _ cart.Storage = (*KV)(nil)

// KV implements cart.Storage on the cart_snapshots table.
type KV struct {
	pool *pgxpool.Pool
}

// NewKV returns a KV that uses the given pool.
func NewKV(pool *pgxpool.Pool) *KV {
	return &KV{pool: pool}
}

// Load returns the snapshot stored under key, or cart.ErrSnapshotNotFound.
func (kv *KV) Load(ctx context.Context, key string) ([]byte, error) {
	var snapshot []byte
	err := kv.pool.QueryRow(ctx,
		`SELECT snapshot FROM cart_snapshots WHERE key = $1`, key,
	).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("loading snapshot %q: %w", key, err)
	}
	return snapshot, nil
}

// Save upserts the snapshot under key.
func (kv *KV) Save(ctx context.Context, key string, value []byte) error {
	_, err := kv.pool.Exec(ctx, `
		INSERT INTO cart_snapshots (key, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`,
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", key, err)
	}
	return nil
}

// Delete removes the snapshot under key. Deleting a missing key is not an error.
func (kv *KV) Delete(ctx context.Context, key string) error {
	if _, err := kv.pool.Exec(ctx, `DELETE FROM cart_snapshots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting snapshot %q: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys starting with prefix, in key order.
func (kv *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := kv.pool.Query(ctx,
		`SELECT key FROM cart_snapshots WHERE starts_with(key, $1) ORDER BY key`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot keys: %w", err)
	}
	return keys, nil
}

// DeleteStale removes snapshots not written since before and returns how
// many were removed.
func (kv *KV) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := kv.pool.Exec(ctx, `DELETE FROM cart_snapshots WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("deleting stale snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Summary is an aggregate over all stored carts.
type Summary struct {
	Carts int64
	Units int64
	Value decimal.Decimal
}

// Summarize aggregates the stored snapshots: how many carts exist, how many
// units they hold and what they are worth.
func (kv *KV) Summarize(ctx context.Context) (*Summary, error) {
	var s Summary
	err := kv.pool.QueryRow(ctx, `
		SELECT
			count(DISTINCT s.key),
			COALESCE(sum((i->>'quantity')::bigint), 0),
			COALESCE(sum((i->>'price')::numeric * (i->>'quantity')::bigint), 0)
		FROM cart_snapshots s
		LEFT JOIN LATERAL jsonb_array_elements(s.snapshot->'state'->'items') AS i ON true`,
	).Scan(&s.Carts, &s.Units, &s.Value)
	if err != nil {
		return nil, fmt.Errorf("summarizing snapshots: %w", err)
	}
	return &s, nil
}

// Ping checks the database connection.
func (kv *KV) Ping(ctx context.Context) error {
	return kv.pool.Ping(ctx)
}
