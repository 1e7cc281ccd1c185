// Package redis stores cart snapshots in Redis, optionally expiring
// abandoned carts.
package redis

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/food-cart/internal/domain/cart"
)

var _ cart.Storage = (*KV)(nil)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 256

// KV implements cart.Storage on plain Redis string keys.
type KV struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewKV returns a KV on client. A positive ttl is applied on every save, so
// a cart expires ttl after its last change.
func NewKV(client redis.UniversalClient, ttl time.Duration) *KV {
	return &KV{client: client, ttl: ttl}
}

// NewClient creates a client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}

// Load returns the snapshot stored under key, or cart.ErrSnapshotNotFound.
func (kv *KV) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := kv.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cart.ErrSnapshotNotFound
		}
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return v, nil
}

// Save writes the snapshot under key, resetting its TTL.
func (kv *KV) Save(ctx context.Context, key string, value []byte) error {
	if err := kv.client.Set(ctx, key, value, kv.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

// Delete removes the snapshot under key.
func (kv *KV) Delete(ctx context.Context, key string) error {
	if err := kv.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "del %s", key)
	}
	return nil
}

// Keys lists keys starting with prefix using SCAN, sorted.
func (kv *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := kv.client.Scan(ctx, 0, escapePattern(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "scan keys")
	}
	// SCAN may return a key more than once.
	sort.Strings(keys)
	return compact(keys), nil
}

// Ping checks the Redis connection.
func (kv *KV) Ping(ctx context.Context) error {
	return kv.client.Ping(ctx).Err()
}

// escapePattern quotes the glob metacharacters of a MATCH pattern.
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func compact(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, k := range sorted[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
