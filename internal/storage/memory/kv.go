// Package memory provides an in-process cart snapshot storage. Snapshots do
// not survive a restart; it backs tests and single-node development setups.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/xenking/food-cart/internal/domain/cart"
)

var _ cart.Storage = (*KV)(nil)

// KV is a map-backed cart.Storage safe for concurrent use.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewKV returns an empty KV.
func NewKV() *KV {
	return &KV{data: make(map[string][]byte)}
}

// Load returns a copy of the value stored under key.
func (kv *KV) Load(_ context.Context, key string) ([]byte, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	v, ok := kv.data[key]
	if !ok {
		return nil, cart.ErrSnapshotNotFound
	}
	return slices.Clone(v), nil
}

// Save stores a copy of value under key.
func (kv *KV) Save(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.data[key] = slices.Clone(value)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.data, key)
	return nil
}

// Keys returns the stored keys with the given prefix in lexical order.
func (kv *KV) Keys(_ context.Context, prefix string) ([]string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	var keys []string
	for k := range kv.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Ping always succeeds.
func (kv *KV) Ping(context.Context) error {
	return nil
}
