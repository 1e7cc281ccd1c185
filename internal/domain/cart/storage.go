package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// StorageName is the fixed name every cart slot key is derived from.
const StorageName = "food-cart-storage"

// ErrSnapshotNotFound is returned by Storage.Load when the slot is empty.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Storage is a durable key-value slot holding serialized cart snapshots.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Key returns the storage key of the cart with the given id.
func Key(cartID string) string {
	return StorageName + ":" + cartID
}

// KeyPrefix is the prefix shared by every cart key.
func KeyPrefix() string {
	return StorageName + ":"
}
