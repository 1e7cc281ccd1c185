package cart

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Store is the only writer of cart state. Each operation loads the snapshot
// of one cart, applies the change and writes the snapshot back. Operations
// on the same cart id are serialized within the process; concurrent writers
// in other processes follow last-writer-wins on the storage slot.
type Store struct {
	storage   Storage
	locks     *keyedMutex
	mutations metric.Int64Counter
}

// NewStore creates a Store persisting through storage. A nil meter provider
// disables metrics.
func NewStore(storage Storage, mp metric.MeterProvider) (*Store, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	mutations, err := mp.Meter("github.com/xenking/food-cart/internal/domain/cart").Int64Counter(
		"cart.mutations",
		metric.WithDescription("Number of persisted cart mutations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	return &Store{
		storage:   storage,
		locks:     newKeyedMutex(),
		mutations: mutations,
	}, nil
}

// Get returns the cart with the given id. A cart that was never written is
// returned empty.
func (s *Store) Get(ctx context.Context, cartID string) (*Cart, error) {
	unlock := s.locks.Lock(cartID)
	defer unlock()

	return s.load(ctx, cartID)
}

// Add adds one unit of item to the cart.
func (s *Store) Add(ctx context.Context, cartID string, item LineItem) (*Cart, error) {
	return s.Update(ctx, cartID, "add", func(c *Cart) bool {
		c.Add(item)
		return true
	})
}

// Remove deletes the whole line for productID. Removing an absent line is
// a no-op and does not touch storage.
func (s *Store) Remove(ctx context.Context, cartID, productID string) (*Cart, error) {
	return s.Update(ctx, cartID, "remove", func(c *Cart) bool {
		return c.Remove(productID)
	})
}

// Decrement takes one unit off the line for productID.
func (s *Store) Decrement(ctx context.Context, cartID, productID string) (*Cart, error) {
	return s.Update(ctx, cartID, "decrement", func(c *Cart) bool {
		return c.Decrement(productID)
	})
}

// Clear persists an empty snapshot without reading the old one, so it also
// recovers a cart whose snapshot no longer decodes.
func (s *Store) Clear(ctx context.Context, cartID string) error {
	unlock := s.locks.Lock(cartID)
	defer unlock()

	if err := s.storage.Save(ctx, Key(cartID), EncodeSnapshot(New())); err != nil {
		return errors.Wrapf(err, "save cart %s", cartID)
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "clear")))
	return nil
}

// Total returns the exact cart total.
func (s *Store) Total(ctx context.Context, cartID string) (decimal.Decimal, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Total(), nil
}

// Update applies fn to the cart under the cart lock and persists the result
// when fn reports a change. op names the mutation in metrics.
func (s *Store) Update(ctx context.Context, cartID, op string, fn func(c *Cart) bool) (*Cart, error) {
	unlock := s.locks.Lock(cartID)
	defer unlock()

	c, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !fn(c) {
		return c, nil
	}
	if err := s.storage.Save(ctx, Key(cartID), EncodeSnapshot(c)); err != nil {
		return nil, errors.Wrapf(err, "save cart %s", cartID)
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	return c, nil
}

func (s *Store) load(ctx context.Context, cartID string) (*Cart, error) {
	data, err := s.storage.Load(ctx, Key(cartID))
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return New(), nil
		}
		return nil, errors.Wrapf(err, "load cart %s", cartID)
	}
	c, err := DecodeSnapshot(data)
	if err != nil {
		return nil, errors.Wrapf(err, "cart %s", cartID)
	}
	return c, nil
}

// keyedMutex hands out one mutex per key and forgets it once no goroutine
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
