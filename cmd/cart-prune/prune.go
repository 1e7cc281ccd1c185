package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/domain/catalog"
)

const (
	bloomFPR      = 0.001
	maxLineSize   = 1 << 20
	progressEvery = 1000
)

// newFilter returns an empty bloom filter sized for n meal ids.
func newFilter(n int) *bloom.BloomFilter {
	return bloom.NewWithEstimates(uint(max(n, 1)), bloomFPR)
}

// filterFromMeals builds the live-meal filter from a catalog listing.
func filterFromMeals(meals []catalog.Meal) *bloom.BloomFilter {
	filter := newFilter(len(meals))
	for _, m := range meals {
		filter.AddString(m.ID)
	}
	return filter
}

// filterFromDump builds the live-meal filter from a gzip JSON-lines dump of
// meal records. Blank lines are skipped.
func filterFromDump(ctx context.Context, path string) (*bloom.BloomFilter, int, error) {
	var ids []string
	if err := streamGzFile(ctx, path, func(line []byte) error {
		id, err := mealID(line)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	}); err != nil {
		return nil, 0, err
	}

	filter := newFilter(len(ids))
	for _, id := range ids {
		filter.AddString(id)
	}
	return filter, len(ids), nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-blank line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	var n int
	for scanner.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return errors.Wrapf(err, "%s:%d", path, n)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// mealID extracts the "id" field of a meal record.
func mealID(line []byte) (string, error) {
	var id string
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return errors.Wrap(err, "id")
		}
		id = v
		return nil
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("meal without id")
	}
	return id, nil
}

// report counts what a prune run did.
type report struct {
	Carts   int64
	Changed int64
	Removed int64
	Failed  int64
}

// pruner drops line items whose meal is not in the live filter from every
// stored cart.
type pruner struct {
	lg      *zap.Logger
	storage cart.Storage
	store   *cart.Store
	live    *bloom.BloomFilter
	dryRun  bool
	workers int

	carts   atomic.Int64
	changed atomic.Int64
	removed atomic.Int64
	failed  atomic.Int64
}

func (p *pruner) Run(ctx context.Context) (report, error) {
	keys, err := p.storage.Keys(ctx, cart.KeyPrefix())
	if err != nil {
		return report{}, errors.Wrap(err, "list carts")
	}
	p.lg.Info("Pruning carts", zap.Int("carts", len(keys)), zap.Bool("dry_run", p.dryRun))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.workers, 1))
	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		cartID := strings.TrimPrefix(key, cart.KeyPrefix())
		g.Go(func() error {
			return p.pruneCart(gctx, cartID)
		})
	}
	if err := g.Wait(); err != nil {
		return p.report(), err
	}
	return p.report(), ctx.Err()
}

// pruneCart rewrites one cart. Carts that fail to load are logged and
// skipped so one corrupt snapshot does not stop the run.
func (p *pruner) pruneCart(ctx context.Context, cartID string) error {
	var removed int
	keep := func(item cart.LineItem) bool {
		return p.live.TestString(item.ID)
	}

	var err error
	if p.dryRun {
		var c *cart.Cart
		if c, err = p.store.Get(ctx, cartID); err == nil {
			removed = c.Retain(keep)
		}
	} else {
		_, err = p.store.Update(ctx, cartID, "prune", func(c *cart.Cart) bool {
			removed = c.Retain(keep)
			return removed > 0
		})
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.lg.Warn("Skipping cart", zap.String("cart_id", cartID), zap.Error(err))
		p.failed.Add(1)
		return nil
	}

	if n := p.carts.Add(1); n%progressEvery == 0 {
		p.lg.Info("Prune progress", zap.Int64("carts", n))
	}
	if removed > 0 {
		p.changed.Add(1)
		p.removed.Add(int64(removed))
		p.lg.Debug("Pruned cart", zap.String("cart_id", cartID), zap.Int("removed", removed))
	}
	return nil
}

func (p *pruner) report() report {
	return report{
		Carts:   p.carts.Load(),
		Changed: p.changed.Load(),
		Removed: p.removed.Load(),
		Failed:  p.failed.Load(),
	}
}
