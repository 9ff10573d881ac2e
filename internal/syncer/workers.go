package syncer

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// upsertSharded calls fn for every item on up to workers goroutines. Items
// with the same key land on the same worker in input order. The first error
// cancels the remaining work; the count of successful calls is returned
// either way.
func upsertSharded[T any](ctx context.Context, workers int, items []T, key func(T) int, fn func(context.Context, T) error) (int, error) {
	if workers <= 1 || len(items) <= 1 {
		for i, item := range items {
			if err := fn(ctx, item); err != nil {
				return i, err
			}
		}
		return len(items), nil
	}

	shards := make([][]T, workers)
	for _, item := range items {
		k := key(item) % workers
		if k < 0 {
			k = -k
		}
		shards[k] = append(shards[k], item)
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		shard := shard
		if len(shard) == 0 {
			continue
		}
		g.Go(func() error {
			for _, item := range shard {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(gctx, item); err != nil {
					return err
				}
				done.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	return int(done.Load()), err
}
