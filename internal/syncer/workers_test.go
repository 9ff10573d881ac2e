package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	key int
	seq int
}

func TestUpsertSharded_SameKeyKeepsOrder(t *testing.T) {
	items := []item{{1, 0}, {5, 1}, {1, 2}, {2, 3}, {1, 4}, {5, 5}}

	var mu sync.Mutex
	seen := make(map[int][]int)

	n, err := upsertSharded(context.Background(), 4, items,
		func(i item) int { return i.key },
		func(ctx context.Context, i item) error {
			mu.Lock()
			defer mu.Unlock()
			seen[i.key] = append(seen[i.key], i.seq)
			return nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, len(items), n)
	assert.Equal(t, []int{0, 2, 4}, seen[1])
	assert.Equal(t, []int{1, 5}, seen[5])
}

func TestUpsertSharded_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	items := []item{{1, 0}, {1, 1}, {1, 2}}

	n, err := upsertSharded(context.Background(), 1, items,
		func(i item) int { return i.key },
		func(ctx context.Context, i item) error {
			if i.seq == 1 {
				return boom
			}
			return nil
		},
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestUpsertSharded_ParallelError(t *testing.T) {
	boom := errors.New("boom")
	items := []item{{0, 0}, {1, 1}, {2, 2}, {3, 3}}

	n, err := upsertSharded(context.Background(), 4, items,
		func(i item) int { return i.key },
		func(ctx context.Context, i item) error {
			if i.key == 2 {
				return boom
			}
			return nil
		},
	)
	assert.ErrorIs(t, err, boom)
	assert.Less(t, n, len(items))
}
