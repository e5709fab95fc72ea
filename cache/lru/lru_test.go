package lru

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	fetch "github.com/TimothyKlim/fetch"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSource) Name() string { return "Ints" }

func (s *countingSource) FetchOne(ctx context.Context, id int) fetch.Query[fetch.Option[int]] {
	return fetch.Later[fetch.Option[int]]{Thunk: func() (fetch.Option[int], error) {
		s.mu.Lock()
		s.calls++
		s.mu.Unlock()
		return fetch.Some(id), nil
	}}
}

func (s *countingSource) FetchMany(ctx context.Context, ids []int) fetch.Query[map[int]int] {
	return fetch.Later[map[int]int]{Thunk: func() (map[int]int, error) {
		s.mu.Lock()
		s.calls++
		s.mu.Unlock()
		out := make(map[int]int, len(ids))
		for _, id := range ids {
			out[id] = id
		}
		return out, nil
	}}
}

func TestSharedAcrossExecutions(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)
	src := &countingSource{}

	for i := 0; i < 3; i++ {
		v, err := fetch.Run(context.Background(), fetch.New[int, int](src, 1), fetch.WithCache(c))
		require.NoError(t, err)
		require.Equal(t, 1, v)
	}
	require.Equal(t, 1, src.calls)
	require.Equal(t, 1, c.Len())
}

func TestEvictionForcesRefetch(t *testing.T) {
	c, err := New(1)
	require.NoError(t, err)
	src := &countingSource{}

	_, err = fetch.Run(context.Background(), fetch.New[int, int](src, 1), fetch.WithCache(c))
	require.NoError(t, err)
	_, err = fetch.Run(context.Background(), fetch.New[int, int](src, 2), fetch.WithCache(c))
	require.NoError(t, err)
	// Entry 1 was evicted by entry 2.
	_, err = fetch.Run(context.Background(), fetch.New[int, int](src, 1), fetch.WithCache(c))
	require.NoError(t, err)
	require.Equal(t, 3, src.calls)
}

func TestMergeBatch(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)
	c.Merge(map[fetch.CacheKey]any{
		{Source: "Ints", Identity: "1"}: 10,
		{Source: "Ints", Identity: "2"}: 20,
	})
	v, ok := c.Get(fetch.CacheKey{Source: "Ints", Identity: "2"})
	require.True(t, ok)
	require.Equal(t, 20, v)
}
