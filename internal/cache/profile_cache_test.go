package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"school-chat/internal/models"
)

type countingSource struct {
	calls int
}

func (s *countingSource) PublicProfiles(_ context.Context, ids []int) (map[int]models.PublicProfile, error) {
	s.calls++
	out := map[int]models.PublicProfile{}
	for _, id := range ids {
		out[id] = models.PublicProfile{ID: id, FullName: "user"}
	}
	return out, nil
}

func TestDisabledCachePassesThrough(t *testing.T) {
	src := &countingSource{}
	c := NewProfileCache(nil, src, time.Minute, nil)

	got, err := c.PublicProfiles(context.Background(), []int{1, 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, src.calls)
}

func TestUnreachableRedisFallsBack(t *testing.T) {
	opts, err := Options("redis://127.0.0.1:1/0")
	require.NoError(t, err)
	opts.MaxRetries = -1
	opts.DialTimeout = 100 * time.Millisecond
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	src := &countingSource{}
	c := NewProfileCache(rdb, src, time.Minute, nil)

	got, err := c.PublicProfiles(context.Background(), []int{7})
	require.NoError(t, err)
	require.Equal(t, models.PublicProfile{ID: 7, FullName: "user"}, got[7])
	require.Equal(t, 1, src.calls)
}

func TestOptions(t *testing.T) {
	opts, err := Options("")
	require.NoError(t, err)
	require.Nil(t, opts)

	_, err = Options("http://not-redis")
	require.Error(t, err)
}
