package idempotency

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stockwise/stockwise-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Hour), mr
}

func TestStore_FirstRequestAcquires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	stored, acquired, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Nil(t, stored)
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"key-1"))
}

func TestStore_InFlightDuplicateConflicts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)

	_, acquired, err := s.Begin(ctx, "key-1", "fp-1")
	assert.False(t, acquired)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestStore_CompletedRequestReplays(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "key-1", "fp-1", []byte(`{"batch_id":"b1"}`)))

	stored, acquired, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.JSONEq(t, `{"batch_id":"b1"}`, string(stored))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"key-1"))
}

func TestStore_DifferentRequestUnderSameKeyIsRefused(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)

	_, acquired, err := s.Begin(ctx, "key-1", "fp-2")
	assert.False(t, acquired)
	assert.True(t, errors.Is(err, errors.ErrPrecondition))

	require.NoError(t, s.Complete(ctx, "key-1", "fp-1", []byte(`{"batch_id":"b1"}`)))

	stored, acquired, err := s.Begin(ctx, "key-1", "fp-2")
	assert.False(t, acquired)
	assert.Nil(t, stored)
	assert.True(t, errors.Is(err, errors.ErrPrecondition))
}

func TestStore_ReleaseAllowsRetry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "key-1"))

	_, acquired, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestStore_ExpiredKeyIsReusable(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	_, acquired, err := s.Begin(ctx, "key-1", "fp-1")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestStore_NilAndEmptyKey(t *testing.T) {
	var s *Store
	_, acquired, err := s.Begin(context.Background(), "key-1", "fp-1")
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.NoError(t, s.Complete(context.Background(), "key-1", "fp-1", nil))
	assert.Equal(t, "disabled", s.Health(context.Background())["status"])

	store, _ := newTestStore(t)
	_, acquired, err = store.Begin(context.Background(), "", "fp-1")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestStore_UnavailableRedis(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, _, err := s.Begin(context.Background(), "key-1", "fp-1")
	assert.True(t, errors.Is(err, errors.ErrStorage))
	assert.Equal(t, "down", s.Health(context.Background())["status"])
}
