package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLockerAcquireRelease(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()
	l := NewLocker(rdb, time.Minute, zap.NewNop())

	assert.True(t, l.Acquire(ctx, "process", 7))
	assert.False(t, l.Acquire(ctx, "process", 7))
	assert.True(t, l.Acquire(ctx, "process", 8))

	l.Release(ctx, "process", 7)
	assert.True(t, l.Acquire(ctx, "process", 7))

	mr.FastForward(2 * time.Minute)
	assert.True(t, l.Acquire(ctx, "process", 8))
}

func TestLockerAllowsProcessingWhenRedisFails(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectSetNX("lock:process:7", 1, time.Minute).SetErr(errors.New("connection refused"))

	l := NewLocker(rdb, time.Minute, nil)
	assert.True(t, l.Acquire(context.Background(), "process", 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryCounter(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()
	rc := NewRetryCounter(rdb, time.Hour)
	key := FormatRetryKey("process", 42)
	assert.Equal(t, "retry:process:42", key)

	n, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := int64(1); i <= 3; i++ {
		n, err = rc.IncrementAndGet(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(30 * time.Minute)
	n, err = rc.IncrementAndGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, time.Hour, mr.TTL(key))

	require.NoError(t, rc.Reset(ctx, key))
	n, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisTTLStore(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()
	s := NewRedisTTLStore(rdb, "batch")

	require.NoError(t, s.Put(ctx, "abc", []byte(`{"ok":true}`), time.Minute))
	assert.True(t, mr.Exists("batch:abc"))

	v, found, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"ok":true}`, string(v))

	v, found, err = s.Take(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotEmpty(t, v)

	_, found, err = s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, "short", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)
	_, found, err = s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Error(t, s.Put(ctx, "zero", []byte("x"), 0))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"no rows", fmt.Errorf("load: %w", pgx.ErrNoRows), false, "not_found"},
		{"json", &json.SyntaxError{}, false, "json_decode_error"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"duplicate", errors.New("ERROR: duplicate key value violates unique constraint"), false, "duplicate_key"},
		{"connection", errors.New("connection reset by peer"), true, "db_connection_error"},
		{"unknown", errors.New("weird"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, kind := ClassifyError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.kind, kind)
		})
	}

	assert.True(t, ShouldRetry(1, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(0, 3, false))
}
