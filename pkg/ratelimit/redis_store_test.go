package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ratelimit:10.0.0.1"

func expectHit(mock redismock.ClientMock) *redismock.ExpectedCmd {
	return mock.ExpectEvalSha(hitScript.Hash(), []string{testKey}, 5, time.Minute.Milliseconds())
}

func TestRedisStoreAllowsAttempt(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	expectHit(mock).SetVal(int64(1))

	ok, err := store.Hit(context.Background(), "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreRefusesAttempt(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	expectHit(mock).SetVal(int64(0))

	ok, err := store.Hit(context.Background(), "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreLoadsScriptWhenMissing(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	expectHit(mock).SetErr(errors.New("NOSCRIPT No matching script. Please use EVAL."))
	mock.ExpectEval(hitSource, []string{testKey}, 5, time.Minute.Milliseconds()).SetVal(int64(1))

	ok, err := store.Hit(context.Background(), "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreErrorRefusesAttempt(t *testing.T) {
	client, mock := redismock.NewClientMock()
	logger, hook := test.NewNullLogger()
	limiter := NewLimiter(NewRedisStore(client), 5, time.Minute, logger)

	expectHit(mock).SetErr(errors.New("ERR Error running script: PEXPIRE failed"))

	assert.False(t, limiter.Allow(context.Background(), "10.0.0.1"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "10.0.0.1", hook.LastEntry().Data["address"])
}

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreWindow(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := store.Hit(ctx, "10.0.0.1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}

	ok, err := store.Hit(ctx, "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := mr.Get(testKey)
	require.NoError(t, err)
	assert.Equal(t, "5", count, "refused attempts are not counted")
	assert.Equal(t, time.Minute, mr.TTL(testKey))

	mr.FastForward(time.Minute + time.Millisecond)

	ok, err = store.Hit(ctx, "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	count, err = mr.Get(testKey)
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestRedisStoreRepairsKeyWithoutTTL(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	// a counter stranded without an expiry at the limit
	require.NoError(t, mr.Set(testKey, "5"))

	ok, err := store.Hit(ctx, "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(testKey))

	mr.FastForward(time.Minute + time.Millisecond)

	ok, err = store.Hit(ctx, "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, client.Options().DB)
	_ = client.Close()

	_, err = NewRedisClient("http://localhost")
	assert.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	assert.NoError(t, client.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = ConnectRedis(ctx, "redis://127.0.0.1:1/0")
	assert.Error(t, err)
}
