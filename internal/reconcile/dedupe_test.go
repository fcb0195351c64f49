package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeduper(t *testing.T) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisDeduper(client, time.Hour), mr
}

func TestRedisDeduper_MarkAndSeen(t *testing.T) {
	ctx := context.Background()
	d, mr := newTestDeduper(t)

	seen, err := d.Seen(ctx, "PAYMENT_RECEIVED:pay_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "PAYMENT_RECEIVED:pay_1"))

	seen, err = d.Seen(ctx, "PAYMENT_RECEIVED:pay_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("clinicflow:webhook:PAYMENT_RECEIVED:pay_1"))

	mr.FastForward(2 * time.Hour)
	seen, err = d.Seen(ctx, "PAYMENT_RECEIVED:pay_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestConnect_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	client.Close()
}
