package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisStore_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: unreachable.Addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	s := NewRedisStoreWithClient(client, "")
	defer s.Close()
	ctx := context.Background()

	assert.Equal(t, defaultKeyPrefix, s.keyPrefix)

	_, ok, err := s.Get(ctx, "preview:10")
	assert.Error(t, err)
	assert.False(t, ok)

	assert.Error(t, s.Set(ctx, "preview:10", []byte("x"), time.Minute))
	assert.NoError(t, s.Set(ctx, "preview:10", []byte("x"), 0), "zero ttl never reaches the server")
	assert.Error(t, s.Delete(ctx, "preview:10"))
	assert.Error(t, s.Ping(ctx))
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	_, err := NewRedisStore(unreachable)
	assert.Error(t, err)
}
