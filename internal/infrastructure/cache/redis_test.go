package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Runs against a real server when REDIS_ADDR is set, e.g. localhost:6379
func TestRedisIndex_UpsertAndQuery(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "scribe_test:" + time.Now().Format("20060102150405.000000")
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		_ = client.Close()
	})

	idx := NewRedisIndex(client, prefix, zap.NewNop())

	require.NoError(t, idx.Upsert(ctx, "a", doc("a", "Symptoms: fever, cough", "flu")))
	require.NoError(t, idx.Upsert(ctx, "b", doc("b", "Symptoms: fever", "viral fever")))
	require.NoError(t, idx.Upsert(ctx, "c", doc("c", "Symptoms: rash", "eczema")))

	got, err := idx.Query(ctx, "fever cough", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SessionID)
	assert.Equal(t, []string{"flu"}, got[0].Diagnosis)
	assert.Equal(t, "b", got[1].SessionID)

	got, err = idx.Query(ctx, "fever cough", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// replacing a document drops its old terms
	require.NoError(t, idx.Upsert(ctx, "a", doc("a", "Symptoms: rash", "eczema")))
	got, err = idx.Query(ctx, "cough", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = idx.Query(ctx, "rash", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SessionID)
	assert.Equal(t, []string{"eczema"}, got[0].Diagnosis)

	got, err = idx.Query(ctx, "", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
