package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"relay_bot/internal/relay/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKeyLayout(t *testing.T) {
	repo := &RedisQueueRepository{prefix: "relay:queue:"}

	assert.Equal(t, "relay:queue:seq", repo.seqKey())
	assert.Equal(t, "relay:queue:due", repo.dueKey())
	assert.Equal(t, "relay:queue:item:12", repo.itemKey(12))
	assert.Equal(t, "relay:queue:src:-100:7", repo.sourceKey(-100, 7))
	assert.Equal(t, "00000000000000000012", redisMember(12))
}

func TestDecodeRedisItem(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fields := map[string]string{
		"payload":         `{"source_chat_id":-100,"source_message_id":7,"content_type":"photo","media_ref":"f1","caption":"c"}`,
		"scheduled_for":   "1714564800000",
		"attempts":        "3",
		"last_error":      "boom",
		"last_attempt_at": "1714564800000",
	}

	item, err := decodeRedisItem(5, fields)
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.ID)
	assert.Equal(t, models.KindPhoto, item.Kind)
	assert.Equal(t, "f1", item.MediaRef)
	assert.True(t, item.ScheduledFor.Equal(at))
	assert.Equal(t, 3, item.Attempts)
	assert.Equal(t, "boom", item.LastError)
	require.NotNil(t, item.LastAttemptAt)

	_, err = decodeRedisItem(6, map[string]string{"payload": "{"})
	assert.Error(t, err)
}

// 需要真实 Redis：REDIS_TEST_URL=redis://localhost:6379/15
func TestRedisQueueRepositoryLive(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	repo := &RedisQueueRepository{client: client, prefix: "relay:test:" + uuid.NewString() + ":"}
	ctx := context.Background()
	defer func() {
		keys, _ := client.Keys(ctx, repo.prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	}()

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := &models.QueuedItem{SourceChatID: -1, SourceMessageID: 1, Kind: models.KindText, Caption: "one"}
	second := &models.QueuedItem{SourceChatID: -1, SourceMessageID: 2, Kind: models.KindText, Caption: "two"}

	require.NoError(t, repo.Enqueue(ctx, first, now, 5*time.Minute, 30*time.Minute))
	require.NoError(t, repo.Enqueue(ctx, second, now, 5*time.Minute, 30*time.Minute))
	assert.True(t, first.ScheduledFor.Equal(now.Add(5*time.Minute)))
	assert.True(t, second.ScheduledFor.Equal(now.Add(35*time.Minute)))

	dup := &models.QueuedItem{SourceChatID: -1, SourceMessageID: 1, Kind: models.KindText}
	assert.True(t, errors.Is(repo.Enqueue(ctx, dup, now, 0, 0), ErrDuplicate))

	due, err := repo.ListDue(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, first.ID, due[0].ID)
	assert.Equal(t, "two", due[1].Caption)

	require.NoError(t, repo.RecordFailure(ctx, first.ID, "timeout", now))
	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Depth)
	assert.Equal(t, int64(1), stats.Failing)

	require.NoError(t, repo.Delete(ctx, first.ID))
	require.NoError(t, repo.Delete(ctx, first.ID))
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Depth)
	assert.Equal(t, int64(0), stats.Failing)

	// 删除后的失败记录不会重建记录，也不计入 failing
	require.NoError(t, repo.RecordFailure(ctx, first.ID, "late failure", now))
	exists, err := client.Exists(ctx, repo.itemKey(first.ID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Failing)

	require.NoError(t, repo.RecordFailure(ctx, second.ID, "chat not found", now))
	fields, err := client.HGetAll(ctx, repo.itemKey(second.ID)).Result()
	require.NoError(t, err)
	assert.Equal(t, "1", fields["attempts"])
	assert.Equal(t, "chat not found", fields["last_error"])
	assert.NotEmpty(t, fields["payload"])
}
