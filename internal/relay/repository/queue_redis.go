package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"relay_bot/internal/relay/models"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "relay:queue:"
	sourceKeyTTL       = 7 * 24 * time.Hour
)

// enqueueScript 去重、分配序号与发布时间、写入记录，整体原子执行
// KEYS: seq, last, due, src
// ARGV: now_ms, delay_ms, spacing_ms, payload, item_prefix, src_ttl_seconds
var enqueueScript = redis.NewScript(`
if not redis.call('SET', KEYS[4], '1', 'NX', 'EX', ARGV[6]) then
  return {-1, 0}
end
local slot = tonumber(ARGV[1]) + tonumber(ARGV[2])
local last = tonumber(redis.call('GET', KEYS[2]) or '0')
if last > 0 and last + tonumber(ARGV[3]) > slot then
  slot = last + tonumber(ARGV[3])
end
local id = redis.call('INCR', KEYS[1])
local slotText = string.format('%d', slot)
redis.call('SET', KEYS[2], slotText)
redis.call('HSET', ARGV[5] .. id, 'payload', ARGV[4], 'scheduled_for', slotText, 'attempts', '0')
redis.call('ZADD', KEYS[3], slotText, string.format('%020d', id))
return {id, slot}
`)

// recordFailureScript 检查记录存在与写入失败信息在同一脚本内完成
// KEYS: item, failing
// ARGV: id, reason, at_ms
var recordFailureScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
redis.call('HSET', KEYS[1], 'last_error', ARGV[2], 'last_attempt_at', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// RedisQueueRepository 发布队列（Redis 实现）
// due 为按发布时间排序的 ZSET，成员为补零的 ID，保证同分值时按 ID 排序
type RedisQueueRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisQueueRepository 创建 Redis 发布队列
func NewRedisQueueRepository(client *redis.Client) QueueRepository {
	return &RedisQueueRepository{
		client: client,
		prefix: defaultRedisPrefix,
	}
}

func (r *RedisQueueRepository) seqKey() string     { return r.prefix + "seq" }
func (r *RedisQueueRepository) lastKey() string    { return r.prefix + "last" }
func (r *RedisQueueRepository) dueKey() string     { return r.prefix + "due" }
func (r *RedisQueueRepository) failingKey() string { return r.prefix + "failing" }
func (r *RedisQueueRepository) itemPrefix() string { return r.prefix + "item:" }

func (r *RedisQueueRepository) itemKey(id int64) string {
	return r.itemPrefix() + strconv.FormatInt(id, 10)
}

func (r *RedisQueueRepository) sourceKey(chatID, messageID int64) string {
	return fmt.Sprintf("%ssrc:%d:%d", r.prefix, chatID, messageID)
}

// Enqueue 写入队列
func (r *RedisQueueRepository) Enqueue(ctx context.Context, item *models.QueuedItem, now time.Time, initialDelay, spacing time.Duration) error {
	item.CreatedAt = now
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queued item: %w", err)
	}

	keys := []string{r.seqKey(), r.lastKey(), r.dueKey(), r.sourceKey(item.SourceChatID, item.SourceMessageID)}
	args := []interface{}{
		now.UnixMilli(),
		initialDelay.Milliseconds(),
		spacing.Milliseconds(),
		string(payload),
		r.itemPrefix(),
		int64(sourceKeyTTL / time.Second),
	}

	res, err := enqueueScript.Run(ctx, r.client, keys, args...).Int64Slice()
	if err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("unexpected enqueue script result: %v", res)
	}
	if res[0] < 0 {
		return ErrDuplicate
	}

	item.ID = res[0]
	item.ScheduledFor = time.UnixMilli(res[1]).UTC()
	return nil
}

// ListDue 列出到期记录
func (r *RedisQueueRepository) ListDue(ctx context.Context, now time.Time) ([]*models.QueuedItem, error) {
	members, err := r.client.ZRangeByScore(ctx, r.dueKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due items: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(members))
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, member := range members {
			id, err := strconv.ParseInt(member, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid queue member %q: %w", member, err)
			}
			ids = append(ids, id)
			cmds = append(cmds, pipe.HGetAll(ctx, r.itemKey(id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load due items: %w", err)
	}

	items := make([]*models.QueuedItem, 0, len(cmds))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// 记录已被删除，ZSET 中残留的成员
			continue
		}
		item, err := decodeRedisItem(ids[i], fields)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, nil
}

func decodeRedisItem(id int64, fields map[string]string) (*models.QueuedItem, error) {
	var item models.QueuedItem
	if err := json.Unmarshal([]byte(fields["payload"]), &item); err != nil {
		return nil, fmt.Errorf("failed to decode queued item %d: %w", id, err)
	}

	item.ID = id

	scheduledMs, err := strconv.ParseInt(fields["scheduled_for"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduled_for for item %d: %w", id, err)
	}
	item.ScheduledFor = time.UnixMilli(scheduledMs).UTC()

	if attempts, err := strconv.Atoi(fields["attempts"]); err == nil {
		item.Attempts = attempts
	}
	item.LastError = fields["last_error"]
	if raw := fields["last_attempt_at"]; raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			at := time.UnixMilli(ms).UTC()
			item.LastAttemptAt = &at
		}
	}

	return &item, nil
}

// Delete 删除记录（幂等）
func (r *RedisQueueRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.dueKey(), redisMember(id))
		pipe.SRem(ctx, r.failingKey(), id)
		pipe.Del(ctx, r.itemKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete queued item %d: %w", id, err)
	}
	return nil
}

// RecordFailure 记录投递失败；记录已删除时不做任何写入
func (r *RedisQueueRepository) RecordFailure(ctx context.Context, id int64, reason string, at time.Time) error {
	keys := []string{r.itemKey(id), r.failingKey()}
	if err := recordFailureScript.Run(ctx, r.client, keys, id, reason, at.UnixMilli()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to record failure for item %d: %w", id, err)
	}
	return nil
}

// Stats 队列统计
func (r *RedisQueueRepository) Stats(ctx context.Context) (models.QueueStats, error) {
	var (
		depthCmd   *redis.IntCmd
		failingCmd *redis.IntCmd
		nextCmd    *redis.ZSliceCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		depthCmd = pipe.ZCard(ctx, r.dueKey())
		failingCmd = pipe.SCard(ctx, r.failingKey())
		nextCmd = pipe.ZRangeWithScores(ctx, r.dueKey(), 0, 0)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.QueueStats{}, fmt.Errorf("failed to load queue stats: %w", err)
	}

	stats := models.QueueStats{
		Depth:   depthCmd.Val(),
		Failing: failingCmd.Val(),
	}
	if next := nextCmd.Val(); len(next) > 0 {
		at := time.UnixMilli(int64(next[0].Score)).UTC()
		stats.NextScheduledFor = &at
	}
	return stats, nil
}

// EnsureIndexes Redis 无需索引
func (r *RedisQueueRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

func redisMember(id int64) string {
	return fmt.Sprintf("%020d", id)
}
