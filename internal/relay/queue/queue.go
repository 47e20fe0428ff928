package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay_bot/internal/metrics"
	"relay_bot/internal/relay/models"
	"relay_bot/internal/relay/repository"
)

// ErrUnclassifiable 消息不属于任何可发布的内容类型
var ErrUnclassifiable = errors.New("inbound message has no publishable content")

// Queue 发布队列
// 所有操作都是对存储的单次原子操作，排期由存储计算
type Queue struct {
	repo         repository.QueueRepository
	spacing      time.Duration
	initialDelay time.Duration
	now          func() time.Time
}

// New 创建发布队列
func New(repo repository.QueueRepository, spacing, initialDelay time.Duration) *Queue {
	return &Queue{
		repo:         repo,
		spacing:      spacing,
		initialDelay: initialDelay,
		now:          time.Now,
	}
}

// Enqueue 分类并入队，caption 为（可能经 AI 改写的）文本
// 同一来源消息重复入队返回 repository.ErrDuplicate
func (q *Queue) Enqueue(ctx context.Context, in *models.Inbound, caption string) (*models.QueuedItem, error) {
	content, ok := models.Classify(in)
	if !ok {
		return nil, ErrUnclassifiable
	}

	item := &models.QueuedItem{
		SourceMessageID: in.MessageID,
		SourceChatID:    in.ChatID,
		Kind:            content.Kind,
		MediaRef:        content.MediaRef,
		Caption:         caption,
	}

	if err := q.repo.Enqueue(ctx, item, q.now().UTC(), q.initialDelay, q.spacing); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to enqueue %s from chat %d: %w", content.Kind, in.ChatID, err)
	}

	return item, nil
}

// DueItems 本轮全部到期记录，按 scheduled_for、ID 升序
func (q *Queue) DueItems(ctx context.Context, now time.Time) ([]*models.QueuedItem, error) {
	return q.repo.ListDue(ctx, now)
}

// Remove 删除一条记录（幂等）
func (q *Queue) Remove(ctx context.Context, id int64) error {
	return q.repo.Delete(ctx, id)
}

// RecordFailure 记录投递失败，记录本身保留等待下轮重试
func (q *Queue) RecordFailure(ctx context.Context, id int64, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return q.repo.RecordFailure(ctx, id, reason, q.now().UTC())
}

// Stats 队列状态
func (q *Queue) Stats(ctx context.Context) (models.QueueStats, error) {
	stats, err := q.repo.Stats(ctx)
	if err != nil {
		return models.QueueStats{}, err
	}
	metrics.QueueDepth.Set(float64(stats.Depth))
	return stats, nil
}

// Spacing 相邻发布的最小间隔
func (q *Queue) Spacing() time.Duration {
	return q.spacing
}
