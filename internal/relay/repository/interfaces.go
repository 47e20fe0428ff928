package repository

import (
	"context"
	"errors"
	"time"

	"relay_bot/internal/relay/models"
)

// ErrDuplicate 同一条源消息已在队列中
var ErrDuplicate = errors.New("source message already queued")

// QueueRepository 发布队列数据访问接口
// 每个方法都是对存储的单次原子操作，调用方无需加锁
type QueueRepository interface {
	// Enqueue 分配 ID 与发布时间并写入队列
	// 发布时间 = max(now+initialDelay, 上一次分配的时间+spacing)，由存储原子计算
	Enqueue(ctx context.Context, item *models.QueuedItem, now time.Time, initialDelay, spacing time.Duration) error

	// ListDue 返回 scheduled_for <= now 的全部记录，按 scheduled_for、ID 升序
	ListDue(ctx context.Context, now time.Time) ([]*models.QueuedItem, error)

	// Delete 删除一条记录，不存在时不报错
	Delete(ctx context.Context, id int64) error

	// RecordFailure 记录一次投递失败（次数、错误、时间），不改变发布时间
	RecordFailure(ctx context.Context, id int64, reason string, at time.Time) error

	// Stats 队列深度、失败条数与下一条发布时间
	Stats(ctx context.Context) (models.QueueStats, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// SettingsRepository 运营配置数据访问接口
type SettingsRepository interface {
	// Get 读取当前配置，不存在时返回空配置
	Get(ctx context.Context) (*models.Settings, error)

	AddSource(ctx context.Context, ref string) error
	RemoveSource(ctx context.Context, ref string) error
	SetTarget(ctx context.Context, ref string) error

	AddBlockedKeyword(ctx context.Context, keyword string) error
	RemoveBlockedKeyword(ctx context.Context, keyword string) error
	AddBlockedType(ctx context.Context, blockType string) error
	RemoveBlockedType(ctx context.Context, blockType string) error

	SetAIEnabled(ctx context.Context, enabled bool) error
	SetAIModel(ctx context.Context, model string) error
}
