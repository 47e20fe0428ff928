package ingest

import (
	"context"
	"errors"
	"time"

	"relay_bot/internal/logger"
	"relay_bot/internal/metrics"
	"relay_bot/internal/relay/filter"
	"relay_bot/internal/relay/models"
	"relay_bot/internal/relay/queue"
	"relay_bot/internal/relay/repository"
	"relay_bot/internal/relay/settings"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	recentSize = 4096
	recentTTL  = time.Hour
)

// Outcome 入站消息的处理结果
type Outcome string

const (
	OutcomeQueued         Outcome = "queued"
	OutcomeNotSource      Outcome = "not_source"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeBlockedKeyword Outcome = "blocked_keyword"
	OutcomeBlockedType    Outcome = "blocked_type"
	OutcomeNoContent      Outcome = "no_content"
	OutcomeError          Outcome = "error"
)

// SettingsSource 读取当前配置快照
type SettingsSource interface {
	Current() *settings.Snapshot
}

// Transformer 生成入队文本
type Transformer interface {
	Transform(ctx context.Context, ai models.AISettings, content models.Content) string
}

// Enqueuer 写入发布队列
type Enqueuer interface {
	Enqueue(ctx context.Context, in *models.Inbound, caption string) (*models.QueuedItem, error)
}

// Pipeline 来源判断 → 过滤 → 改写 → 入队
type Pipeline struct {
	settings    SettingsSource
	transformer Transformer
	queue       Enqueuer
	recent      *expirable.LRU[string, struct{}]
}

// NewPipeline 创建入站处理流程
func NewPipeline(settings SettingsSource, transformer Transformer, queue Enqueuer) *Pipeline {
	return &Pipeline{
		settings:    settings,
		transformer: transformer,
		queue:       queue,
		recent:      expirable.NewLRU[string, struct{}](recentSize, nil, recentTTL),
	}
}

// Handle 处理一条入站消息
// 可并发调用；同一条消息重复到达时只入队一次
func (p *Pipeline) Handle(ctx context.Context, in *models.Inbound) (Outcome, error) {
	outcome, err := p.handle(ctx, in)
	metrics.InboundTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, err
}

func (p *Pipeline) handle(ctx context.Context, in *models.Inbound) (Outcome, error) {
	if in == nil {
		return OutcomeNoContent, nil
	}

	snap := p.settings.Current()
	if !snap.IsSource(in.ChatID, in.ChatUsername) {
		return OutcomeNotSource, nil
	}

	key := in.SourceKey()
	if p.recent.Contains(key) {
		logger.L().Debugf("Inbound message already seen: source=%s", key)
		return OutcomeDuplicate, nil
	}

	switch filter.Check(snap, in) {
	case filter.ReasonBlockedKeyword:
		logger.L().Infof("Inbound message dropped by keyword filter: source=%s", key)
		return OutcomeBlockedKeyword, nil
	case filter.ReasonBlockedType:
		logger.L().Infof("Inbound message dropped by type filter: source=%s", key)
		return OutcomeBlockedType, nil
	case filter.ReasonNoContent:
		logger.L().Debugf("Inbound message has no relayable content: source=%s", key)
		return OutcomeNoContent, nil
	}

	content, ok := models.Classify(in)
	if !ok {
		return OutcomeNoContent, nil
	}

	caption := p.transformer.Transform(ctx, snap.AI, content)

	item, err := p.queue.Enqueue(ctx, in, caption)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			p.recent.Add(key, struct{}{})
			return OutcomeDuplicate, nil
		case errors.Is(err, queue.ErrUnclassifiable):
			return OutcomeNoContent, nil
		default:
			logger.L().Errorf("Failed to enqueue inbound message: source=%s err=%v", key, err)
			return OutcomeError, err
		}
	}

	p.recent.Add(key, struct{}{})
	logger.L().Infof("Queued item: item_id=%d source=%s kind=%s scheduled_for=%s",
		item.ID, key, item.Kind, item.ScheduledFor.Format(time.RFC3339))
	return OutcomeQueued, nil
}
