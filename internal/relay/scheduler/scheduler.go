package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"relay_bot/internal/logger"
	"relay_bot/internal/metrics"
	"relay_bot/internal/relay/delivery"
	"relay_bot/internal/relay/models"
	"relay_bot/internal/relay/settings"

	"github.com/google/uuid"
)

const (
	defaultInterval        = time.Minute
	defaultDeliveryTimeout = 30 * time.Second
	removeTimeout          = 10 * time.Second
	removeAttempts         = 3
)

// State 调度器状态
type State string

const (
	StateIdle    State = "idle"    // 未配置目标
	StateRunning State = "running" // 有目标，正常投递
)

// SettingsSource 读取当前配置快照
type SettingsSource interface {
	Current() *settings.Snapshot
}

// Queue 调度器使用的队列操作
type Queue interface {
	DueItems(ctx context.Context, now time.Time) ([]*models.QueuedItem, error)
	Remove(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, cause error) error
}

// Deliverer 投递一条记录
type Deliverer interface {
	Deliver(ctx context.Context, target string, item *models.QueuedItem) error
}

// PassResult 单轮执行结果
type PassResult struct {
	ID        string
	State     State
	Due       int
	Delivered int
	Failed    int
	Err       error // 拉取到期记录失败
}

// Scheduler 定时投递到期记录
// 单 goroutine 运行，每轮的网络调用都等待完成，轮次之间不会重叠
type Scheduler struct {
	settings  SettingsSource
	queue     Queue
	deliverer Deliverer
	interval  time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	last PassResult
	at   time.Time
}

// New 创建调度器
func New(settings SettingsSource, queue Queue, deliverer Deliverer, interval, deliveryTimeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}
	return &Scheduler{
		settings:  settings,
		queue:     queue,
		deliverer: deliverer,
		interval:  interval,
		timeout:   deliveryTimeout,
		now:       time.Now,
		last:      PassResult{State: StateIdle},
	}
}

// Run 立即执行一轮，之后每个周期执行一轮，直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) error {
	logger.L().Infof("Relay scheduler started: interval=%s delivery_timeout=%s", s.interval, s.timeout)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunPass(ctx)

		select {
		case <-ctx.Done():
			logger.L().Info("Relay scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunPass 执行一轮投递；队列或配置读取中的 panic 也只结束本轮
func (s *Scheduler) RunPass(ctx context.Context) (result PassResult) {
	result = PassResult{ID: uuid.NewString()}
	defer s.record(&result)
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic during pass: %v", r)
			metrics.SchedulerPassesTotal.WithLabelValues("error").Inc()
			logger.L().Errorf("Relay scheduler pass panic recovered: pass=%s err=%v", result.ID, result.Err)
		}
	}()

	if ctx.Err() != nil {
		result.State = s.LastPass().State
		return result
	}

	snap := s.settings.Current()
	if !snap.HasTarget() {
		result.State = StateIdle
		metrics.SchedulerPassesTotal.WithLabelValues(string(StateIdle)).Inc()
		logger.L().Debugf("Relay scheduler idle: no target configured (pass=%s)", result.ID)
		return result
	}
	result.State = StateRunning
	target := snap.Target

	items, err := s.queue.DueItems(ctx, s.now().UTC())
	if err != nil {
		result.Err = err
		metrics.SchedulerPassesTotal.WithLabelValues("error").Inc()
		logger.L().Errorf("Relay scheduler failed to fetch due items: pass=%s err=%v", result.ID, err)
		return result
	}
	metrics.SchedulerPassesTotal.WithLabelValues(string(StateRunning)).Inc()

	result.Due = len(items)
	if len(items) == 0 {
		return result
	}
	logger.L().Infof("Relay scheduler found %d due items: pass=%s target=%s", len(items), result.ID, target)

	for _, item := range items {
		if ctx.Err() != nil {
			logger.L().Warnf("Relay scheduler pass aborted: pass=%s err=%v", result.ID, ctx.Err())
			return result
		}

		if err := s.deliverOne(ctx, target, item); err != nil {
			result.Failed++
			if errors.Is(err, delivery.ErrUnknownContentKind) {
				logger.L().Errorf("Queued item has unsupported kind: pass=%s item_id=%d kind=%s err=%v", result.ID, item.ID, item.Kind, err)
			} else {
				logger.L().Warnf("Delivery failed: pass=%s item_id=%d kind=%s attempts=%d err=%v", result.ID, item.ID, item.Kind, item.Attempts+1, err)
			}
			if recErr := s.queue.RecordFailure(ctx, item.ID, err); recErr != nil {
				logger.L().Errorf("Failed to record delivery failure: item_id=%d err=%v", item.ID, recErr)
			}
			continue
		}

		if err := s.remove(ctx, item.ID); err != nil {
			// 已投递但未能删除，下一轮可能重复投递
			logger.L().Errorf("Delivered item could not be removed: pass=%s item_id=%d err=%v", result.ID, item.ID, err)
		}
		result.Delivered++
		logger.L().Infof("Delivered item: pass=%s item_id=%d kind=%s", result.ID, item.ID, item.Kind)
	}

	logger.L().Infof("Relay scheduler pass completed: pass=%s due=%d delivered=%d failed=%d", result.ID, result.Due, result.Delivered, result.Failed)
	return result
}

// deliverOne 单条投递，超时与 panic 都按失败处理
func (s *Scheduler) deliverOne(ctx context.Context, target string, item *models.QueuedItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during delivery: %v", r)
		}
	}()

	deliverCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.deliverer.Deliver(deliverCtx, target, item)
}

func (s *Scheduler) remove(ctx context.Context, id int64) error {
	var err error
	for attempt := 0; attempt < removeAttempts; attempt++ {
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
		err = s.queue.Remove(removeCtx, id)
		cancel()
		if err == nil {
			return nil
		}
	}
	return err
}

func (s *Scheduler) record(result *PassResult) {
	s.mu.Lock()
	s.last = *result
	s.at = s.now()
	s.mu.Unlock()
}

// LastPass 最近一轮的结果
func (s *Scheduler) LastPass() PassResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// LastPassAt 最近一轮的时间，从未执行时为零值
func (s *Scheduler) LastPassAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.at
}

// Interval 轮询周期
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
