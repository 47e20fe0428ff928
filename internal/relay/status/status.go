package status

import (
	"context"
	"fmt"
	"time"

	"relay_bot/internal/relay/models"
	"relay_bot/internal/relay/scheduler"
	"relay_bot/internal/relay/settings"
)

// QueueStats 队列统计来源
type QueueStats interface {
	Stats(ctx context.Context) (models.QueueStats, error)
}

// PassSource 调度器最近一轮信息
type PassSource interface {
	LastPass() scheduler.PassResult
	LastPassAt() time.Time
}

// SettingsSource 当前配置
type SettingsSource interface {
	Current() *settings.Snapshot
}

// Report 运营状态（/status 命令与运维接口共用）
type Report struct {
	State            scheduler.State `json:"state"`
	Target           string          `json:"target,omitempty"`
	Sources          int             `json:"sources"`
	AIEnabled        bool            `json:"ai_enabled"`
	AIModel          string          `json:"ai_model,omitempty"`
	QueueDepth       int64           `json:"queue_depth"`
	Failing          int64           `json:"failing"`
	NextScheduledFor *time.Time      `json:"next_scheduled_for,omitempty"`
	LastPassID       string          `json:"last_pass_id,omitempty"`
	LastPassAt       *time.Time      `json:"last_pass_at,omitempty"`
	LastPassError    string          `json:"last_pass_error,omitempty"`
}

// Reporter 汇总配置、队列与调度器状态
type Reporter struct {
	settings  SettingsSource
	queue     QueueStats
	scheduler PassSource
}

func NewReporter(settings SettingsSource, queue QueueStats, scheduler PassSource) *Reporter {
	return &Reporter{settings: settings, queue: queue, scheduler: scheduler}
}

// Report 生成状态；队列统计失败时返回错误
func (r *Reporter) Report(ctx context.Context) (Report, error) {
	snap := r.settings.Current()

	report := Report{
		State:     scheduler.StateIdle,
		Target:    snap.Target,
		Sources:   len(snap.Sources()),
		AIEnabled: snap.AI.Enabled,
		AIModel:   snap.AI.Model,
	}
	if snap.HasTarget() {
		report.State = scheduler.StateRunning
	}

	if r.scheduler != nil {
		pass := r.scheduler.LastPass()
		report.LastPassID = pass.ID
		if pass.Err != nil {
			report.LastPassError = pass.Err.Error()
		}
		if at := r.scheduler.LastPassAt(); !at.IsZero() {
			report.LastPassAt = &at
		}
	}

	stats, err := r.queue.Stats(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load queue stats: %w", err)
	}
	report.QueueDepth = stats.Depth
	report.Failing = stats.Failing
	report.NextScheduledFor = stats.NextScheduledFor

	return report, nil
}
