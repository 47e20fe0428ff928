package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"relay_bot/internal/logger"
	"relay_bot/internal/relay/scheduler"
)

const (
	pingDBTimeout  = 2 * time.Second
	pingAPITimeout = 3 * time.Second
)

// buildPingMessage /ping：运行时长、工作池、数据库与 Bot API 延迟
func (b *Bot) buildPingMessage(ctx context.Context) string {
	lines := []string{"🏓 Pong!"}

	if !b.startTime.IsZero() {
		lines = append(lines, "⏱ Uptime: "+formatDuration(time.Since(b.startTime)))
	}

	if b.workerPool != nil {
		stats := b.workerPool.Stats()
		lines = append(lines, fmt.Sprintf("🛠 Ingest workers: %d, queued %d/%d", stats.Workers, stats.QueueLength, stats.QueueCapacity))
	}

	if b.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, pingDBTimeout)
		err := b.db.Client().Ping(dbCtx, nil)
		cancel()
		lines = append(lines, "🗄 MongoDB: "+checkMark(err))
	}

	if b.bot != nil {
		apiCtx, cancel := context.WithTimeout(ctx, pingAPITimeout)
		start := time.Now()
		_, err := b.bot.GetMe(apiCtx)
		cancel()
		if err != nil {
			lines = append(lines, "🌐 Bot API: "+checkMark(err))
		} else {
			lines = append(lines, fmt.Sprintf("🌐 Bot API: ✅ %s", time.Since(start).Round(time.Millisecond)))
		}
	}

	return strings.Join(lines, "\n")
}

func checkMark(err error) string {
	if err != nil {
		return "⚠️ " + html.EscapeString(err.Error())
	}
	return "✅ OK"
}

// buildStatusMessage 构建 /status 命令的响应文本
func (b *Bot) buildStatusMessage(ctx context.Context) string {
	if b.reporter == nil {
		return "⚠️ Relay is not running"
	}

	statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	report, err := b.reporter.Report(statusCtx)
	if err != nil {
		logger.L().Warnf("Status report incomplete: %v", err)
	}

	lines := []string{"📊 <b>Relay status</b>", ""}

	if report.State == scheduler.StateIdle {
		lines = append(lines, "⏸ Scheduler: idle (no target)")
	} else {
		lines = append(lines, fmt.Sprintf("▶️ Scheduler: running → <code>%s</code>", html.EscapeString(report.Target)))
	}

	if err != nil {
		lines = append(lines, "📦 Queue: ⚠️ unavailable")
	} else {
		lines = append(lines, fmt.Sprintf("📦 Queue: %d waiting, %d failing", report.QueueDepth, report.Failing))
		if report.NextScheduledFor != nil {
			wait := time.Until(*report.NextScheduledFor)
			lines = append(lines, fmt.Sprintf("⏭ Next post: %s (in %s)", report.NextScheduledFor.UTC().Format("2006-01-02 15:04 MST"), formatDuration(wait)))
		}
	}

	if report.LastPassAt != nil {
		line := fmt.Sprintf("🕒 Last pass: %s ago", formatDuration(time.Since(*report.LastPassAt)))
		if report.LastPassError != "" {
			line += " ⚠️ " + html.EscapeString(report.LastPassError)
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

var durationUnits = []struct {
	unit   time.Duration
	suffix string
}{
	{24 * time.Hour, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
}

// formatDuration 例如 "1d 2h 5m"，负数按 0 处理
func formatDuration(d time.Duration) string {
	d = max(d, 0).Round(time.Second)

	var parts []string
	for _, u := range durationUnits {
		if n := d / u.unit; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			d -= n * u.unit
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
