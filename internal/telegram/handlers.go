package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"relay_bot/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// registerHandlers 注册所有命令处理器（异步执行，均仅限 Owner）
func (b *Bot) registerHandlers() {
	exact := map[string]bot.HandlerFunc{
		"/start":  b.handleStart,
		"/ping":   b.handlePing,
		"/info":   b.handleInfo,
		"/status": b.handleStatus,
		"/reload": b.handleReload,
		"/ai_on":  b.handleAIToggle(true),
		"/ai_off": b.handleAIToggle(false),
	}
	for pattern, handler := range exact {
		b.bot.RegisterHandler(bot.HandlerTypeMessageText, pattern, bot.MatchTypeExact,
			b.asyncHandler(b.RequireOwner(handler)))
	}

	// 带参数的命令
	prefixed := map[string]bot.HandlerFunc{
		"/source_add":  b.handleSourceAdd,
		"/source_del":  b.handleSourceDel,
		"/target":      b.handleTarget,
		"/keyword_add": b.handleKeywordAdd,
		"/keyword_del": b.handleKeywordDel,
		"/type_add":    b.handleTypeAdd,
		"/type_del":    b.handleTypeDel,
		"/ai_model":    b.handleAIModel,
	}
	for pattern, handler := range prefixed {
		b.bot.RegisterHandler(bot.HandlerTypeMessageText, pattern, bot.MatchTypePrefix,
			b.asyncHandler(b.RequireOwner(handler)))
	}

	logger.L().Debug("All handlers registered with async execution")
}

const helpText = `👋 Relay bot

Messages from source chats are filtered, optionally rewritten by AI and published to the target on a fixed cadence.

<b>Status</b>
/info - current configuration
/status - queue and scheduler state
/reload - reload configuration
/ping - health check

<b>Configuration</b>
/source_add &lt;@channel|chat_id&gt;
/source_del &lt;@channel|chat_id&gt;
/target &lt;@channel|chat_id&gt;
/keyword_add &lt;word&gt;
/keyword_del &lt;word&gt;
/type_add &lt;type&gt;
/type_del &lt;type&gt;
/ai_on, /ai_off
/ai_model &lt;model&gt;`

// handleStart 处理 /start 命令
func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, helpText)
}

// handlePing 处理 /ping 命令
func (b *Bot) handlePing(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, b.buildPingMessage(ctx))
}

// handleInfo 处理 /info 命令
func (b *Bot) handleInfo(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	snap := b.settings.Current()

	var text strings.Builder
	text.WriteString("ℹ️ <b>Configuration</b>\n\n")

	text.WriteString("📥 Sources:\n")
	if sources := snap.Sources(); len(sources) == 0 {
		text.WriteString("  (none)\n")
	} else {
		for _, src := range sources {
			fmt.Fprintf(&text, "  • <code>%s</code>\n", html.EscapeString(src))
		}
	}

	target := "(not set, scheduler idle)"
	if snap.HasTarget() {
		target = "<code>" + html.EscapeString(snap.Target) + "</code>"
	}
	fmt.Fprintf(&text, "📤 Target: %s\n", target)

	fmt.Fprintf(&text, "🚫 Keywords: %s\n", joinOrNone(snap.BlockedKeywords))
	fmt.Fprintf(&text, "🚫 Types: %s\n", joinOrNone(snap.BlockedTypes))

	aiState := "off"
	if snap.AI.Enabled {
		aiState = "on"
	}
	fmt.Fprintf(&text, "🤖 AI: %s (model <code>%s</code>)", aiState, html.EscapeString(snap.AI.Model))

	b.sendMessage(ctx, update.Message.Chat.ID, text.String())
}

// handleStatus 处理 /status 命令
func (b *Bot) handleStatus(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, b.buildStatusMessage(ctx))
}

// handleReload 处理 /reload 命令
func (b *Bot) handleReload(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	if err := b.settings.Reload(ctx); err != nil {
		logger.L().Errorf("Reload requested by %d failed: %v", update.Message.From.ID, err)
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "Reload failed, previous configuration kept")
		return
	}

	b.sendSuccessMessage(ctx, update.Message.Chat.ID, "Configuration reloaded")
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	escaped := make([]string, 0, len(values))
	for _, v := range values {
		escaped = append(escaped, html.EscapeString(v))
	}
	return strings.Join(escaped, ", ")
}
