package telegram

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"relay_bot/internal/logger"
)

// sendMessage 发送消息（统一错误处理，使用 HTML 格式）
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: botModels.ParseModeHTML,
	}

	if _, err := b.bot.SendMessage(ctx, params); err != nil {
		logger.L().Errorf("Failed to send message to chat %d: %v", chatID, err)
	}
}

// sendErrorMessage 发送错误消息
func (b *Bot) sendErrorMessage(ctx context.Context, chatID int64, message string) {
	b.sendMessage(ctx, chatID, "❌ "+message)
}

// sendSuccessMessage 发送成功消息
func (b *Bot) sendSuccessMessage(ctx context.Context, chatID int64, message string) {
	b.sendMessage(ctx, chatID, "✅ "+message)
}

// commandArgs 去掉命令本身，返回其余参数（原样保留空格）
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	idx := strings.IndexAny(text, " \n\t")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx+1:])
}

// commandName 提取命令名（去掉 @botname 后缀）
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	if idx := strings.Index(name, "@"); idx > 0 {
		name = name[:idx]
	}
	return strings.ToLower(name)
}
