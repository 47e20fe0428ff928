package telegram

import (
	"context"

	"relay_bot/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// RequireOwner 中间件：仅允许 Owner 执行
func (b *Bot) RequireOwner(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		if !b.isOwner(update.Message.From.ID) {
			logger.L().Warnf("Non-owner user %d attempted to use owner command: %q", update.Message.From.ID, commandName(update.Message.Text))
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "This command is for bot owners only")
			return
		}

		next(ctx, botInstance, update)
	}
}

// asyncHandler 把命令交给工作池执行，不阻塞更新循环
func (b *Bot) asyncHandler(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		b.workerPool.Submit(Task{
			Name: "command",
			Ctx:  ctx,
			Run: func(ctx context.Context) {
				next(ctx, botInstance, update)
			},
		})
	}
}
