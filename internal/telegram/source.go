package telegram

import (
	"context"
	"strings"

	"relay_bot/internal/logger"
	"relay_bot/internal/relay/ingest"
	"relay_bot/internal/relay/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"
)

// handleUpdate 默认处理器：频道消息与群消息进入转发流程
func (b *Bot) handleUpdate(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := sourceMessage(update)
	if msg == nil || b.ingester == nil {
		return
	}

	in := models.InboundFromMessage(msg)
	traceID := uuid.NewString()

	err := b.workerPool.SubmitWait(ctx, Task{
		Name: "ingest",
		// 关闭时已提交的消息继续处理完
		Ctx: context.WithoutCancel(ctx),
		Run: func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, b.ingestLimit)
			defer cancel()

			outcome, err := b.ingester.Handle(ctx, in)
			if err != nil {
				logger.L().Errorf("Ingest failed: trace=%s source=%s err=%v", traceID, in.SourceKey(), err)
				return
			}
			if outcome != ingest.OutcomeNotSource {
				logger.L().Debugf("Ingest done: trace=%s source=%s outcome=%s", traceID, in.SourceKey(), outcome)
			}
		},
	})
	if err != nil {
		logger.L().Errorf("Ingest not scheduled: trace=%s source=%s err=%v", traceID, in.SourceKey(), err)
	}
}

// sourceMessage 取出可转发的消息；命令与私聊消息不参与转发
func sourceMessage(update *botModels.Update) *botModels.Message {
	if update == nil {
		return nil
	}
	if update.ChannelPost != nil {
		return update.ChannelPost
	}

	msg := update.Message
	if msg == nil {
		return nil
	}
	if msg.Chat.Type == "private" {
		return nil
	}
	if strings.HasPrefix(msg.Text, "/") {
		return nil
	}
	return msg
}
