package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"relay_bot/internal/logger"
	"relay_bot/internal/relay/delivery"
	"relay_bot/internal/relay/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// settingCommand 一条修改配置的命令
type settingCommand struct {
	usage    string
	validate func(arg string) (string, error) // 返回规范化后的参数
	apply    func(ctx context.Context, arg string) error
	done     string // 成功提示，%s 为参数
}

// run 解析参数、写入配置并刷新缓存
func (b *Bot) run(cmd settingCommand) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID

		arg := commandArgs(update.Message.Text)
		if cmd.usage != "" && arg == "" {
			b.sendErrorMessage(ctx, chatID, "Usage: "+html.EscapeString(cmd.usage))
			return
		}

		if cmd.validate != nil {
			normalized, err := cmd.validate(arg)
			if err != nil {
				b.sendErrorMessage(ctx, chatID, html.EscapeString(err.Error()))
				return
			}
			arg = normalized
		}

		if err := cmd.apply(ctx, arg); err != nil {
			logger.L().Errorf("Settings update failed: command=%s arg=%q err=%v", commandName(update.Message.Text), arg, err)
			b.sendErrorMessage(ctx, chatID, "Failed to save configuration, please try again")
			return
		}

		if err := b.settings.Reload(ctx); err != nil {
			logger.L().Errorf("Settings saved but reload failed: %v", err)
			b.sendErrorMessage(ctx, chatID, "Saved, but reload failed. Run /reload")
			return
		}

		logger.L().Infof("Settings updated by %d: command=%s arg=%q", senderID(update), commandName(update.Message.Text), arg)
		b.sendSuccessMessage(ctx, chatID, fmt.Sprintf(cmd.done, html.EscapeString(arg)))
	}
}

func (b *Bot) handleSourceAdd(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.run(settingCommand{
		usage:    "/source_add <@channel|chat_id>",
		validate: validateChatRef,
		apply:    b.settingsRepo.AddSource,
		done:     "Source added: <code>%s</code>",
	})(ctx, botInstance, update)
}

func (b *Bot) handleSourceDel(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.run(settingCommand{
		usage:    "/source_del <@channel|chat_id>",
		validate: validateChatRef,
		apply:    b.settingsRepo.RemoveSource,
		done:     "Source removed: <code>%s</code>",
	})(ctx, botInstance, update)
}

func (b *Bot) handleTarget(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.run(settingCommand{
		usage:    "/target <@channel|chat_id>",
		validate: validateChatRef,
		apply:    b.settingsRepo.SetTarget,
		done:     "Target set: <code>%s</code>",
	})(ctx, botInstance, update)
}

func (b *Bot) handleKeywordAdd(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.run(settingCommand{
		usage:    "/keyword_add <word>",
		validate: validateKeyword,
		apply:    b.settingsRepo.AddBlockedKeyword,
		done:     "Keyword blocked: <code>%s</code>",
	})(ctx, botInstance, update)
}

func (b *Bot) handleKeywordDel(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.run(settingCommand{
		usage:    "/keyword_del <word>",
		validate: validateKeyword,
		apply:    b.settingsRepo.RemoveBlockedKeyword,
		done:     "Keyword unblocked: <code>%s</code>",
	})(ctx, botInstance, update)
}

func (b *Bot) handleTypeAdd(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.run(settingCommand{
		usage:    "/type_add <type>",
		validate: validateBlockType,
		apply:    b.settingsRepo.AddBlockedType,
		done:     "Type blocked: <code>%s</code>",
	})(ctx, botInstance, update)
}

func (b *Bot) handleTypeDel(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.run(settingCommand{
		usage:    "/type_del <type>",
		validate: validateBlockType,
		apply:    b.settingsRepo.RemoveBlockedType,
		done:     "Type unblocked: <code>%s</code>",
	})(ctx, botInstance, update)
}

func (b *Bot) handleAIModel(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.run(settingCommand{
		usage: "/ai_model <model>",
		validate: func(arg string) (string, error) {
			if strings.ContainsAny(arg, " \n\t") {
				return "", fmt.Errorf("model name must be a single word")
			}
			return arg, nil
		},
		apply: b.settingsRepo.SetAIModel,
		done:  "AI model set: <code>%s</code>",
	})(ctx, botInstance, update)
}

func (b *Bot) handleAIToggle(enabled bool) bot.HandlerFunc {
	done := "AI rewriting disabled%s"
	if enabled {
		done = "AI rewriting enabled%s"
	}
	return b.run(settingCommand{
		apply: func(ctx context.Context, _ string) error {
			return b.settingsRepo.SetAIEnabled(ctx, enabled)
		},
		done: done,
	})
}

func validateChatRef(arg string) (string, error) {
	ref, err := delivery.ParseChatRef(arg)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(ref), nil
}

func validateKeyword(arg string) (string, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" {
		return "", fmt.Errorf("keyword cannot be empty")
	}
	return arg, nil
}

func validateBlockType(arg string) (string, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if !models.IsKnownBlockType(arg) {
		return "", fmt.Errorf("unknown type %q, expected one of: text, photo, video, document, file, audio, voice, sticker, contact, location", arg)
	}
	return arg, nil
}

func senderID(update *botModels.Update) int64 {
	if update.Message != nil && update.Message.From != nil {
		return update.Message.From.ID
	}
	return 0
}
