package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"relay_bot/internal/metrics"
	"relay_bot/internal/relay/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

// Telegram 文本与说明的长度上限
const (
	maxTextLength    = models.MaxTextLength
	maxCaptionLength = models.MaxCaptionLength
)

// ErrUnknownContentKind 队列中出现了不支持的内容类型（属于程序缺陷）
var ErrUnknownContentKind = errors.New("unknown content kind")

// Sender Telegram 发送接口（*bot.Bot 满足）
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*botModels.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*botModels.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*botModels.Message, error)
	SendAudio(ctx context.Context, params *bot.SendAudioParams) (*botModels.Message, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*botModels.Message, error)
	SendSticker(ctx context.Context, params *bot.SendStickerParams) (*botModels.Message, error)
}

type sendFunc func(ctx context.Context, s Sender, chatID any, item *models.QueuedItem) error

// dispatch 每种内容类型对应一个发送操作
var dispatch = map[models.ContentKind]sendFunc{
	models.KindText: func(ctx context.Context, s Sender, chatID any, item *models.QueuedItem) error {
		_, err := s.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   truncate(item.Caption, maxTextLength),
		})
		return err
	},
	models.KindPhoto: func(ctx context.Context, s Sender, chatID any, item *models.QueuedItem) error {
		_, err := s.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   &botModels.InputFileString{Data: item.MediaRef},
			Caption: truncate(item.Caption, maxCaptionLength),
		})
		return err
	},
	models.KindVideo: func(ctx context.Context, s Sender, chatID any, item *models.QueuedItem) error {
		_, err := s.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:  chatID,
			Video:   &botModels.InputFileString{Data: item.MediaRef},
			Caption: truncate(item.Caption, maxCaptionLength),
		})
		return err
	},
	models.KindDocument: func(ctx context.Context, s Sender, chatID any, item *models.QueuedItem) error {
		_, err := s.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:   chatID,
			Document: &botModels.InputFileString{Data: item.MediaRef},
			Caption:  truncate(item.Caption, maxCaptionLength),
		})
		return err
	},
	models.KindAudio: func(ctx context.Context, s Sender, chatID any, item *models.QueuedItem) error {
		_, err := s.SendAudio(ctx, &bot.SendAudioParams{
			ChatID:  chatID,
			Audio:   &botModels.InputFileString{Data: item.MediaRef},
			Caption: truncate(item.Caption, maxCaptionLength),
		})
		return err
	},
	models.KindVoice: func(ctx context.Context, s Sender, chatID any, item *models.QueuedItem) error {
		_, err := s.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID:  chatID,
			Voice:   &botModels.InputFileString{Data: item.MediaRef},
			Caption: truncate(item.Caption, maxCaptionLength),
		})
		return err
	},
	models.KindSticker: func(ctx context.Context, s Sender, chatID any, item *models.QueuedItem) error {
		_, err := s.SendSticker(ctx, &bot.SendStickerParams{
			ChatID:  chatID,
			Sticker: &botModels.InputFileString{Data: item.MediaRef},
		})
		return err
	},
}

// Adapter 把队列记录发送到目标频道
type Adapter struct {
	sender  Sender
	limiter *rate.Limiter
}

// NewAdapter 创建投递适配器；ratePerSecond <= 0 时不限速
func NewAdapter(sender Sender, ratePerSecond float64) *Adapter {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Adapter{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Deliver 发送一条记录到 target（@username 或数字 chat id）
func (a *Adapter) Deliver(ctx context.Context, target string, item *models.QueuedItem) error {
	send, ok := dispatch[item.Kind]
	if !ok {
		return fmt.Errorf("%w: %q (item %d)", ErrUnknownContentKind, item.Kind, item.ID)
	}

	chatID, err := ParseChatRef(target)
	if err != nil {
		return err
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("delivery throttle: %w", err)
	}

	if err := send(ctx, a.sender, chatID, item); err != nil {
		metrics.DeliveriesTotal.WithLabelValues(string(item.Kind), "error").Inc()
		return fmt.Errorf("send %s: %w", item.Kind, err)
	}

	metrics.DeliveriesTotal.WithLabelValues(string(item.Kind), "ok").Inc()
	return nil
}

// ParseChatRef 数字字符串解析为 chat id，否则按 @username 处理
func ParseChatRef(ref string) (any, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty chat reference")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}

	ref = strings.TrimPrefix(ref, "https://t.me/")
	ref = strings.TrimPrefix(ref, "t.me/")
	if !strings.HasPrefix(ref, "@") {
		ref = "@" + ref
	}
	if len(ref) < 2 || strings.ContainsAny(ref, " /") {
		return nil, fmt.Errorf("invalid chat reference %q", ref)
	}
	return ref, nil
}

// truncate 按字符截断
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
