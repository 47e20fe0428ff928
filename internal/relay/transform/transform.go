package transform

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"relay_bot/internal/logger"
	"relay_bot/internal/metrics"
	"relay_bot/internal/relay/models"
)

const defaultTimeout = 45 * time.Second

// Paraphraser 文本改写
type Paraphraser interface {
	Paraphrase(ctx context.Context, text, model string) (string, error)
}

// Captioner 看图生成描述
type Captioner interface {
	DescribeImage(ctx context.Context, image []byte) (string, error)
}

// PhotoFetcher 下载来源消息中的图片
type PhotoFetcher interface {
	FetchPhoto(ctx context.Context, fileID string) ([]byte, error)
}

// Transformer AI 改写；任何失败都退回原文，不会丢弃消息
type Transformer struct {
	paraphraser Paraphraser
	captioner   Captioner
	photos      PhotoFetcher
	tag         string
	timeout     time.Duration
}

type Option func(*Transformer)

// WithCaptioning 启用无说明图片的看图描述
func WithCaptioning(captioner Captioner, photos PhotoFetcher) Option {
	return func(t *Transformer) {
		t.captioner = captioner
		t.photos = photos
	}
}

// WithTimeout 单次 AI 调用（含图片下载）的超时
func WithTimeout(timeout time.Duration) Option {
	return func(t *Transformer) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// New 创建 Transformer；paraphraser 为 nil 时始终原样返回
func New(paraphraser Paraphraser, tag string, opts ...Option) *Transformer {
	t := &Transformer{
		paraphraser: paraphraser,
		tag:         strings.TrimSpace(tag),
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform 返回入队使用的文本
//   - AI 关闭：原文
//   - 无说明的图片：看图描述 + 署名，失败时为空
//   - 其他非空文本：改写，失败时为原文
func (t *Transformer) Transform(ctx context.Context, ai models.AISettings, content models.Content) string {
	original := content.Caption
	if !ai.Enabled {
		metrics.TransformTotal.WithLabelValues("disabled", "skipped").Inc()
		return original
	}

	if content.Kind == models.KindPhoto && strings.TrimSpace(original) == "" {
		return t.caption(ctx, content.MediaRef, original)
	}

	if strings.TrimSpace(original) == "" {
		return original
	}

	return t.paraphrase(ctx, original, ai.Model, content.Kind)
}

func (t *Transformer) caption(ctx context.Context, fileID, original string) string {
	if t.captioner == nil || t.photos == nil {
		metrics.TransformTotal.WithLabelValues("caption", "skipped").Inc()
		return original
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	image, err := t.photos.FetchPhoto(ctx, fileID)
	if err != nil {
		t.fallback("caption", fmt.Errorf("fetch photo: %w", err))
		return original
	}

	description, err := t.captioner.DescribeImage(ctx, image)
	if err != nil {
		t.fallback("caption", err)
		return original
	}
	description = strings.TrimSpace(description)
	if description == "" {
		t.fallback("caption", fmt.Errorf("empty description"))
		return original
	}

	metrics.TransformTotal.WithLabelValues("caption", "ok").Inc()
	return t.ensureTag(description, models.KindPhoto)
}

func (t *Transformer) paraphrase(ctx context.Context, original, model string, kind models.ContentKind) string {
	if t.paraphraser == nil {
		metrics.TransformTotal.WithLabelValues("paraphrase", "skipped").Inc()
		return original
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	rewritten, err := t.paraphraser.Paraphrase(ctx, original, model)
	if err != nil {
		t.fallback("paraphrase", err)
		return original
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		t.fallback("paraphrase", fmt.Errorf("empty result"))
		return original
	}

	metrics.TransformTotal.WithLabelValues("paraphrase", "ok").Inc()
	return t.ensureTag(rewritten, kind)
}

// ensureTag 保证署名在结尾且整体不超过该类型的长度上限
// 超长时截断正文而不是署名；模型偶尔会漏掉署名
func (t *Transformer) ensureTag(text string, kind models.ContentKind) string {
	if t.tag == "" {
		return text
	}
	limit := kind.TextLimit()
	if strings.Contains(text, t.tag) && utf8.RuneCountInString(text) <= limit {
		return text
	}

	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), t.tag))
	suffix := "\n\n" + t.tag
	room := max(limit-utf8.RuneCountInString(suffix), 0)
	if runes := []rune(body); len(runes) > room {
		body = strings.TrimSpace(string(runes[:room]))
	}
	return body + suffix
}

func (t *Transformer) fallback(mode string, err error) {
	metrics.TransformTotal.WithLabelValues(mode, "fallback").Inc()
	logger.L().Warnf("AI %s failed, using original content: %v", mode, err)
}
