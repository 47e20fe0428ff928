package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"relay_bot/internal/config"
	"relay_bot/internal/logger"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultTargetLanguage = "English"
	captionMaxTokens      = 300
)

// Client OpenAI 兼容的 chat completions 客户端（改写与看图描述）
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	tag         string
	language    string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAttribution 改写结果末尾追加的署名
func WithAttribution(tag string) Option {
	return func(c *Client) {
		c.tag = strings.TrimSpace(tag)
	}
}

// WithTargetLanguage 改写与描述使用的语言
func WithTargetLanguage(language string) Option {
	return func(c *Client) {
		if language = strings.TrimSpace(language); language != "" {
			c.language = language
		}
	}
}

func NewClient(cfg config.AIConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := strings.TrimSpace(cfg.DefaultModel)
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	visionModel := strings.TrimSpace(cfg.VisionModel)
	if visionModel == "" {
		visionModel = "gpt-4o-mini"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = logger.RetryLogger{}
	retryClient.HTTPClient.Timeout = timeout

	client := &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		visionModel: visionModel,
		language:    defaultTargetLanguage,
		httpClient:  retryClient.StandardClient(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

type chatCompletionRequest struct {
	Model     string                  `json:"model"`
	Messages  []chatCompletionMessage `json:"messages"`
	MaxTokens int                     `json:"max_tokens,omitempty"`
	Stream    bool                    `json:"stream"`
}

// Content 为 string 或 []contentPart（看图请求）
type chatCompletionMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ParaphrasePrompt 改写使用的系统提示词
func (c *Client) ParaphrasePrompt() string {
	var sb strings.Builder
	sb.WriteString("Remove all Telegram usernames (e.g. @channelname) and Telegram links (e.g. t.me/channelname) from the message.\n")
	sb.WriteString("Rephrase the message naturally so it keeps the original meaning but does not read like a direct copy.\n")
	fmt.Fprintf(&sb, "If the message is not in %s, translate it to %s before rephrasing.\n", c.language, c.language)
	if c.tag != "" {
		fmt.Fprintf(&sb, "At the end of the message, add this tag: %s\n", c.tag)
	}
	fmt.Fprintf(&sb, "Return only the final, cleaned %s text, with no commentary.", c.language)
	return sb.String()
}

// CaptionPrompt 看图描述使用的提示词
func (c *Client) CaptionPrompt() string {
	return fmt.Sprintf("Describe what is shown in this image briefly and clearly, in a few sentences, in %s.", c.language)
}

// Paraphrase 改写文本；model 为空时使用默认模型
func (c *Client) Paraphrase(ctx context.Context, text, model string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("paraphrase text is empty")
	}
	if strings.TrimSpace(model) == "" {
		model = c.model
	}

	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: c.ParaphrasePrompt()},
			{Role: "user", Content: text},
		},
	}

	return c.complete(ctx, payload)
}

// DescribeImage 为图片生成描述
func (c *Client) DescribeImage(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image is empty")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", imageMIME(image), base64.StdEncoding.EncodeToString(image))

	payload := chatCompletionRequest{
		Model: c.visionModel,
		Messages: []chatCompletionMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: c.CaptionPrompt()},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
		MaxTokens: captionMaxTokens,
	}

	return c.complete(ctx, payload)
}

// Tag 署名
func (c *Client) Tag() string {
	return c.tag
}

func (c *Client) complete(ctx context.Context, payload chatCompletionRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal openai request failed: %w", err)
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request failed: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request openai api failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read openai response failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.L().Warnf("OpenAI response: status=%d model=%s body=%s", resp.StatusCode, payload.Model, truncate(string(data), 512))
		return "", fmt.Errorf("openai http error: status=%d", resp.StatusCode)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", fmt.Errorf("decode openai response failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai response is empty")
	}
	return content, nil
}

func imageMIME(image []byte) string {
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		return "image/jpeg"
	}
	return mime
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
