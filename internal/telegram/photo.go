package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"relay_bot/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"github.com/hashicorp/go-retryablehttp"
)

// Bot API 下载文件上限为 20MB
const maxPhotoBytes = 20 << 20

// fileAPI 文件信息与下载地址（*bot.Bot 满足）
type fileAPI interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*botModels.File, error)
	FileDownloadLink(f *botModels.File) string
}

// PhotoFetcher 按 file_id 下载图片（供看图描述使用）
type PhotoFetcher struct {
	api    fileAPI
	client *http.Client
}

// NewPhotoFetcher 创建图片下载器
func NewPhotoFetcher(api fileAPI, timeout time.Duration, retries int) *PhotoFetcher {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retries
	retryClient.Logger = logger.RetryLogger{}
	if timeout > 0 {
		retryClient.HTTPClient.Timeout = timeout
	}

	return &PhotoFetcher{
		api:    api,
		client: retryClient.StandardClient(),
	}
}

// FetchPhoto 下载图片内容
func (f *PhotoFetcher) FetchPhoto(ctx context.Context, fileID string) ([]byte, error) {
	file, err := f.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, err)
	}
	if file.FileSize > maxPhotoBytes {
		return nil, fmt.Errorf("file %s too large: %d bytes", fileID, file.FileSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: status=%d", fileID, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileID, err)
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, maxPhotoBytes)
	}
	return data, nil
}
