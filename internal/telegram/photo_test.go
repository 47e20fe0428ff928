package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

type stubFileAPI struct {
	base string
	file *botModels.File
	err  error
}

func (s *stubFileAPI) GetFile(ctx context.Context, params *bot.GetFileParams) (*botModels.File, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.file, nil
}

func (s *stubFileAPI) FileDownloadLink(f *botModels.File) string {
	return s.base + "/" + f.FilePath
}

func TestPhotoFetcherDownloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photos/file_1.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	fetcher := NewPhotoFetcher(&stubFileAPI{
		base: server.URL,
		file: &botModels.File{FileID: "abc", FilePath: "photos/file_1.jpg"},
	}, time.Second, 0)

	data, err := fetcher.FetchPhoto(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchPhoto failed: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected data: %q", data)
	}
}

func TestPhotoFetcherErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	missing := NewPhotoFetcher(&stubFileAPI{
		base: server.URL,
		file: &botModels.File{FileID: "abc", FilePath: "photos/missing.jpg"},
	}, time.Second, 0)
	if _, err := missing.FetchPhoto(context.Background(), "abc"); err == nil {
		t.Fatalf("expected error for missing file")
	}

	apiErr := NewPhotoFetcher(&stubFileAPI{err: errors.New("file is too big")}, time.Second, 0)
	if _, err := apiErr.FetchPhoto(context.Background(), "abc"); err == nil {
		t.Fatalf("expected GetFile error")
	}

	tooLarge := NewPhotoFetcher(&stubFileAPI{
		base: server.URL,
		file: &botModels.File{FileID: "abc", FilePath: "x", FileSize: maxPhotoBytes + 1},
	}, time.Second, 0)
	if _, err := tooLarge.FetchPhoto(context.Background(), "abc"); err == nil {
		t.Fatalf("expected size error")
	}
}
