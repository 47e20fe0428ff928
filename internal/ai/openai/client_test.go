package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"relay_bot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	client, err := NewClient(config.AIConfig{
		APIKey:       "test-key",
		BaseURL:      url,
		DefaultModel: "default-model",
		VisionModel:  "vision-model",
		Timeout:      2 * time.Second,
		MaxRetries:   retries,
	}, WithAttribution("@tag"), WithTargetLanguage("English"))
	require.NoError(t, err)
	return client
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.AIConfig{})
	require.Error(t, err)
}

func TestParaphrase(t *testing.T) {
	var got chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var raw struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		got.Model = raw.Model
		for _, m := range raw.Messages {
			got.Messages = append(got.Messages, chatCompletionMessage{Role: m.Role, Content: m.Content})
		}
		_, _ = w.Write([]byte(completion("  rewritten text @tag  ")))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)

	out, err := client.Paraphrase(context.Background(), "original", "")
	require.NoError(t, err)
	assert.Equal(t, "rewritten text @tag", out)
	assert.Equal(t, "default-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "@tag")
	assert.Contains(t, got.Messages[0].Content, "t.me/")
	assert.Equal(t, "original", got.Messages[1].Content)

	_, err = client.Paraphrase(context.Background(), "original", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got.Model)
}

func TestParaphraseHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad model"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	_, err := client.Paraphrase(context.Background(), "text", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
}

func TestParaphraseRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(completion("ok")))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	out, err := client.Paraphrase(context.Background(), "text", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestParaphraseEmptyChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	_, err := client.Paraphrase(context.Background(), "text", "")
	require.Error(t, err)
}

func TestDescribeImage(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		_, _ = w.Write([]byte(completion("A cat on a sofa.")))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	png := []byte("\x89PNG\r\n\x1a\n0000")

	out, err := client.DescribeImage(context.Background(), png)
	require.NoError(t, err)
	assert.Equal(t, "A cat on a sofa.", out)
	assert.Contains(t, body, `"model":"vision-model"`)
	assert.Contains(t, body, "data:image/png;base64,")
	assert.Contains(t, body, `"max_tokens":300`)

	_, err = client.DescribeImage(context.Background(), nil)
	require.Error(t, err)
}
