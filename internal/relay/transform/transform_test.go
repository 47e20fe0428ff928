package transform

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"relay_bot/internal/relay/models"

	"github.com/stretchr/testify/assert"
)

type stubParaphraser struct {
	out   string
	err   error
	calls int
	model string
	wait  time.Duration
}

func (s *stubParaphraser) Paraphrase(ctx context.Context, text, model string) (string, error) {
	s.calls++
	s.model = model
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.out, s.err
}

type stubCaptioner struct {
	out   string
	err   error
	image []byte
}

func (s *stubCaptioner) DescribeImage(ctx context.Context, image []byte) (string, error) {
	s.image = image
	return s.out, s.err
}

type stubPhotos struct {
	data []byte
	err  error
}

func (s *stubPhotos) FetchPhoto(ctx context.Context, fileID string) ([]byte, error) {
	return s.data, s.err
}

var aiOn = models.AISettings{Enabled: true, Model: "gpt-4o"}

func TestTransformDisabledReturnsOriginal(t *testing.T) {
	p := &stubParaphraser{out: "changed"}
	tr := New(p, "@tag")

	out := tr.Transform(context.Background(), models.AISettings{}, models.Content{Kind: models.KindText, Caption: "hello"})
	assert.Equal(t, "hello", out)
	assert.Equal(t, 0, p.calls)
}

func TestTransformParaphrase(t *testing.T) {
	p := &stubParaphraser{out: "rewritten @tag"}
	tr := New(p, "@tag")

	out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindText, Caption: "hello"})
	assert.Equal(t, "rewritten @tag", out)
	assert.Equal(t, "gpt-4o", p.model)
}

func TestTransformParaphraseAppendsMissingTag(t *testing.T) {
	tr := New(&stubParaphraser{out: "rewritten"}, "@tag")

	out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindVideo, MediaRef: "v", Caption: "clip"})
	assert.Equal(t, "rewritten\n\n@tag", out)
}

func TestTransformFallbackOnFailure(t *testing.T) {
	cases := []*stubParaphraser{
		{err: errors.New("boom")},
		{out: "   "},
		{out: "late", wait: time.Second},
	}
	for _, p := range cases {
		tr := New(p, "@tag", WithTimeout(20*time.Millisecond))
		out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindText, Caption: "original"})
		assert.Equal(t, "original", out)
	}
}

func TestTransformEmptyTextSkipsAI(t *testing.T) {
	p := &stubParaphraser{out: "x"}
	tr := New(p, "@tag")

	out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindVideo, MediaRef: "v"})
	assert.Equal(t, "", out)
	assert.Equal(t, 0, p.calls)
}

func TestTransformCaptionsUncaptionedPhoto(t *testing.T) {
	c := &stubCaptioner{out: "A sunset."}
	tr := New(&stubParaphraser{}, "@tag", WithCaptioning(c, &stubPhotos{data: []byte("img")}))

	out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindPhoto, MediaRef: "p"})
	assert.Equal(t, "A sunset.\n\n@tag", out)
	assert.Equal(t, []byte("img"), c.image)
}

func TestTransformCaptionFallback(t *testing.T) {
	cases := []struct {
		name   string
		c      *stubCaptioner
		photos *stubPhotos
	}{
		{"download error", &stubCaptioner{out: "x"}, &stubPhotos{err: errors.New("404")}},
		{"caption error", &stubCaptioner{err: errors.New("boom")}, &stubPhotos{data: []byte("img")}},
		{"empty caption", &stubCaptioner{out: ""}, &stubPhotos{data: []byte("img")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := New(nil, "@tag", WithCaptioning(tc.c, tc.photos))
			out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindPhoto, MediaRef: "p"})
			assert.Equal(t, "", out)
		})
	}
}

func TestTransformCaptionedPhotoIsParaphrased(t *testing.T) {
	p := &stubParaphraser{out: "new caption @tag"}
	c := &stubCaptioner{out: "unused"}
	tr := New(p, "@tag", WithCaptioning(c, &stubPhotos{data: []byte("img")}))

	out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindPhoto, MediaRef: "p", Caption: "old"})
	assert.Equal(t, "new caption @tag", out)
	assert.Nil(t, c.image)
}

func TestTransformWithoutClient(t *testing.T) {
	tr := New(nil, "@tag")
	out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindText, Caption: "keep"})
	assert.Equal(t, "keep", out)
}

func TestTransformKeepsTagWhenTruncating(t *testing.T) {
	long := strings.Repeat("ж", 1500)

	tr := New(&stubParaphraser{out: long}, "@tag")
	out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindVideo, MediaRef: "v", Caption: "clip"})
	assert.Equal(t, models.MaxCaptionLength, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "\n\n@tag"))

	tagged := strings.Repeat("a", 5000) + "\n\n@tag"
	tr = New(&stubParaphraser{out: tagged}, "@tag")
	out = tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindText, Caption: "news"})
	assert.Equal(t, models.MaxTextLength, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "\n\n@tag"))
	assert.Equal(t, 1, strings.Count(out, "@tag"))
}

func TestCaptionKeepsTagWhenTruncating(t *testing.T) {
	c := &stubCaptioner{out: strings.Repeat("b", 2000)}
	tr := New(nil, "@tag", WithCaptioning(c, &stubPhotos{data: []byte("img")}))

	out := tr.Transform(context.Background(), aiOn, models.Content{Kind: models.KindPhoto, MediaRef: "p"})
	assert.Equal(t, models.MaxCaptionLength, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "\n\n@tag"))
}
