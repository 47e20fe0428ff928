package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"relay_bot/internal/relay/scheduler"
	"relay_bot/internal/relay/status"
)

type stubReporter struct {
	report status.Report
	err    error
}

func (s stubReporter) Report(ctx context.Context) (status.Report, error) {
	return s.report, s.err
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                  "0s",
		-time.Second:                       "0s",
		90 * time.Second:                   "1m 30s",
		26*time.Hour + 5*time.Minute:       "1d 2h 5m",
		2*time.Hour + 500*time.Millisecond: "2h 1s",
	}
	for in, want := range cases {
		if got := formatDuration(in); got != want {
			t.Fatalf("formatDuration(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildStatusMessage(t *testing.T) {
	next := time.Now().Add(10 * time.Minute)
	last := time.Now().Add(-time.Minute)
	b := &Bot{reporter: stubReporter{report: status.Report{
		State:            scheduler.StateRunning,
		Target:           "@out",
		QueueDepth:       3,
		Failing:          1,
		NextScheduledFor: &next,
		LastPassAt:       &last,
	}}}

	text := b.buildStatusMessage(context.Background())
	for _, want := range []string{"running", "@out", "3 waiting, 1 failing", "Next post", "Last pass"} {
		if !strings.Contains(text, want) {
			t.Fatalf("status message missing %q:\n%s", want, text)
		}
	}
}

func TestBuildStatusMessageIdleAndError(t *testing.T) {
	b := &Bot{reporter: stubReporter{
		report: status.Report{State: scheduler.StateIdle},
		err:    errors.New("mongo down"),
	}}

	text := b.buildStatusMessage(context.Background())
	if !strings.Contains(text, "idle") || !strings.Contains(text, "unavailable") {
		t.Fatalf("unexpected status message:\n%s", text)
	}

	if got := (&Bot{}).buildStatusMessage(context.Background()); !strings.Contains(got, "not running") {
		t.Fatalf("unexpected message without reporter: %q", got)
	}
}
