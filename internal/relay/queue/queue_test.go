package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"relay_bot/internal/relay/models"
	"relay_bot/internal/relay/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo 内存实现，排期规则与存储一致
type memoryRepo struct {
	mu       sync.Mutex
	seq      int64
	last     time.Time
	items    map[int64]*models.QueuedItem
	sources  map[string]bool
	failures map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:    make(map[int64]*models.QueuedItem),
		sources:  make(map[string]bool),
		failures: make(map[int64]string),
	}
}

func (r *memoryRepo) Enqueue(ctx context.Context, item *models.QueuedItem, now time.Time, initialDelay, spacing time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := (&models.Inbound{ChatID: item.SourceChatID, MessageID: item.SourceMessageID}).SourceKey()
	if r.sources[key] {
		return repository.ErrDuplicate
	}
	r.sources[key] = true

	r.seq++
	r.last = models.NextScheduledFor(now, r.last, initialDelay, spacing)
	item.ID = r.seq
	item.ScheduledFor = r.last
	item.CreatedAt = now
	copied := *item
	r.items[item.ID] = &copied
	return nil
}

func (r *memoryRepo) ListDue(ctx context.Context, now time.Time) ([]*models.QueuedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*models.QueuedItem
	for _, item := range r.items {
		if item.IsDue(now) {
			copied := *item
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ScheduledFor.Before(due[j].ScheduledFor)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *memoryRepo) RecordFailure(ctx context.Context, id int64, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.items[id]; ok {
		item.Attempts++
		item.LastError = reason
		item.LastAttemptAt = &at
		r.failures[id] = reason
	}
	return nil
}

func (r *memoryRepo) Stats(ctx context.Context) (models.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.QueueStats{Depth: int64(len(r.items)), Failing: int64(len(r.failures))}, nil
}

func (r *memoryRepo) EnsureIndexes(ctx context.Context) error { return nil }

func newTestQueue(repo repository.QueueRepository, clock *time.Time) *Queue {
	q := New(repo, 30*time.Minute, 5*time.Minute)
	q.now = func() time.Time { return *clock }
	return q
}

func TestEnqueueScheduleScenario(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	q := newTestQueue(newMemoryRepo(), &clock)

	first, err := q.Enqueue(context.Background(), &models.Inbound{ChatID: -1, MessageID: 1, Text: "one"}, "one")
	require.NoError(t, err)
	assert.Equal(t, base.Add(5*time.Minute), first.ScheduledFor)

	clock = base.Add(time.Minute)
	second, err := q.Enqueue(context.Background(), &models.Inbound{ChatID: -1, MessageID: 2, Text: "two"}, "two")
	require.NoError(t, err)
	assert.Equal(t, base.Add(35*time.Minute), second.ScheduledFor)
	assert.Greater(t, second.ID, first.ID)
}

func TestEnqueueSpacingInvariant(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	q := newTestQueue(newMemoryRepo(), &clock)

	var prev *models.QueuedItem
	for i := 0; i < 20; i++ {
		// 突发入队，偶尔有较长停顿
		clock = clock.Add(time.Duration(i%7) * 10 * time.Minute)
		item, err := q.Enqueue(context.Background(), &models.Inbound{ChatID: -1, MessageID: int64(i), Text: "x"}, "x")
		require.NoError(t, err)
		assert.False(t, item.ScheduledFor.Before(clock.Add(5*time.Minute)))
		if prev != nil {
			assert.GreaterOrEqual(t, item.ScheduledFor.Sub(prev.ScheduledFor), 30*time.Minute)
		}
		prev = item
	}
}

func TestEnqueueClassifies(t *testing.T) {
	clock := time.Now().UTC()
	q := newTestQueue(newMemoryRepo(), &clock)

	item, err := q.Enqueue(context.Background(), &models.Inbound{
		ChatID:         -1,
		MessageID:      9,
		PhotoFileID:    "photo",
		DocumentFileID: "doc",
		Caption:        "orig",
	}, "rewritten")
	require.NoError(t, err)
	assert.Equal(t, models.KindPhoto, item.Kind)
	assert.Equal(t, "photo", item.MediaRef)
	assert.Equal(t, "rewritten", item.Caption)

	_, err = q.Enqueue(context.Background(), &models.Inbound{ChatID: -1, MessageID: 10, HasLocation: true}, "")
	assert.ErrorIs(t, err, ErrUnclassifiable)
}

func TestEnqueueDuplicate(t *testing.T) {
	clock := time.Now().UTC()
	q := newTestQueue(newMemoryRepo(), &clock)

	in := &models.Inbound{ChatID: -1, MessageID: 5, Text: "x"}
	_, err := q.Enqueue(context.Background(), in, "x")
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), in, "x")
	assert.True(t, errors.Is(err, repository.ErrDuplicate))
}

func TestRemoveIsFinal(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	q := newTestQueue(newMemoryRepo(), &clock)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, &models.Inbound{ChatID: -1, MessageID: 1, Text: "x"}, "x")
	require.NoError(t, err)

	later := base.Add(time.Hour)
	due, err := q.DueItems(ctx, later)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, q.Remove(ctx, item.ID))
	require.NoError(t, q.Remove(ctx, item.ID))

	for i := 0; i < 3; i++ {
		due, err = q.DueItems(ctx, later.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, due)
	}
}

func TestRecordFailureKeepsItem(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	q := newTestQueue(repo, &clock)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, &models.Inbound{ChatID: -1, MessageID: 1, Text: "x"}, "x")
	require.NoError(t, err)

	require.NoError(t, q.RecordFailure(ctx, item.ID, errors.New("Bad Request: chat not found")))
	due, err := q.DueItems(ctx, clock.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, item.ScheduledFor, due[0].ScheduledFor)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Depth)
	assert.Equal(t, int64(1), stats.Failing)
}
