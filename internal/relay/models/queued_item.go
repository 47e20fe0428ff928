package models

import (
	"time"
)

// QueuedItem 待发布队列中的一条记录
type QueuedItem struct {
	ID              int64       `bson:"_id" json:"id"`
	SourceMessageID int64       `bson:"source_message_id" json:"source_message_id"`
	SourceChatID    int64       `bson:"source_chat_id" json:"source_chat_id"`
	Kind            ContentKind `bson:"content_type" json:"content_type"`
	MediaRef        string      `bson:"media_ref,omitempty" json:"media_ref,omitempty"` // 媒体 file_id，文本为空
	Caption         string      `bson:"caption" json:"caption"`                         // 文本/说明（可能经 AI 改写）
	ScheduledFor    time.Time   `bson:"scheduled_for" json:"scheduled_for"`             // 不得早于此时间发布

	// 投递失败记录（策略仍为无限重试）
	Attempts      int        `bson:"attempts" json:"attempts"`
	LastError     string     `bson:"last_error,omitempty" json:"last_error,omitempty"`
	LastAttemptAt *time.Time `bson:"last_attempt_at,omitempty" json:"last_attempt_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// IsDue 是否已到发布时间
func (q *QueuedItem) IsDue(now time.Time) bool {
	return !q.ScheduledFor.After(now)
}

// NextScheduledFor 计算新入队记录的发布时间
// max(now + initialDelay, last + spacing)；last 为零值表示从未分配过
func NextScheduledFor(now, last time.Time, initialDelay, spacing time.Duration) time.Time {
	earliest := now.Add(initialDelay)
	if last.IsZero() {
		return earliest
	}
	if paced := last.Add(spacing); paced.After(earliest) {
		return paced
	}
	return earliest
}

// QueueStats 队列状态（供 /status 与运维接口展示）
type QueueStats struct {
	Depth            int64      `json:"depth"`
	Failing          int64      `json:"failing"`
	NextScheduledFor *time.Time `json:"next_scheduled_for,omitempty"`
}
