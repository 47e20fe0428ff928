package filter

import (
	"strings"

	"relay_bot/internal/relay/models"
	"relay_bot/internal/relay/settings"
)

// Reason 拒绝原因（用于日志与指标）
type Reason string

const (
	ReasonAdmitted       Reason = ""
	ReasonBlockedKeyword Reason = "blocked_keyword"
	ReasonBlockedType    Reason = "blocked_type"
	ReasonNoContent      Reason = "no_content"
)

// Admit 判断入站消息是否转发
func Admit(snap *settings.Snapshot, in *models.Inbound) bool {
	return Check(snap, in) == ReasonAdmitted
}

// Check 与 Admit 相同，但返回拒绝原因
// 纯函数：只读快照和消息，没有副作用
func Check(snap *settings.Snapshot, in *models.Inbound) Reason {
	if in == nil {
		return ReasonNoContent
	}

	if snap != nil {
		text := strings.ToLower(in.Body())
		if text != "" {
			for _, keyword := range snap.BlockedKeywords {
				if keyword != "" && strings.Contains(text, keyword) {
					return ReasonBlockedKeyword
				}
			}
		}

		for _, blockType := range snap.BlockedTypes {
			if in.HasType(blockType) {
				return ReasonBlockedType
			}
		}
	}

	if _, ok := models.Classify(in); !ok {
		return ReasonNoContent
	}

	return ReasonAdmitted
}
