package models

import (
	"time"
)

// Settings 运营配置（由控制端维护，转发核心只读）
type Settings struct {
	ID              string    `bson:"_id"`
	Sources         []string  `bson:"sources"`          // 来源：@username 或数字 chat id
	Target          string    `bson:"target,omitempty"` // 目标：@username 或数字 chat id
	BlockedKeywords []string  `bson:"blocked_keywords"`
	BlockedTypes    []string  `bson:"blocked_types"`
	AIEnabled       bool      `bson:"ai_enabled"`
	AIModel         string    `bson:"ai_model,omitempty"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// SettingsDocumentID 配置文档固定 ID（单行配置）
const SettingsDocumentID = "relay"

// AISettings AI 改写开关与模型
type AISettings struct {
	Enabled bool
	Model   string
}
