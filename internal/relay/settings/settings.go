package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"relay_bot/internal/logger"
	"relay_bot/internal/relay/models"
)

// Source 运营配置读取接口
type Source interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// Snapshot 某一时刻的只读配置
// 构造后不再修改，可在多个 goroutine 间共享
type Snapshot struct {
	sourceIDs       map[int64]struct{}
	sourceUsernames map[string]struct{}
	sources         []string

	Target          string
	BlockedKeywords []string // 已转小写、去重
	BlockedTypes    []string // 已转小写、去重
	AI              models.AISettings
}

// NewSnapshot 由存储中的配置构造快照
// defaultModel 在未设置模型时使用
func NewSnapshot(s *models.Settings, defaultModel string) *Snapshot {
	snap := &Snapshot{
		sourceIDs:       make(map[int64]struct{}),
		sourceUsernames: make(map[string]struct{}),
		AI:              models.AISettings{Model: defaultModel},
	}
	if s == nil {
		return snap
	}

	for _, ref := range s.Sources {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		snap.sources = append(snap.sources, ref)
		if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
			snap.sourceIDs[id] = struct{}{}
			continue
		}
		snap.sourceUsernames[normalizeUsername(ref)] = struct{}{}
	}

	snap.Target = strings.TrimSpace(s.Target)
	snap.BlockedKeywords = lowerUnique(s.BlockedKeywords)
	snap.BlockedTypes = lowerUnique(s.BlockedTypes)
	snap.AI.Enabled = s.AIEnabled
	if model := strings.TrimSpace(s.AIModel); model != "" {
		snap.AI.Model = model
	}

	return snap
}

// IsSource 消息所在的频道是否为配置的来源
func (s *Snapshot) IsSource(chatID int64, username string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.sourceIDs[chatID]; ok {
		return true
	}
	if username == "" {
		return false
	}
	_, ok := s.sourceUsernames[normalizeUsername(username)]
	return ok
}

// Sources 配置的来源列表（原样）
func (s *Snapshot) Sources() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.sources...)
}

// HasTarget 是否已配置目标
func (s *Snapshot) HasTarget() bool {
	return s != nil && s.Target != ""
}

// Cache 配置缓存：整份快照原子替换，读方永远拿到完整的一致视图
type Cache struct {
	source       Source
	defaultModel string
	current      atomic.Pointer[Snapshot]
}

// NewCache 创建配置缓存（初始为空配置，需调用 Reload 加载）
func NewCache(source Source, defaultModel string) *Cache {
	c := &Cache{
		source:       source,
		defaultModel: defaultModel,
	}
	c.current.Store(NewSnapshot(nil, defaultModel))
	return c
}

// Current 当前快照，永不为 nil
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Reload 从存储重新读取配置并替换快照
// 读取失败时保留旧快照
func (c *Cache) Reload(ctx context.Context) error {
	stored, err := c.source.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload relay settings: %w", err)
	}

	snap := NewSnapshot(stored, c.defaultModel)
	c.current.Store(snap)

	logger.L().Infof("Relay settings reloaded: sources=%d target=%q keywords=%d types=%d ai=%v model=%s",
		len(snap.sources), snap.Target, len(snap.BlockedKeywords), len(snap.BlockedTypes), snap.AI.Enabled, snap.AI.Model)
	return nil
}

func normalizeUsername(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "https://t.me/")
	ref = strings.TrimPrefix(ref, "t.me/")
	ref = strings.TrimPrefix(ref, "@")
	return strings.ToLower(ref)
}

func lowerUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
