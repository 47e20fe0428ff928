package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"relay_bot/internal/relay/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSettingsRepository 运营配置（单文档，MongoDB 实现）
type MongoSettingsRepository struct {
	collection *mongo.Collection
}

// NewMongoSettingsRepository 创建配置 Repository
func NewMongoSettingsRepository(db *mongo.Database) SettingsRepository {
	return &MongoSettingsRepository{
		collection: db.Collection("relay_settings"),
	}
}

// Get 读取配置
func (r *MongoSettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := r.collection.FindOne(ctx, bson.M{"_id": models.SettingsDocumentID}).Decode(&settings)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &models.Settings{ID: models.SettingsDocumentID}, nil
		}
		return nil, fmt.Errorf("failed to get relay settings: %w", err)
	}
	return &settings, nil
}

// AddSource 添加来源
func (r *MongoSettingsRepository) AddSource(ctx context.Context, ref string) error {
	return r.update(ctx, bson.M{"$addToSet": bson.M{"sources": strings.TrimSpace(ref)}})
}

// RemoveSource 移除来源
func (r *MongoSettingsRepository) RemoveSource(ctx context.Context, ref string) error {
	return r.update(ctx, bson.M{"$pull": bson.M{"sources": strings.TrimSpace(ref)}})
}

// SetTarget 设置目标
func (r *MongoSettingsRepository) SetTarget(ctx context.Context, ref string) error {
	return r.update(ctx, bson.M{"$set": bson.M{"target": strings.TrimSpace(ref)}})
}

// AddBlockedKeyword 添加屏蔽关键词
func (r *MongoSettingsRepository) AddBlockedKeyword(ctx context.Context, keyword string) error {
	return r.update(ctx, bson.M{"$addToSet": bson.M{"blocked_keywords": strings.TrimSpace(keyword)}})
}

// RemoveBlockedKeyword 移除屏蔽关键词
func (r *MongoSettingsRepository) RemoveBlockedKeyword(ctx context.Context, keyword string) error {
	return r.update(ctx, bson.M{"$pull": bson.M{"blocked_keywords": strings.TrimSpace(keyword)}})
}

// AddBlockedType 添加屏蔽类型（统一小写）
func (r *MongoSettingsRepository) AddBlockedType(ctx context.Context, blockType string) error {
	return r.update(ctx, bson.M{"$addToSet": bson.M{"blocked_types": normalizeType(blockType)}})
}

// RemoveBlockedType 移除屏蔽类型
func (r *MongoSettingsRepository) RemoveBlockedType(ctx context.Context, blockType string) error {
	return r.update(ctx, bson.M{"$pull": bson.M{"blocked_types": normalizeType(blockType)}})
}

// SetAIEnabled 开关 AI 改写
func (r *MongoSettingsRepository) SetAIEnabled(ctx context.Context, enabled bool) error {
	return r.update(ctx, bson.M{"$set": bson.M{"ai_enabled": enabled}})
}

// SetAIModel 设置 AI 模型
func (r *MongoSettingsRepository) SetAIModel(ctx context.Context, model string) error {
	return r.update(ctx, bson.M{"$set": bson.M{"ai_model": strings.TrimSpace(model)}})
}

func (r *MongoSettingsRepository) update(ctx context.Context, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["updated_at"] = time.Now()

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": models.SettingsDocumentID}, update, opts); err != nil {
		return fmt.Errorf("failed to update relay settings: %w", err)
	}
	return nil
}

func normalizeType(blockType string) string {
	return strings.ToLower(strings.TrimSpace(blockType))
}
