package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay_bot/internal/relay/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const queueStateID = "post_queue"

// queueState 队列游标：自增序号与最近一次分配的发布时间
type queueState struct {
	ID               string    `bson:"_id"`
	Seq              int64     `bson:"seq"`
	LastScheduledFor time.Time `bson:"last_scheduled_for"`
}

// MongoQueueRepository 发布队列（MongoDB 实现）
type MongoQueueRepository struct {
	collection *mongo.Collection
	state      *mongo.Collection
}

// NewMongoQueueRepository 创建发布队列 Repository
func NewMongoQueueRepository(db *mongo.Database) QueueRepository {
	return &MongoQueueRepository{
		collection: db.Collection("post_queue"),
		state:      db.Collection("queue_state"),
	}
}

// Enqueue 写入队列
func (r *MongoQueueRepository) Enqueue(ctx context.Context, item *models.QueuedItem, now time.Time, initialDelay, spacing time.Duration) error {
	// 先查重，避免重复消息占用发布节奏
	exists, err := r.sourceExists(ctx, item.SourceChatID, item.SourceMessageID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}

	state, err := r.reserveSlot(ctx, now, initialDelay, spacing)
	if err != nil {
		return err
	}

	item.ID = state.Seq
	item.ScheduledFor = state.LastScheduledFor
	item.CreatedAt = now

	if _, err := r.collection.InsertOne(ctx, item); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert queued item: %w", err)
	}

	return nil
}

func (r *MongoQueueRepository) sourceExists(ctx context.Context, chatID, messageID int64) (bool, error) {
	filter := bson.M{
		"source_chat_id":    chatID,
		"source_message_id": messageID,
	}
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})

	var doc bson.M
	err := r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check queued source: %w", err)
	}
	return true, nil
}

// reserveSlot 原子地分配序号与发布时间
// 使用聚合管道更新，$set 中的表达式读取的都是更新前的值
func (r *MongoQueueRepository) reserveSlot(ctx context.Context, now time.Time, initialDelay, spacing time.Duration) (*queueState, error) {
	earliest := now.Add(initialDelay).UTC()
	epoch := time.Unix(0, 0).UTC()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "seq", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$seq", 0}}},
				1,
			}}}},
			{Key: "last_scheduled_for", Value: bson.D{{Key: "$max", Value: bson.A{
				earliest,
				bson.D{{Key: "$add", Value: bson.A{
					bson.D{{Key: "$ifNull", Value: bson.A{"$last_scheduled_for", epoch}}},
					spacing.Milliseconds(),
				}}},
			}}}},
		}}},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var state queueState
	err := r.state.FindOneAndUpdate(ctx, bson.M{"_id": queueStateID}, update, opts).Decode(&state)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve queue slot: %w", err)
	}

	return &state, nil
}

// ListDue 列出到期记录
func (r *MongoQueueRepository) ListDue(ctx context.Context, now time.Time) ([]*models.QueuedItem, error) {
	filter := bson.M{"scheduled_for": bson.M{"$lte": now}}
	opts := options.Find().SetSort(bson.D{
		{Key: "scheduled_for", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list due items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []*models.QueuedItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode due items: %w", err)
	}

	return items, nil
}

// Delete 删除记录（幂等）
func (r *MongoQueueRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete queued item %d: %w", id, err)
	}
	return nil
}

// RecordFailure 记录投递失败
func (r *MongoQueueRepository) RecordFailure(ctx context.Context, id int64, reason string, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{
			"last_error":      reason,
			"last_attempt_at": at,
		},
	}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("failed to record failure for item %d: %w", id, err)
	}
	return nil
}

// Stats 队列统计
func (r *MongoQueueRepository) Stats(ctx context.Context) (models.QueueStats, error) {
	pipeline := []bson.M{
		{
			"$group": bson.M{
				"_id":   nil,
				"depth": bson.M{"$sum": 1},
				"failing": bson.M{"$sum": bson.M{
					"$cond": bson.A{bson.M{"$gt": bson.A{"$attempts", 0}}, 1, 0},
				}},
				"next": bson.M{"$min": "$scheduled_for"},
			},
		},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("failed to aggregate queue stats: %w", err)
	}
	defer cursor.Close(ctx)

	var stats models.QueueStats
	if cursor.Next(ctx) {
		var doc struct {
			Depth   int64     `bson:"depth"`
			Failing int64     `bson:"failing"`
			Next    time.Time `bson:"next"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return models.QueueStats{}, fmt.Errorf("failed to decode queue stats: %w", err)
		}
		stats.Depth = doc.Depth
		stats.Failing = doc.Failing
		if !doc.Next.IsZero() {
			next := doc.Next
			stats.NextScheduledFor = &next
		}
	}

	if err := cursor.Err(); err != nil {
		return models.QueueStats{}, fmt.Errorf("cursor error: %w", err)
	}

	return stats, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoQueueRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 到期扫描
		{
			Keys: bson.D{
				{Key: "scheduled_for", Value: 1},
				{Key: "_id", Value: 1},
			},
		},
		// 同一源消息只入队一次
		{
			Keys: bson.D{
				{Key: "source_chat_id", Value: 1},
				{Key: "source_message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for post_queue: %w", err)
	}

	return nil
}
