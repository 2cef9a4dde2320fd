package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatEntry は観戦チャット1件
type ChatEntry struct {
	MatchID   string    `bson:"match_id" json:"matchId"`
	UserID    uint      `bson:"user_id" json:"-"`
	Username  string    `bson:"username" json:"username"`
	Message   string    `bson:"message" json:"message"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// ChatLog は観戦チャットの保存先。配信には関与せず、履歴参照のためだけに使う
type ChatLog struct {
	Client     *mongo.Client
	Collection *mongo.Collection
}

// NewChatLog はMongoDBに接続して chat_messages コレクションを使う ChatLog を返す
func NewChatLog(ctx context.Context, mongoURI, dbName string) (*ChatLog, error) {
	if mongoURI == "" || dbName == "" {
		return nil, fmt.Errorf("mongo uri and database name are required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &ChatLog{
		Client:     client,
		Collection: client.Database(dbName).Collection("chat_messages"),
	}, nil
}

func (c *ChatLog) Append(ctx context.Context, entry ChatEntry) error {
	if _, err := c.Collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("append chat for %s: %w", entry.MatchID, err)
	}
	return nil
}

// Recent は直近 limit 件を古い順で返す
func (c *ChatLog) Recent(ctx context.Context, matchID string, limit int64) ([]ChatEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cursor, err := c.Collection.Find(ctx, bson.M{"match_id": matchID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find chat for %s: %w", matchID, err)
	}
	defer cursor.Close(ctx)

	var entries []ChatEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode chat for %s: %w", matchID, err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (c *ChatLog) Close(ctx context.Context) error {
	return c.Client.Disconnect(ctx)
}
