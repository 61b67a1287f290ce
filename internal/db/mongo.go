package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"regwatch/internal/config"
	"regwatch/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	writeTimeout   = 5 * time.Second
)

// MongoDB keeps the fetch history: one document per attempted source.
type MongoDB struct {
	client  *mongo.Client
	history *mongo.Collection
}

func NewMongoDB(ctx context.Context, cfg config.HistoryConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Connection))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	d := &MongoDB{
		client:  client,
		history: client.Database(cfg.Database).Collection(cfg.Collection),
	}

	if err := d.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't create indexes: %w", err)
	}

	return d, nil
}

func (d *MongoDB) createIndexes(ctx context.Context) error {
	_, err := d.history.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
		{Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}

// SaveHistory inserts one fetch outcome.
func (d *MongoDB) SaveHistory(ctx context.Context, h *models.CrawlHistory) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if _, err := d.history.InsertOne(ctx, h); err != nil {
		return fmt.Errorf("insert history for source %d: %w", h.SourceID, err)
	}
	return nil
}

// RunStatusCounts returns how many outcomes of each status a run recorded.
func (d *MongoDB) RunStatusCounts(ctx context.Context, runID string) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "run_id", Value: runID}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := d.history.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate run history: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode run history: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}
