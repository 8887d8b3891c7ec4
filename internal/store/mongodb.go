// internal/store/mongodb.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOptions configures the MongoDB backend.
type MongoOptions struct {
	URI        string        `yaml:"uri" json:"uri"`
	Database   string        `yaml:"database" json:"database"`
	Collection string        `yaml:"collection,omitempty" json:"collection,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// MongoStore implements Store on top of a single MongoDB collection with
// (kind, key) as the compound identifier. Replacement of one document is
// atomic, which satisfies the per-record write contract.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoRecord struct {
	Kind      string    `bson:"kind"`
	Key       string    `bson:"key"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore connects to MongoDB and ensures the record index.
func NewMongoStore(opts MongoOptions) (Store, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("MongoDB URI is required")
	}
	if opts.Database == "" {
		return nil, fmt.Errorf("MongoDB database name is required")
	}
	if opts.Collection == "" {
		opts.Collection = "learned_records"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(opts.Database).Collection(opts.Collection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &MongoStore{client: client, collection: collection}, nil
}

// Load implements Store.
func (m *MongoStore) Load(ctx context.Context, kind Kind, key string, v interface{}) error {
	var rec mongoRecord
	err := m.collection.FindOne(ctx, bson.M{"kind": string(kind), "key": key}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(rec.Data, v); err != nil {
		return fmt.Errorf("failed to decode record %s/%s: %w", kind, key, err)
	}
	return nil
}

// Save implements Store.
func (m *MongoStore) Save(ctx context.Context, kind Kind, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s/%s: %w", kind, key, err)
	}
	rec := mongoRecord{Kind: string(kind), Key: key, Data: data, UpdatedAt: time.Now().UTC()}
	_, err = m.collection.ReplaceOne(ctx,
		bson.M{"kind": string(kind), "key": key},
		rec,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// List implements Store.
func (m *MongoStore) List(ctx context.Context, kind Kind, each func(key string, data []byte) error) error {
	cursor, err := m.collection.Find(ctx, bson.M{"kind": string(kind)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var rec mongoRecord
		if err := cursor.Decode(&rec); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		if err := each(rec.Key, rec.Data); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// Delete implements Store.
func (m *MongoStore) Delete(ctx context.Context, kind Kind, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"kind": string(kind), "key": key}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Prune implements Store.
func (m *MongoStore) Prune(ctx context.Context, kind Kind, cutoff time.Time) (int, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{
		"kind":       string(kind),
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(res.DeletedCount), nil
}

// Close implements Store.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
