package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoEntry struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty"`
}

// MongoStore keeps keys as documents in one collection. A TTL index on
// expiresAt lets the server reap old documents; because the reaper runs
// about once a minute, reads also filter on expiresAt.
type MongoStore struct {
	coll *mongo.Collection
	nowF func() time.Time
}

// NewMongoStore ensures the TTL index exists on coll.
func NewMongoStore(ctx context.Context, coll *mongo.Collection) (*MongoStore, error) {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("create ttl index: %w", err)
	}
	return &MongoStore{coll: coll, nowF: time.Now}, nil
}

func (s *MongoStore) liveFilter(key string) bson.M {
	return bson.M{
		"_id": key,
		"$or": bson.A{
			bson.M{"expiresAt": bson.M{"$exists": false}},
			bson.M{"expiresAt": bson.M{"$gt": s.nowF()}},
		},
	}
}

func (s *MongoStore) find(ctx context.Context, key string) (*mongoEntry, error) {
	var e mongoEntry
	err := s.coll.FindOne(ctx, s.liveFilter(key)).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", key, err)
	}
	return &e, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (s *MongoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := mongoEntry{Key: key, Value: value}
	if ttl > 0 {
		at := s.nowF().Add(ttl).UTC()
		e.ExpiresAt = &at
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, e, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert %s: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, s.liveFilter(key))
	if err != nil {
		return false, fmt.Errorf("mongo delete %s: %w", key, err)
	}
	if res.DeletedCount == 0 {
		// drop an expired leftover the reaper has not reached yet
		_, _ = s.coll.DeleteOne(ctx, bson.M{"_id": key})
		return false, nil
	}
	return true, nil
}

func (s *MongoStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	e, err := s.find(ctx, key)
	if err != nil {
		return 0, err
	}
	if e.ExpiresAt == nil {
		return 0, nil
	}
	return e.ExpiresAt.Sub(s.nowF()), nil
}

func (s *MongoStore) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	filter := s.liveFilter(key)
	filter["value"] = old
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"value": value}})
	if err != nil {
		return false, fmt.Errorf("mongo swap %s: %w", key, err)
	}
	return res.MatchedCount == 1, nil
}

func (s *MongoStore) CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error) {
	filter := s.liveFilter(key)
	filter["value"] = old
	res, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("mongo delete %s: %w", key, err)
	}
	return res.DeletedCount == 1, nil
}
