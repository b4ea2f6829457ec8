package persistence

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTombstoneStore is a TombstoneStore backed by a MongoDB collection.
type MongoTombstoneStore struct {
	coll *mongo.Collection
}

var _ TombstoneStore = (*MongoTombstoneStore)(nil)

// NewMongoTombstoneStore creates a Mongo-backed tombstone store.
// dbName defaults to "pageflow" if empty, collName defaults to "tombstones".
func NewMongoTombstoneStore(client *mongo.Client, dbName, collName string) *MongoTombstoneStore {
	if dbName == "" {
		dbName = "pageflow"
	}
	if collName == "" {
		collName = "tombstones"
	}

	return &MongoTombstoneStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

func (s *MongoTombstoneStore) Bury(ctx context.Context, t Tombstone) error {
	_, err := s.coll.UpdateByID(ctx, t.Ticket,
		bson.M{"$setOnInsert": bson.M{
			"flow_name": t.Flow,
			"swept_at":  t.SweptAt.UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoTombstoneStore) IsBuried(ctx context.Context, ticket string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": ticket}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoTombstoneStore) Purge(ctx context.Context, before time.Time) (int, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"swept_at": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
