package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"corpchat-backend/internal/model"
)

type MongoWorkdayStore struct {
	workdays *mongo.Collection
}

func NewMongoWorkdayStore(ctx context.Context, db *MongoDB) (*MongoWorkdayStore, error) {
	workdays := db.Collection("workdays")

	if _, err := workdays.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create workday indexes: %w", err)
	}

	return &MongoWorkdayStore{workdays: workdays}, nil
}

// Get returns the user's record for date, or nil if there is none.
func (s *MongoWorkdayStore) Get(ctx context.Context, userID, date string) (*model.WorkdayRecord, error) {
	var record model.WorkdayRecord
	err := s.workdays.FindOne(ctx, bson.M{
		"user_id": userID,
		"date":    date,
	}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find workday: %w", err)
	}
	return &record, nil
}

// GetMany returns the records for date belonging to any of userIDs in one query.
func (s *MongoWorkdayStore) GetMany(ctx context.Context, date string, userIDs []string) ([]*model.WorkdayRecord, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	cursor, err := s.workdays.Find(ctx, bson.M{
		"date":    date,
		"user_id": bson.M{"$in": userIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("find workdays: %w", err)
	}
	var results []*model.WorkdayRecord
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode workdays: %w", err)
	}
	return results, nil
}

// Insert creates the record and sets its ID. A concurrent first write for
// the same user and day surfaces as ErrDuplicate.
func (s *MongoWorkdayStore) Insert(ctx context.Context, record *model.WorkdayRecord) error {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	res, err := s.workdays.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert workday: %w", err)
	}
	record.ID = res.InsertedID.(bson.ObjectID)
	return nil
}

// Update replaces the record only if the stored revision is still prevRevision.
func (s *MongoWorkdayStore) Update(ctx context.Context, record *model.WorkdayRecord, prevRevision int) error {
	record.UpdatedAt = time.Now()
	res, err := s.workdays.ReplaceOne(ctx, bson.M{
		"_id":      record.ID,
		"revision": prevRevision,
	}, record)
	if err != nil {
		return fmt.Errorf("replace workday: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrStale
	}
	return nil
}
