package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ironlog/ironlog/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoHistoryStore implements domain.HistoryStore. Profiles, plans and
// finished workout logs live in their own collections keyed by user id; the
// engine treats profile and plan documents as opaque JSON.
type MongoHistoryStore struct {
	profiles *mongo.Collection
	plans    *mongo.Collection
	logs     *mongo.Collection
}

// NewMongoHistoryStore creates a history store on the given database.
func NewMongoHistoryStore(db *mongo.Database) *MongoHistoryStore {
	return &MongoHistoryStore{
		profiles: db.Collection("profiles"),
		plans:    db.Collection("plans"),
		logs:     db.Collection("workout_logs"),
	}
}

// LoadProfile returns the user's profile document as JSON, or ErrNotFound.
func (s *MongoHistoryStore) LoadProfile(ctx context.Context, userID string) ([]byte, error) {
	return s.loadOpaque(ctx, s.profiles, userID)
}

// LoadPlan returns the user's training plan document as JSON, or ErrNotFound.
func (s *MongoHistoryStore) LoadPlan(ctx context.Context, userID string) ([]byte, error) {
	return s.loadOpaque(ctx, s.plans, userID)
}

func (s *MongoHistoryStore) loadOpaque(ctx context.Context, coll *mongo.Collection, userID string) ([]byte, error) {
	var doc bson.M
	err := coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load %s document: %w", coll.Name(), err)
	}
	delete(doc, "_id")

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s document: %w", coll.Name(), err)
	}
	return data, nil
}

// LoadLogs returns the user's workout history, most recent first.
func (s *MongoHistoryStore) LoadLogs(ctx context.Context, userID string) ([]*domain.WorkoutLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}})
	cursor, err := s.logs.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load workout logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []*domain.WorkoutLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode workout logs: %w", err)
	}
	if logs == nil {
		logs = []*domain.WorkoutLog{}
	}
	return logs, nil
}

// SaveLog inserts a finished workout and returns it with its assigned id.
func (s *MongoHistoryStore) SaveLog(ctx context.Context, log *domain.WorkoutLog) (*domain.WorkoutLog, error) {
	if log.CompletedAt.IsZero() {
		log.CompletedAt = time.Now()
	}

	result, err := s.logs.InsertOne(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to save workout log: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		log.ID = oid.Hex()
	}
	return log, nil
}
