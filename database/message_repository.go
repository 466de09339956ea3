package database

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-booking-chatbot/models"
)

// MessageRepository archives transcript turns.
type MessageRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMessageRepository(db *mongo.Database, timeout time.Duration) *MessageRepository {
	return &MessageRepository{
		coll:    db.Collection(MessagesCollection),
		timeout: timeout,
	}
}

func (r *MessageRepository) ArchiveTurn(ctx context.Context, turn models.ArchivedTurn) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if _, err := r.coll.InsertOne(ctx, turn); err != nil {
		return fmt.Errorf("archive turn %s: %w", turn.ID, err)
	}
	return nil
}

// SessionTurns returns the latest limit archived turns of a session, oldest
// first.
func (r *MessageRepository) SessionTurns(ctx context.Context, sessionID string, limit int64) ([]models.ArchivedTurn, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.coll.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find session turns: %w", err)
	}
	defer cursor.Close(ctx)

	turns := []models.ArchivedTurn{}
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, fmt.Errorf("decode session turns: %w", err)
	}
	slices.Reverse(turns)
	return turns, nil
}
