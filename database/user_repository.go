package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"clinic-booking-chatbot/models"
)

type userDocument struct {
	ID      interface{} `bson:"_id"`
	Name    string      `bson:"name"`
	Gender  string      `bson:"gender"`
	Phone   string      `bson:"phone"`
	Address string      `bson:"address"`
}

// UserRepository reads account data from the users collection.
type UserRepository struct {
	coll        *mongo.Collection
	timeout     time.Duration
	countryCode string
}

func NewUserRepository(db *mongo.Database, timeout time.Duration, countryCode string) *UserRepository {
	return &UserRepository{
		coll:        db.Collection(UsersCollection),
		timeout:     timeout,
		countryCode: countryCode,
	}
}

func (r *UserRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, func() {}
}

// FetchProfile returns the user's profile, or nil when the user does not
// exist.
func (r *UserRepository) FetchProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var doc userDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": bson.M{"$in": idCandidates(userID)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}

	return &models.UserProfile{
		Name:    strings.TrimSpace(doc.Name),
		Gender:  strings.TrimSpace(doc.Gender),
		Phone:   strings.TrimSpace(doc.Phone),
		Address: strings.TrimSpace(doc.Address),
	}, nil
}

// FindByPhone resolves a WhatsApp sender to an account. It returns nil
// when no account uses the number.
func (r *UserRepository) FindByPhone(ctx context.Context, waID string) (*models.User, error) {
	variants := phoneVariants(waID, r.countryCode)
	if len(variants) == 0 {
		return nil, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var doc userDocument
	err := r.coll.FindOne(ctx, bson.M{"phone": bson.M{"$in": variants}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by phone: %w", err)
	}

	return &models.User{ID: idString(doc.ID), DisplayName: doc.Name}, nil
}
