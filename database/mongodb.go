package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"clinic-booking-chatbot/config"
	"clinic-booking-chatbot/utils"
)

const (
	AppointmentsCollection = "appointments"
	UsersCollection        = "users"
	MessagesCollection     = "messages"
)

var (
	mongoMu     sync.RWMutex
	mongoClient *mongo.Client
	mongoDB     *mongo.Database
)

// ConnectMongoDB establishes connection to MongoDB
func ConnectMongoDB(cfg *config.Config, logger *zap.Logger) error {
	logger = utils.LoggerOrNop(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.BuildDatabaseURI()).
		SetMaxPoolSize(uint64(cfg.Database.MaxConnections)).
		SetMinPoolSize(uint64(cfg.Database.MinConnections)).
		SetMaxConnIdleTime(cfg.Database.MaxIdleTime)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database.Name)
	if err := CreateIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	mongoMu.Lock()
	mongoClient = client
	mongoDB = db
	mongoMu.Unlock()

	logger.Info("connected to MongoDB", zap.String("database", cfg.Database.Name))
	return nil
}

// MongoDB returns the connected database.
func MongoDB() (*mongo.Database, error) {
	mongoMu.RLock()
	defer mongoMu.RUnlock()
	if mongoDB == nil {
		return nil, ErrNotConnected
	}
	return mongoDB, nil
}

// MongoClient returns the connected client.
func MongoClient() (*mongo.Client, error) {
	mongoMu.RLock()
	defer mongoMu.RUnlock()
	if mongoClient == nil {
		return nil, ErrNotConnected
	}
	return mongoClient, nil
}

// CreateIndexes creates the indexes the chatbot's queries rely on.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	appointmentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "scheduled_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	if _, err := db.Collection(AppointmentsCollection).Indexes().CreateMany(ctx, appointmentIndexes); err != nil {
		return fmt.Errorf("failed to create appointment indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "session_id", Value: 1},
				{Key: "created_at", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	if _, err := db.Collection(MessagesCollection).Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	userIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
		},
	}
	if _, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	return nil
}

// DisconnectMongoDB closes the MongoDB connection
func DisconnectMongoDB() error {
	mongoMu.Lock()
	client := mongoClient
	mongoClient = nil
	mongoDB = nil
	mongoMu.Unlock()

	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}
