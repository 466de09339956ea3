package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"clinic-booking-chatbot/config"
)

var ErrNotConnected = errors.New("database is not connected")

// Connect establishes database connection based on config
func Connect(cfg *config.Config, logger *zap.Logger) error {
	switch cfg.Database.Type {
	case "mongodb":
		return ConnectMongoDB(cfg, logger)
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}

// Disconnect closes database connection
func Disconnect() error {
	return DisconnectMongoDB()
}

// HealthCheck performs a database health check
func HealthCheck(ctx context.Context) error {
	client, err := MongoClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary())
}
