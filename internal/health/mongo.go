package health

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoChecker implements health checking for the MongoDB document store.
type MongoChecker struct {
	client *mongo.Client
}

// NewMongoChecker creates a new MongoDB health checker.
func NewMongoChecker(client *mongo.Client) *MongoChecker {
	return &MongoChecker{client: client}
}

// HealthCheck pings the primary.
func (m *MongoChecker) HealthCheck(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
