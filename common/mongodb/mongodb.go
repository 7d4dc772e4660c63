package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Client wraps a mongo client bound to the configured database
type Client struct {
	*mongo.Client
	Database   *mongo.Database
	collection string
	log        *logger.Logger
}

// Connect opens a client for cfg and verifies the primary is reachable
func Connect(ctx context.Context, cfg config.MongoConfig, log *logger.Logger) (*Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Info("mongo connected", "database", cfg.Database)

	return &Client{
		Client:   client,
		Database:   client.Database(cfg.Database),
		collection: cfg.Collection,
		log:        log,
	}, nil
}

// Collection returns the configured default collection
func (c *Client) Collection() *mongo.Collection {
	return c.Database.Collection(c.collection)
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	c.log.Info("closing mongo client")
	return c.Client.Disconnect(ctx)
}

// Health pings the primary
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.Client.Ping(ctx, readpref.Primary())
}
