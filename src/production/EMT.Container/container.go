package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	config "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Config"
	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	health "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Startup/health"
)

// Container manages the receiver's shared dependencies and their lifecycle.
type Container struct {
	config *config.ReceiverConfig
	logger *logger.Logger

	mu          sync.Mutex
	mongoClient *mongo.Client

	cleanupFuncs []func() error
}

// NewContainer loads configuration and builds the dependency container.
func NewContainer() (*Container, error) {
	cfg, err := config.LoadReceiverConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(&cfg.Logging)

	return &Container{
		config: cfg,
		logger: log,
	}, nil
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.ReceiverConfig {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetMongoClient returns the shared Mongo client, connecting on first use.
func (c *Container) GetMongoClient() (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mongoClient == nil {
		client, err := health.ConnectMongoWithTimeout(c.config.Mongo.URI, 20*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		c.mongoClient = client
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
	}

	return c.mongoClient, nil
}

// GetReadingCollection returns the configured reading collection.
func (c *Container) GetReadingCollection() (*mongo.Collection, error) {
	client, err := c.GetMongoClient()
	if err != nil {
		return nil, err
	}
	return client.Database(c.config.Mongo.Database).Collection(c.config.Mongo.ReadingCollection), nil
}

// GetMaxDemandCollection returns the configured maximum demand collection.
func (c *Container) GetMaxDemandCollection() (*mongo.Collection, error) {
	client, err := c.GetMongoClient()
	if err != nil {
		return nil, err
	}
	return client.Database(c.config.Mongo.Database).Collection(c.config.Mongo.MaxDemandCollection), nil
}

// StoreConnected reports Mongo reachability for health checks.
func (c *Container) StoreConnected(ctx context.Context) bool {
	c.mu.Lock()
	client := c.mongoClient
	c.mu.Unlock()
	if client == nil {
		return false
	}
	return health.Ping(ctx, client)
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := make([]func() error, len(c.cleanupFuncs))
	copy(funcs, c.cleanupFuncs)
	c.mu.Unlock()

	// Cleanup in reverse registration order.
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}
