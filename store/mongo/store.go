// Package mongo provides a store.Store backed by MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jhosm/ProductBundles-sub000/instance"
	"github.com/jhosm/ProductBundles-sub000/schedule"
)

// Collection name constants.
const (
	colInstances = "bundle_instances"
	colSchedules = "bundle_schedules"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ instance.Store = (*Store)(nil)
	_ schedule.Store = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store. The caller owns
// the client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new MongoDB store over the given database handle.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *mongo.Database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates the indexes the store queries depend on.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongod.IndexModel{
		colInstances: {
			{Keys: bson.D{{Key: "bundle_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colSchedules: {
			{Keys: bson.D{{Key: "job_key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "enabled", Value: 1}, {Key: "next_run_at", Value: 1}}},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("bundles/mongo: create indexes for %s: %w", col, err)
		}
		s.logger.Debug("ensured indexes", slog.String("collection", col))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// isNoDocuments returns true when err indicates no matching document.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey returns true for unique index violations.
func isDuplicateKey(err error) bool {
	return mongod.IsDuplicateKeyError(err)
}
