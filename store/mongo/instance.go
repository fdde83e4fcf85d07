package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// CreateInstance persists a new instance document.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	m, err := toInstanceModel(inst)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(colInstances).InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return bundles.ErrInstanceExists
		}
		return fmt.Errorf("bundles/mongo: create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	var m instanceModel
	err := s.db.Collection(colInstances).
		FindOne(ctx, bson.M{"_id": instanceID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bundles.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("bundles/mongo: get instance: %w", err)
	}
	return fromInstanceModel(&m)
}

// UpdateInstance persists changes to an existing instance. Last writer
// wins.
func (s *Store) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	m, err := toInstanceModel(inst)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.Collection(colInstances).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("bundles/mongo: update instance: %w", err)
	}
	if res.MatchedCount == 0 {
		return bundles.ErrInstanceNotFound
	}
	return nil
}

// DeleteInstance removes an instance document.
func (s *Store) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	res, err := s.db.Collection(colInstances).
		DeleteOne(ctx, bson.M{"_id": instanceID.String()})
	if err != nil {
		return fmt.Errorf("bundles/mongo: delete instance: %w", err)
	}
	if res.DeletedCount == 0 {
		return bundles.ErrInstanceNotFound
	}
	return nil
}

// InstanceExists reports whether an instance document exists.
func (s *Store) InstanceExists(ctx context.Context, instanceID id.InstanceID) (bool, error) {
	count, err := s.db.Collection(colInstances).
		CountDocuments(ctx, bson.M{"_id": instanceID.String()}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("bundles/mongo: instance exists: %w", err)
	}
	return count > 0, nil
}

// ListInstancesByBundle returns one page of a bundle's instances,
// ordered by creation time then ID.
func (s *Store) ListInstancesByBundle(ctx context.Context, bundleID string, req instance.PageRequest) (*instance.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(req.Skip())).
		SetLimit(int64(req.Size))

	cursor, err := s.db.Collection(colInstances).
		Find(ctx, bson.M{"bundle_id": bundleID}, opts)
	if err != nil {
		return nil, fmt.Errorf("bundles/mongo: list instances: %w", err)
	}
	defer cursor.Close(ctx)

	var items []*instance.Instance
	for cursor.Next(ctx) {
		var m instanceModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("bundles/mongo: decode instance: %w", err)
		}
		inst, convErr := fromInstanceModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		items = append(items, inst)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("bundles/mongo: list instances cursor: %w", err)
	}
	return instance.NewPage(items, req), nil
}

// CountInstances returns the total number of instance documents.
func (s *Store) CountInstances(ctx context.Context) (int, error) {
	count, err := s.db.Collection(colInstances).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("bundles/mongo: count instances: %w", err)
	}
	return int(count), nil
}

// CountInstancesByBundle returns the number of documents for one
// bundle.
func (s *Store) CountInstancesByBundle(ctx context.Context, bundleID string) (int, error) {
	count, err := s.db.Collection(colInstances).
		CountDocuments(ctx, bson.M{"bundle_id": bundleID})
	if err != nil {
		return 0, fmt.Errorf("bundles/mongo: count instances by bundle: %w", err)
	}
	return int(count), nil
}
