package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// CreateInstance persists a new instance and indexes it under its
// bundle with the next insertion sequence number.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	key := instanceKey(inst.ID.String())
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("bundles/redis: marshal instance: %w", err)
	}

	created, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("bundles/redis: create instance: %w", err)
	}
	if !created {
		return bundles.ErrInstanceExists
	}

	seq, err := s.client.Incr(ctx, instanceSeqKey).Result()
	if err != nil {
		return fmt.Errorf("bundles/redis: next sequence: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, bundleIndexKey(inst.BundleID), redis.Z{
		Score:  float64(seq),
		Member: inst.ID.String(),
	})
	pipe.HSet(ctx, instanceBundleKey, inst.ID.String(), inst.BundleID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bundles/redis: index instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	data, err := s.client.Get(ctx, instanceKey(instanceID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, bundles.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("bundles/redis: get instance: %w", err)
	}

	var inst instance.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("bundles/redis: unmarshal instance: %w", err)
	}
	return &inst, nil
}

// UpdateInstance persists changes to an existing instance. Last writer
// wins.
func (s *Store) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	cp := inst.Clone()
	cp.Touch()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("bundles/redis: marshal instance: %w", err)
	}

	updated, err := s.client.SetXX(ctx, instanceKey(inst.ID.String()), data, 0).Result()
	if err != nil {
		return fmt.Errorf("bundles/redis: update instance: %w", err)
	}
	if !updated {
		return bundles.ErrInstanceNotFound
	}
	return nil
}

// DeleteInstance removes an instance and its index entries.
func (s *Store) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	key := instanceID.String()

	bundleID, err := s.client.HGet(ctx, instanceBundleKey, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return bundles.ErrInstanceNotFound
		}
		return fmt.Errorf("bundles/redis: resolve instance bundle: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, instanceKey(key))
	pipe.ZRem(ctx, bundleIndexKey(bundleID), key)
	pipe.HDel(ctx, instanceBundleKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bundles/redis: delete instance: %w", err)
	}
	return nil
}

// InstanceExists reports whether an instance exists.
func (s *Store) InstanceExists(ctx context.Context, instanceID id.InstanceID) (bool, error) {
	n, err := s.client.Exists(ctx, instanceKey(instanceID.String())).Result()
	if err != nil {
		return false, fmt.Errorf("bundles/redis: instance exists: %w", err)
	}
	return n > 0, nil
}

// ListInstancesByBundle returns one page of a bundle's instances in
// insertion-sequence order.
func (s *Store) ListInstancesByBundle(ctx context.Context, bundleID string, req instance.PageRequest) (*instance.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := int64(req.Skip())
	stop := start + int64(req.Size) - 1
	ids, err := s.client.ZRange(ctx, bundleIndexKey(bundleID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("bundles/redis: list bundle index: %w", err)
	}
	if len(ids) == 0 {
		return instance.NewPage(nil, req), nil
	}

	keys := make([]string, len(ids))
	for i, instanceID := range ids {
		keys[i] = instanceKey(instanceID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("bundles/redis: fetch instances: %w", err)
	}

	items := make([]*instance.Instance, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a document; treat as deleted.
			s.logger.Warn("dangling bundle index entry", "instance_id", ids[i])
			continue
		}
		var inst instance.Instance
		if err := json.Unmarshal([]byte(raw), &inst); err != nil {
			return nil, fmt.Errorf("bundles/redis: unmarshal instance: %w", err)
		}
		items = append(items, &inst)
	}
	return instance.NewPage(items, req), nil
}

// CountInstances returns the total number of persisted instances.
func (s *Store) CountInstances(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, instanceBundleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("bundles/redis: count instances: %w", err)
	}
	return int(n), nil
}

// CountInstancesByBundle returns the number of instances bound to one
// bundle.
func (s *Store) CountInstancesByBundle(ctx context.Context, bundleID string) (int, error) {
	n, err := s.client.ZCard(ctx, bundleIndexKey(bundleID)).Result()
	if err != nil {
		return 0, fmt.Errorf("bundles/redis: count instances by bundle: %w", err)
	}
	return int(n), nil
}
