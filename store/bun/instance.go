package bunstore

import (
	"context"
	"fmt"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// CreateInstance persists a new instance.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	if inst == nil {
		return bundles.ErrNilInstance
	}

	m, err := toInstanceModel(inst)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return bundles.ErrInstanceExists
		}
		return fmt.Errorf("bundles/bun: create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	m := new(instanceModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", instanceID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bundles.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("bundles/bun: get instance: %w", err)
	}
	return fromInstanceModel(m)
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

	res, err := s.db.NewUpdate().Model(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bundles/bun: update instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bundles/bun: update instance rows affected: %w", err)
	}
	if affected == 0 {
		return bundles.ErrInstanceNotFound
	}
	return nil
}

// DeleteInstance removes an instance by ID.
func (s *Store) DeleteInstance(ctx context.Context, instanceID id.InstanceID) error {
	res, err := s.db.NewDelete().Model((*instanceModel)(nil)).
		Where("id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bundles/bun: delete instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bundles/bun: delete instance rows affected: %w", err)
	}
	if affected == 0 {
		return bundles.ErrInstanceNotFound
	}
	return nil
}

// InstanceExists reports whether an instance with the given ID exists.
func (s *Store) InstanceExists(ctx context.Context, instanceID id.InstanceID) (bool, error) {
	exists, err := s.db.NewSelect().Model((*instanceModel)(nil)).
		Where("id = ?", instanceID.String()).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("bundles/bun: instance exists: %w", err)
	}
	return exists, nil
}

// ListInstancesByBundle returns one page of a bundle's instances,
// ordered by creation time then ID.
func (s *Store) ListInstancesByBundle(ctx context.Context, bundleID string, req instance.PageRequest) (*instance.Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var models []instanceModel
	err := s.db.NewSelect().Model(&models).
		Where("bundle_id = ?", bundleID).
		Order("created_at ASC", "id ASC").
		Offset(req.Skip()).
		Limit(req.Size).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundles/bun: list instances: %w", err)
	}

	items := make([]*instance.Instance, 0, len(models))
	for i := range models {
		inst, convErr := fromInstanceModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("bundles/bun: list instances convert: %w", convErr)
		}
		items = append(items, inst)
	}
	return instance.NewPage(items, req), nil
}

// CountInstances returns the total number of persisted instances.
func (s *Store) CountInstances(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*instanceModel)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bundles/bun: count instances: %w", err)
	}
	return count, nil
}

// CountInstancesByBundle returns the number of instances bound to the
// given bundle.
func (s *Store) CountInstancesByBundle(ctx context.Context, bundleID string) (int, error) {
	count, err := s.db.NewSelect().Model((*instanceModel)(nil)).
		Where("bundle_id = ?", bundleID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bundles/bun: count instances by bundle: %w", err)
	}
	return count, nil
}
