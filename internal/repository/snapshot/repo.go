// Package snapshot persists saved filter snapshots as JSON values in the
// key-value store.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atelier-cloud/shelfdex/internal/db"
	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
	"github.com/atelier-cloud/shelfdex/internal/usecase/snapshot"
)

var _ snapshot.Repository = (*Repo)(nil)

// Repo stores snapshots under <prefix>snapshot:<id>.
type Repo struct {
	store  db.KVStore
	prefix string
}

// New creates a snapshot repository. keyPrefix namespaces all keys.
func New(store db.KVStore, keyPrefix string) *Repo {
	return &Repo{store: store, prefix: keyPrefix}
}

// snapshotDoc is the stored JSON form of a snapshot. Filter fields are
// flattened because filter.Set is immutable and has no exported fields.
type snapshotDoc struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	Type      string    `json:"type"`
	Brand     string    `json:"brand"`
	Category  string    `json:"category"`
	Status    string    `json:"status"`
	MinSize   *float64  `json:"minSize,omitempty"`
	MaxSize   *float64  `json:"maxSize,omitempty"`
	Sort      string    `json:"sort"`
	CreatedAt time.Time `json:"createdAt"`
}

func docOf(snap domain.FilterSnapshot) snapshotDoc {
	f := snap.Filters
	return snapshotDoc{
		ID:        snap.ID,
		Name:      snap.Name,
		Query:     f.Query(),
		Type:      f.Type(),
		Brand:     f.Brand(),
		Category:  f.Category(),
		Status:    f.Status(),
		MinSize:   f.MinSize(),
		MaxSize:   f.MaxSize(),
		Sort:      string(f.SortKey()),
		CreatedAt: snap.CreatedAt,
	}
}

func (d snapshotDoc) toDomain() (domain.FilterSnapshot, error) {
	f, err := filter.New(d.Query, d.Type, d.Brand, d.Category, d.Status, d.MinSize, d.MaxSize, filter.Sort(d.Sort))
	if err != nil {
		return domain.FilterSnapshot{}, fmt.Errorf("stored filters: %w", err)
	}
	return domain.FilterSnapshot{
		ID:        d.ID,
		Name:      d.Name,
		Filters:   f,
		CreatedAt: d.CreatedAt,
	}, nil
}

func (r *Repo) key(id string) string {
	return r.prefix + "snapshot:" + id
}

// Save writes a snapshot, overwriting any existing one with the same ID.
func (r *Repo) Save(ctx context.Context, snap domain.FilterSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("%w: snapshot ID is required", domain.ErrInvalidInput)
	}
	data, err := json.Marshal(docOf(snap))
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.store.Set(ctx, r.key(snap.ID), data); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Get returns a snapshot by ID.
func (r *Repo) Get(ctx context.Context, id string) (domain.FilterSnapshot, error) {
	data, err := r.store.Get(ctx, r.key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.FilterSnapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.FilterSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.FilterSnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return doc.toDomain()
}

// List returns all stored snapshots in unspecified order.
func (r *Repo) List(ctx context.Context) ([]domain.FilterSnapshot, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"snapshot:*")
	if err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	snaps := make([]domain.FilterSnapshot, 0, len(keys))
	for _, key := range keys {
		data, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("load snapshot %s: %w", key, err)
		}
		var doc snapshotDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s: %w", key, err)
		}
		snap, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Delete removes a snapshot. Deleting a missing snapshot reports
// domain.ErrSnapshotNotFound.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
