// Package snapshot manages named, saved filter states.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/atelier-cloud/shelfdex/internal/clock"
	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/domain/filter"
)

// Service handles snapshot CRUD.
type Service struct {
	repo Repository
	clk  clock.Clock
}

// New creates a snapshot service.
func New(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clk: clk}
}

// Create saves a filter state under a name. Names are labels: two
// snapshots may share one.
func (s *Service) Create(ctx context.Context, name string, f filter.Set) (domain.FilterSnapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.FilterSnapshot{}, fmt.Errorf("%w: snapshot name is required", domain.ErrInvalidInput)
	}

	snap := domain.FilterSnapshot{
		ID:        uuid.NewString(),
		Name:      name,
		Filters:   f,
		CreatedAt: s.clk.Now(),
	}
	if err := s.repo.Save(ctx, snap); err != nil {
		return domain.FilterSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// Get returns a snapshot by ID.
func (s *Service) Get(ctx context.Context, id string) (domain.FilterSnapshot, error) {
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.FilterSnapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// List returns all snapshots, newest first.
func (s *Service) List(ctx context.Context) ([]domain.FilterSnapshot, error) {
	snaps, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// Delete removes a snapshot by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
