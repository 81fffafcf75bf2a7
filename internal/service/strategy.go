package service

import (
	"context"
	"fmt"

	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/port/database"
)

// StrategyService handles strategy creation and read access.
type StrategyService struct {
	store database.Store
}

// NewStrategyService creates a StrategyService.
func NewStrategyService(store database.Store) *StrategyService {
	return &StrategyService{store: store}
}

// Create validates req and stores the strategy with its eight idle pillars.
// A parent must exist and belong to the same owner.
func (s *StrategyService) Create(ctx context.Context, req strategy.CreateRequest) (*strategy.Strategy, error) {
	if err := strategy.ValidateCreate(&req); err != nil {
		return nil, err
	}
	if req.ParentID != "" {
		if _, err := s.Get(ctx, req.ParentID, req.OwnerID); err != nil {
			return nil, fmt.Errorf("parent strategy: %w", err)
		}
	}

	st, err := s.store.CreateStrategy(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create strategy: %w", err)
	}
	return st, nil
}

// Get returns the strategy if actorID may access it.
func (s *StrategyService) Get(ctx context.Context, id, actorID string) (*strategy.Strategy, error) {
	st, err := s.store.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if !st.CanAccess(actorID) {
		return nil, fmt.Errorf("strategy %s: %w", id, domain.ErrForbidden)
	}
	return st, nil
}

// Pillars returns the pillars of an accessible strategy in stage order.
func (s *StrategyService) Pillars(ctx context.Context, id, actorID string) ([]strategy.Pillar, error) {
	st, err := s.Get(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return st.Pillars, nil
}

// PillarVersions returns the snapshots of one pillar, newest first.
func (s *StrategyService) PillarVersions(ctx context.Context, id, actorID string, t strategy.PillarType) ([]strategy.PillarVersion, error) {
	if _, err := strategy.ParsePillarType(string(t)); err != nil {
		return nil, err
	}
	st, err := s.Get(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	p := st.Pillar(t)
	if p == nil {
		return nil, fmt.Errorf("pillar %s: %w", t, domain.ErrNotFound)
	}
	return s.store.ListPillarVersions(ctx, p.ID)
}
