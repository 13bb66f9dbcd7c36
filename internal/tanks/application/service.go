package application

import (
	"context"
	"errors"

	"oxywatch-cloud/internal/auth"
	tanks "oxywatch-cloud/internal/tanks/domain"
)

// Service provides tank registry commands and queries.
type Service struct {
	repo     tanks.TankRepository
	tenantID string
}

// NewService constructs a tank service.
func NewService(repo tanks.TankRepository, tenantID string) (*Service, error) {
	if repo == nil {
		return nil, errors.New("tanks: nil repository")
	}
	if tenantID == "" {
		return nil, errors.New("tanks: empty tenant id")
	}
	return &Service{repo: repo, tenantID: tenantID}, nil
}

func (s *Service) tenantFor(ctx context.Context) string {
	if tenantID := auth.TenantIDFromContext(ctx); tenantID != "" {
		return tenantID
	}
	return s.tenantID
}

// UpsertTank validates and saves a tank under the caller's tenant.
func (s *Service) UpsertTank(ctx context.Context, tank *tanks.TankConfiguration) error {
	if s == nil {
		return errors.New("tanks: nil service")
	}
	if tank == nil {
		return errors.New("tanks: nil tank")
	}
	tenantID := s.tenantFor(ctx)
	if tank.TenantID != "" && tank.TenantID != tenantID {
		return auth.ErrTenantMismatch
	}
	tank.TenantID = tenantID
	if err := tank.Validate(); err != nil {
		return err
	}
	return s.repo.Save(ctx, tank)
}

// GetTank loads one tank scoped to the caller's tenant.
func (s *Service) GetTank(ctx context.Context, id string) (*tanks.TankConfiguration, error) {
	if s == nil {
		return nil, errors.New("tanks: nil service")
	}
	if id == "" {
		return nil, errors.New("tanks: empty id")
	}
	tank, err := s.repo.Get(ctx, s.tenantFor(ctx), id)
	if err != nil {
		return nil, err
	}
	if tank == nil {
		return nil, auth.ErrNotFound
	}
	return tank, nil
}

// ListTanks returns all tanks for the caller's tenant.
func (s *Service) ListTanks(ctx context.Context) ([]tanks.TankConfiguration, error) {
	if s == nil {
		return nil, errors.New("tanks: nil service")
	}
	return s.repo.List(ctx, s.tenantFor(ctx))
}
