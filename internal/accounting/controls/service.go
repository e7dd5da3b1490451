package controls

import "context"

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Resolve returns the effective controls for a company.
func (s *Service) Resolve(ctx context.Context, companyID int64) (Controls, error) {
	return s.repo.Resolve(ctx, companyID)
}
