package services

import (
	"context"
	"errors"

	"github.com/baharkarakas/pixhub/internal/models"
	repo "github.com/baharkarakas/pixhub/internal/repository"
)

type BalanceService struct{ r repo.Merchants }

func NewBalanceService(r repo.Merchants) *BalanceService { return &BalanceService{r: r} }

// Current reads the buckets without locking.
func (s *BalanceService) Current(ctx context.Context, merchantID string) (models.Balance, error) {
	m, err := s.r.GetByID(ctx, merchantID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Balance{}, ErrNotFound
	}
	if err != nil {
		return models.Balance{}, err
	}
	return m.Balance, nil
}
