package balances

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Service struct {
	repo Repository
	eps  decimal.Decimal
}

// NewService checks balances from repo within eps.
func NewService(repo Repository, eps decimal.Decimal) *Service {
	return &Service{repo: repo, eps: eps}
}

// Equation checks the accounting equation as of asOf.
func (s *Service) Equation(ctx context.Context, asOf time.Time) (Equation, error) {
	balances, err := s.repo.Balances(ctx, asOf)
	if err != nil {
		return Equation{}, fmt.Errorf("load balances: %w", err)
	}
	return CheckEquation(asOf, balances, s.eps), nil
}
