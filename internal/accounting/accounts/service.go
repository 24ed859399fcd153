package accounts

import "context"

type Service struct {
	catalog *Catalog
}

// NewService reads accounts through catalog.
func NewService(catalog *Catalog) *Service {
	return &Service{catalog: catalog}
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.catalog.List(ctx)
}

// Postable lists only the accounts that may receive journal lines.
func (s *Service) Postable(ctx context.Context) ([]Account, error) {
	all, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(all))
	for _, acc := range all {
		if acc.Postable() {
			out = append(out, acc)
		}
	}
	return out, nil
}
