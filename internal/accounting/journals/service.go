package journals

import "context"

type Service struct {
	repo Repository
}

// NewService reads journal entries from repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the latest limit entries.
func (s *Service) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.repo.List(ctx, limit)
}

// Get returns an entry or shared.ErrJournalNotFound.
func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}
