package callbacks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists callback intents.
type Repository interface {
	Save(ctx context.Context, in Intent) error
	ListByPhone(ctx context.Context, phone string) ([]Intent, error)
}

var ErrInvalidIntent = errors.New("callbacks: intent requires a phone number")

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Schedule validates and stores in, filling ID and RequestedAt when unset.
func (s *Service) Schedule(ctx context.Context, in Intent) (Intent, error) {
	if s.repo == nil {
		return Intent{}, errors.New("callbacks: repository not configured")
	}
	if in.PhoneNumber == "" {
		return Intent{}, ErrInvalidIntent
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.RequestedAt.IsZero() {
		in.RequestedAt = s.clock().UTC()
	}
	if err := s.repo.Save(ctx, in); err != nil {
		return Intent{}, err
	}
	return in, nil
}

func (s *Service) ForPhone(ctx context.Context, phone string) ([]Intent, error) {
	if s.repo == nil {
		return nil, errors.New("callbacks: repository not configured")
	}
	return s.repo.ListByPhone(ctx, phone)
}
