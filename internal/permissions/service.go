package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vdstech/sacom/internal/shared"
)

// Service orchestrates permission catalog operations and tree resolution.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns the full catalog.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.List(ctx)
}

// Get fetches a permission by id.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a new permission code with optional children.
func (s *Service) Create(ctx context.Context, code, description string, children []int64) (Permission, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Permission{}, fmt.Errorf("%w: permission code required", shared.ErrValidation)
	}
	return s.repo.Create(ctx, code, strings.TrimSpace(description), children)
}

// Update rewrites an existing permission.
func (s *Service) Update(ctx context.Context, id int64, code, description string, children []int64) (Permission, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Permission{}, fmt.Errorf("%w: permission code required", shared.ErrValidation)
	}
	return s.repo.Update(ctx, id, code, strings.TrimSpace(description), children)
}

// Delete removes a permission by id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// EffectiveCodes expands directly-assigned permission ids into the flat
// effective-permission set. This runs only at login and refresh; the result
// is snapshotted onto the session so no request-time tree walk is needed.
// Resolution failures degrade to an empty set: authorization fails closed.
func (s *Service) EffectiveCodes(ctx context.Context, direct []int64) []string {
	if len(direct) == 0 {
		return nil
	}
	forest, err := s.repo.LoadForest(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("load permission forest", slog.Any("error", err))
		}
		return nil
	}
	return ResolveCodes(forest, direct)
}
