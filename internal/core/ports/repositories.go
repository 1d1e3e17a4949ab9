package ports

import (
	"context"

	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// RunRepository persists run reports.
type RunRepository interface {
	Save(ctx context.Context, report *domain.RunReport) error
	GetByID(ctx context.Context, runID string) (*domain.RunReport, error)
	ListRecent(ctx context.Context, limit int) ([]domain.RunReport, error)
}
