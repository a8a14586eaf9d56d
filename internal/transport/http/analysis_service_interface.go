package http

import (
	"context"

	"nikkeicli/internal/services"
	"nikkeicli/pkg/contracts/domain"
)

// AnalysisServiceInterface is implemented by services.AnalysisService. The
// handler depends on this interface so tests can swap in stubs.
type AnalysisServiceInterface interface {
	RunRealtime(ctx context.Context) (*domain.Snapshot, error)
	RunBatch(ctx context.Context) (*domain.Snapshot, error)
	Status() services.Status
	Latest() (*domain.Snapshot, error)
	Movers(limit int) (gainers, losers []domain.ContributionEntry, err error)
}
