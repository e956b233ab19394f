package upload

import (
	"context"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
)

// Repository defines the persistence contract for upload records.
type Repository interface {
	// Upsert stores r keyed by (company key, year, month).
	Upsert(ctx context.Context, r *Record) error
	Find(ctx context.Context, companyKey string, period deadline.Period) (*Record, error)
	ListByCompany(ctx context.Context, companyKey string) ([]*Record, error)
	// FiledPeriods returns the complete periods of a company, newest first.
	FiledPeriods(ctx context.Context, companyKey string) ([]deadline.Period, error)
	ListAll(ctx context.Context) ([]*Record, error)
}
