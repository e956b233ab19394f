package company

import "context"

// ListOptions filters company listings.
type ListOptions struct {
	ActiveOnly bool
	// Query matches name or identifier, Turkish case-insensitively.
	Query string
}

// Repository defines the persistence contract for companies.
type Repository interface {
	// Save inserts or updates c.  A different company with the same key is a
	// conflict.
	Save(ctx context.Context, c *Company) error
	FindByID(ctx context.Context, id string) (*Company, error)
	FindByKey(ctx context.Context, key string) (*Company, error)
	List(ctx context.Context, opts ListOptions) ([]*Company, error)
	Delete(ctx context.Context, id string) error
}
