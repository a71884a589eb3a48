package patient

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("patient not found")
	ErrDuplicate = errors.New("patient already exists")
)

// Repository stores patients keyed by normalized tax id.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByTaxID(ctx context.Context, taxID string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
