package patient

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("patient not found")

// Repository is the patient persistence contract.
type Repository interface {
	List(ctx context.Context) ([]Patient, error)
	Get(ctx context.Context, id string) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id string) error
}
