package incident

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("incident not found")

// Repository is the incident persistence contract.
type Repository interface {
	List(ctx context.Context) ([]Incident, error)
	Get(ctx context.Context, id string) (*Incident, error)
	ListByPatient(ctx context.Context, patientID string) ([]Incident, error)
	Create(ctx context.Context, inc *Incident) error
	Update(ctx context.Context, inc *Incident) error
	Delete(ctx context.Context, id string) error
}
