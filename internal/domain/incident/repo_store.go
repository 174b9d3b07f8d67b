package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// StoreRepository keeps incidents in the record store's incidents collection.
type StoreRepository struct {
	store  store.Store
	logger zerolog.Logger
}

func NewStoreRepository(st store.Store, logger zerolog.Logger) *StoreRepository {
	return &StoreRepository{store: st, logger: logger}
}

// decode skips malformed records and backfills the approval state on records
// written before approvals existed.
func decode(docs []json.RawMessage, logger zerolog.Logger) []Incident {
	incidents := make([]Incident, 0, len(docs))
	for _, doc := range docs {
		var inc Incident
		if err := json.Unmarshal(doc, &inc); err != nil {
			logger.Warn().Err(err).Msg("skipping malformed incident record")
			continue
		}
		if inc.ApprovalStatus == "" {
			inc.ApprovalStatus = ApprovalPending
		}
		incidents = append(incidents, inc)
	}
	return incidents
}

func encode(incidents []Incident) ([]json.RawMessage, error) {
	docs := make([]json.RawMessage, 0, len(incidents))
	for _, inc := range incidents {
		doc, err := store.MarshalDoc(inc)
		if err != nil {
			return nil, fmt.Errorf("encode incident %s: %w", inc.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *StoreRepository) List(ctx context.Context) ([]Incident, error) {
	docs, err := r.store.Get(ctx, store.Incidents)
	if err != nil {
		return nil, err
	}
	return decode(docs, r.logger), nil
}

func (r *StoreRepository) Get(ctx context.Context, id string) (*Incident, error) {
	incidents, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range incidents {
		if incidents[i].ID == id {
			return &incidents[i], nil
		}
	}
	return nil, ErrNotFound
}

// ListByPatient returns the patient's incidents ordered by appointment date,
// earliest first.
func (r *StoreRepository) ListByPatient(ctx context.Context, patientID string) ([]Incident, error) {
	incidents, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]Incident, 0)
	for _, inc := range incidents {
		if inc.PatientID == patientID {
			matched = append(matched, inc)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AppointmentDate.Before(matched[j].AppointmentDate.Time)
	})
	return matched, nil
}

func (r *StoreRepository) Create(ctx context.Context, inc *Incident) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		doc, err := store.MarshalDoc(inc)
		if err != nil {
			return err
		}
		return tx.Append(store.Incidents, doc)
	})
}

func (r *StoreRepository) Update(ctx context.Context, inc *Incident) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		docs, err := tx.Get(store.Incidents)
		if err != nil {
			return err
		}
		incidents := decode(docs, r.logger)
		found := false
		for i := range incidents {
			if incidents[i].ID == inc.ID {
				incidents[i] = *inc
				found = true
				break
			}
		}
		if !found {
			return ErrNotFound
		}
		out, err := encode(incidents)
		if err != nil {
			return err
		}
		tx.Set(store.Incidents, out)
		return nil
	})
}

func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		docs, err := tx.Get(store.Incidents)
		if err != nil {
			return err
		}
		incidents := decode(docs, r.logger)
		kept := incidents[:0]
		found := false
		for _, inc := range incidents {
			if inc.ID == id {
				found = true
				continue
			}
			kept = append(kept, inc)
		}
		if !found {
			return ErrNotFound
		}
		out, err := encode(kept)
		if err != nil {
			return err
		}
		tx.Set(store.Incidents, out)
		return nil
	})
}
