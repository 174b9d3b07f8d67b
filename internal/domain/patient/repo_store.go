package patient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// StoreRepository keeps patients in the record store's patients collection.
// Every operation is a whole-collection read-modify-write, which is exactly
// the contract the store serialises.
type StoreRepository struct {
	store  store.Store
	logger zerolog.Logger
}

func NewStoreRepository(st store.Store, logger zerolog.Logger) *StoreRepository {
	return &StoreRepository{store: st, logger: logger}
}

// decode skips records that no longer parse instead of failing the read.
func decode(docs []json.RawMessage, logger zerolog.Logger) []Patient {
	patients := make([]Patient, 0, len(docs))
	for _, doc := range docs {
		var p Patient
		if err := json.Unmarshal(doc, &p); err != nil {
			logger.Warn().Err(err).Msg("skipping malformed patient record")
			continue
		}
		patients = append(patients, p)
	}
	return patients
}

func encode(patients []Patient) ([]json.RawMessage, error) {
	docs := make([]json.RawMessage, 0, len(patients))
	for _, p := range patients {
		doc, err := store.MarshalDoc(p)
		if err != nil {
			return nil, fmt.Errorf("encode patient %s: %w", p.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *StoreRepository) List(ctx context.Context) ([]Patient, error) {
	docs, err := r.store.Get(ctx, store.Patients)
	if err != nil {
		return nil, err
	}
	return decode(docs, r.logger), nil
}

func (r *StoreRepository) Get(ctx context.Context, id string) (*Patient, error) {
	patients, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range patients {
		if patients[i].ID == id {
			return &patients[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *StoreRepository) Create(ctx context.Context, p *Patient) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		doc, err := store.MarshalDoc(p)
		if err != nil {
			return err
		}
		return tx.Append(store.Patients, doc)
	})
}

func (r *StoreRepository) Update(ctx context.Context, p *Patient) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		docs, err := tx.Get(store.Patients)
		if err != nil {
			return err
		}
		patients := decode(docs, r.logger)
		found := false
		for i := range patients {
			if patients[i].ID == p.ID {
				patients[i] = *p
				found = true
				break
			}
		}
		if !found {
			return ErrNotFound
		}
		out, err := encode(patients)
		if err != nil {
			return err
		}
		tx.Set(store.Patients, out)
		return nil
	})
}

// Delete removes the patient record only. Incidents referencing the patient
// are left in place and surface under an unknown-patient label.
func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		docs, err := tx.Get(store.Patients)
		if err != nil {
			return err
		}
		patients := decode(docs, r.logger)
		kept := patients[:0]
		found := false
		for _, p := range patients {
			if p.ID == id {
				found = true
				continue
			}
			kept = append(kept, p)
		}
		if !found {
			return ErrNotFound
		}
		out, err := encode(kept)
		if err != nil {
			return err
		}
		tx.Set(store.Patients, out)
		return nil
	})
}
