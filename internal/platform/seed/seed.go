// Package seed bootstraps the demo fixtures: one admin, one patient account
// and a completed treatment. Each collection is seeded only if it has never
// been written, so an emptied registry stays empty across restarts.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/incident"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

func fixtureUsers() ([]auth.User, error) {
	adminPass, err := auth.HashPassword("admin123")
	if err != nil {
		return nil, err
	}
	patientPass, err := auth.HashPassword("patient123")
	if err != nil {
		return nil, err
	}
	return []auth.User{
		{ID: "1", Role: auth.RoleAdmin, Email: "admin@entnt.in", Password: adminPass},
		{ID: "2", Role: auth.RolePatient, Email: "john@entnt.in", Password: patientPass, PatientID: "p1"},
	}, nil
}

func fixturePatients() []patient.Patient {
	return []patient.Patient{
		{ID: "p1", Name: "John Doe", DOB: "1990-05-10", Contact: "1234567890", HealthInfo: "No allergies"},
	}
}

func fixtureIncidents() []incident.Incident {
	return []incident.Incident{
		{
			ID:              "i1",
			PatientID:       "p1",
			Title:           "Toothache",
			Description:     "Upper molar pain",
			Comments:        "Sensitive to cold",
			AppointmentDate: incident.LocalTime{Time: time.Date(2025, 7, 1, 10, 0, 0, 0, time.Local)},
			Cost:            80,
			Treatment:       "Root canal",
			Status:          incident.StatusCompleted,
			ApprovalStatus:  incident.ApprovalPending,
		},
	}
}

// Run seeds every collection that is entirely absent from the store.
func Run(ctx context.Context, st store.Store, logger zerolog.Logger) error {
	users, err := fixtureUsers()
	if err != nil {
		return fmt.Errorf("build user fixtures: %w", err)
	}
	if err := seedCollection(ctx, st, store.Users, users, logger); err != nil {
		return err
	}
	if err := seedCollection(ctx, st, store.Patients, fixturePatients(), logger); err != nil {
		return err
	}
	return seedCollection(ctx, st, store.Incidents, fixtureIncidents(), logger)
}

func seedCollection[T any](ctx context.Context, st store.Store, c store.Collection, fixtures []T, logger zerolog.Logger) error {
	exists, err := st.Has(ctx, c)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", c, err)
	}
	if exists {
		return nil
	}

	docs := make([]json.RawMessage, 0, len(fixtures))
	for _, f := range fixtures {
		doc, err := store.MarshalDoc(f)
		if err != nil {
			return fmt.Errorf("encode %s fixture: %w", c, err)
		}
		docs = append(docs, doc)
	}
	if err := st.Set(ctx, c, docs); err != nil {
		return fmt.Errorf("seed collection %s: %w", c, err)
	}
	logger.Info().Str("collection", string(c)).Int("records", len(docs)).Msg("seeded collection")
	return nil
}
