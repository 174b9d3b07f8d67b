package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockRepo struct {
	incidents []Incident
}

func (m *mockRepo) List(_ context.Context) ([]Incident, error) {
	return m.incidents, nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Incident, error) {
	for i := range m.incidents {
		if m.incidents[i].ID == id {
			inc := m.incidents[i]
			return &inc, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID string) ([]Incident, error) {
	var out []Incident
	for _, inc := range m.incidents {
		if inc.PatientID == patientID {
			out = append(out, inc)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].AppointmentDate.Before(out[j-1].AppointmentDate.Time); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (m *mockRepo) Create(_ context.Context, inc *Incident) error {
	m.incidents = append(m.incidents, *inc)
	return nil
}

func (m *mockRepo) Update(_ context.Context, inc *Incident) error {
	for i := range m.incidents {
		if m.incidents[i].ID == inc.ID {
			m.incidents[i] = *inc
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	for i := range m.incidents {
		if m.incidents[i].ID == id {
			m.incidents = append(m.incidents[:i], m.incidents[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

var testNow = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mockRepo) *Service {
	svc := NewService(repo, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func validIncident() Incident {
	return Incident{
		PatientID:       "p1",
		Title:           "Toothache",
		Description:     "Upper molar pain",
		AppointmentDate: LocalTime{time.Date(2025, 7, 20, 10, 0, 0, 0, time.UTC)},
	}
}

func TestCreate_Defaults(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	inc := validIncident()
	inc.ApprovalStatus = ApprovalApproved
	inc.Files = []FileRecord{{Name: "xray.png", URL: "data:image/png;base64,AA=="}}

	created, err := svc.Create(context.Background(), &inc)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated id")
	}
	if created.Status != StatusScheduled {
		t.Errorf("expected Scheduled default, got %q", created.Status)
	}
	if created.ApprovalStatus != ApprovalPending {
		t.Errorf("new incidents must start Pending, got %q", created.ApprovalStatus)
	}
	if !created.CreatedAt.Equal(testNow) || !created.UpdatedAt.Equal(testNow) {
		t.Errorf("expected timestamps at now, got %v / %v", created.CreatedAt, created.UpdatedAt)
	}
	if created.Files[0].ID == "" {
		t.Error("expected attachment to be assigned an id")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(&mockRepo{})
	cases := []struct {
		name   string
		mutate func(*Incident)
	}{
		{"missing title", func(i *Incident) { i.Title = " " }},
		{"missing description", func(i *Incident) { i.Description = "" }},
		{"missing patient", func(i *Incident) { i.PatientID = "" }},
		{"missing date", func(i *Incident) { i.AppointmentDate = LocalTime{} }},
		{"negative cost", func(i *Incident) { i.Cost = -5 }},
		{"unknown status", func(i *Incident) { i.Status = "Done" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inc := validIncident()
			tc.mutate(&inc)
			if _, err := svc.Create(context.Background(), &inc); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestUpdate_MergesOverStored(t *testing.T) {
	createdAt := LocalTime{testNow.Add(-48 * time.Hour)}
	repo := &mockRepo{incidents: []Incident{{
		ID:              "i1",
		PatientID:       "p1",
		Title:           "Toothache",
		AppointmentDate: LocalTime{testNow.Add(24 * time.Hour)},
		Status:          StatusInProgress,
		ApprovalStatus:  ApprovalApproved,
		CreatedAt:       createdAt,
		Files: []FileRecord{
			{ID: "f1", Name: "old.pdf", URL: "data:application/pdf;base64,AA=="},
			{ID: "f2", Name: "keep.png", URL: "data:image/png;base64,AA=="},
		},
	}}}
	svc := newTestService(repo)

	edit := validIncident()
	edit.ID = "i1"
	edit.Cost = 80
	edit.Treatment = "Root canal"
	edit.Status = StatusCompleted
	edit.ApprovalStatus = ApprovalRejected
	edit.Files = []FileRecord{
		{ID: "f1", Name: "replaced.pdf", URL: "data:application/pdf;base64,BB=="},
		{ID: "f3", Name: "new.png", URL: "data:image/png;base64,CC=="},
	}

	updated, err := svc.Update(context.Background(), &edit)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.CreatedAt.Equal(createdAt.Time) {
		t.Error("createdAt must be preserved across updates")
	}
	if updated.ApprovalStatus != ApprovalApproved {
		t.Errorf("approval must be preserved across updates, got %q", updated.ApprovalStatus)
	}
	if !updated.UpdatedAt.Equal(testNow) {
		t.Errorf("expected updatedAt bumped to now, got %v", updated.UpdatedAt)
	}

	if len(updated.Files) != 3 {
		t.Fatalf("expected union of 3 files, got %d", len(updated.Files))
	}
	if updated.Files[0].ID != "f1" || updated.Files[0].Name != "replaced.pdf" {
		t.Errorf("expected incoming f1 to win, got %+v", updated.Files[0])
	}
	if updated.Files[1].ID != "f2" {
		t.Errorf("expected persisted f2 kept, got %+v", updated.Files[1])
	}
	if updated.Files[2].ID != "f3" {
		t.Errorf("expected new f3 appended, got %+v", updated.Files[2])
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(&mockRepo{})
	edit := validIncident()
	edit.ID = "missing"
	if _, err := svc.Update(context.Background(), &edit); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprove_SchedulesTreatment(t *testing.T) {
	repo := &mockRepo{incidents: []Incident{{
		ID: "i1", PatientID: "p1", Title: "Toothache",
		AppointmentDate: LocalTime{testNow.Add(time.Hour)},
		Status:          StatusInProgress, ApprovalStatus: ApprovalPending,
	}}}
	svc := newTestService(repo)

	inc, err := svc.Approve(context.Background(), "i1")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if inc.ApprovalStatus != ApprovalApproved || inc.Status != StatusScheduled {
		t.Errorf("expected Approved/Scheduled, got %s/%s", inc.ApprovalStatus, inc.Status)
	}
}

func TestReject_CancelsTreatment(t *testing.T) {
	repo := &mockRepo{incidents: []Incident{{
		ID: "i1", PatientID: "p1", Title: "Toothache",
		AppointmentDate: LocalTime{testNow.Add(time.Hour)},
		Status:          StatusScheduled, ApprovalStatus: ApprovalPending,
	}}}
	svc := newTestService(repo)

	inc, err := svc.Reject(context.Background(), "i1")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if inc.ApprovalStatus != ApprovalRejected || inc.Status != StatusCancelled {
		t.Errorf("expected Rejected/Cancelled, got %s/%s", inc.ApprovalStatus, inc.Status)
	}
}

func TestDecision_IsTerminal(t *testing.T) {
	repo := &mockRepo{incidents: []Incident{{
		ID: "i1", PatientID: "p1", Title: "Toothache",
		AppointmentDate: LocalTime{testNow.Add(time.Hour)},
		Status:          StatusScheduled, ApprovalStatus: ApprovalPending,
	}}}
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, "i1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	// A later reject must not flip the decision.
	inc, err := svc.Reject(ctx, "i1")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if inc.ApprovalStatus != ApprovalApproved || inc.Status != StatusScheduled {
		t.Errorf("decision must be terminal, got %s/%s", inc.ApprovalStatus, inc.Status)
	}
	// Re-approving is a no-op too.
	if _, err := svc.Approve(ctx, "i1"); err != nil {
		t.Fatalf("second approve failed: %v", err)
	}
}

func TestRemoveFile(t *testing.T) {
	repo := &mockRepo{incidents: []Incident{{
		ID: "i1", PatientID: "p1", Title: "Toothache",
		AppointmentDate: LocalTime{testNow.Add(time.Hour)},
		Status:          StatusScheduled, ApprovalStatus: ApprovalPending,
		Files: []FileRecord{{ID: "f1", Name: "a.pdf"}, {ID: "f2", Name: "b.pdf"}},
	}}}
	svc := newTestService(repo)
	ctx := context.Background()

	inc, err := svc.RemoveFile(ctx, "i1", "f1")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(inc.Files) != 1 || inc.Files[0].ID != "f2" {
		t.Errorf("expected only f2 left, got %+v", inc.Files)
	}

	// Removing an absent file id is a no-op.
	inc, err = svc.RemoveFile(ctx, "i1", "f1")
	if err != nil {
		t.Fatalf("second remove failed: %v", err)
	}
	if len(inc.Files) != 1 {
		t.Errorf("expected files unchanged, got %+v", inc.Files)
	}
}

func TestNextAppointment(t *testing.T) {
	repo := &mockRepo{incidents: []Incident{
		{ID: "past", PatientID: "p1", Title: "Done", AppointmentDate: LocalTime{testNow.Add(-time.Hour)}},
		{ID: "far", PatientID: "p1", Title: "Later", AppointmentDate: LocalTime{testNow.Add(72 * time.Hour)}},
		{ID: "near", PatientID: "p1", Title: "Soon", AppointmentDate: LocalTime{testNow.Add(24 * time.Hour)}},
		{ID: "other", PatientID: "p2", Title: "Other", AppointmentDate: LocalTime{testNow.Add(time.Hour)}},
	}}
	svc := newTestService(repo)

	inc, err := svc.NextAppointment(context.Background(), "p1")
	if err != nil {
		t.Fatalf("next appointment failed: %v", err)
	}
	if inc == nil || inc.ID != "near" {
		t.Fatalf("expected nearest future incident, got %+v", inc)
	}

	inc, err = svc.NextAppointment(context.Background(), "p3")
	if err != nil {
		t.Fatalf("next appointment failed: %v", err)
	}
	if inc != nil {
		t.Errorf("expected nil for patient with no bookings, got %+v", inc)
	}
}

func TestIsPostAppointment(t *testing.T) {
	inc := validIncident()
	inc.AppointmentDate = LocalTime{testNow}
	if !IsPostAppointment(inc, testNow) {
		t.Error("an appointment at exactly now counts as post-appointment")
	}
	inc.AppointmentDate = LocalTime{testNow.Add(time.Minute)}
	if IsPostAppointment(inc, testNow) {
		t.Error("a future appointment is not post-appointment")
	}
}
