package patient

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

type mockRepo struct {
	patients []Patient
	created  []Patient
}

func (m *mockRepo) List(_ context.Context) ([]Patient, error) {
	return m.patients, nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Patient, error) {
	for i := range m.patients {
		if m.patients[i].ID == id {
			return &m.patients[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.created = append(m.created, *p)
	m.patients = append(m.patients, *p)
	return nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	for i := range m.patients {
		if m.patients[i].ID == p.ID {
			m.patients[i] = *p
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients = append(m.patients[:i], m.patients[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func validPatient() Patient {
	return Patient{Name: "John Doe", DOB: "1990-05-10", Contact: "1234567890", HealthInfo: "No allergies"}
}

func TestCreate_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Patient)
	}{
		{"missing name", func(p *Patient) { p.Name = "  " }},
		{"missing dob", func(p *Patient) { p.DOB = "" }},
		{"malformed dob", func(p *Patient) { p.DOB = "10/05/1990" }},
		{"future dob", func(p *Patient) { p.DOB = "2999-01-01" }},
		{"ancient dob", func(p *Patient) { p.DOB = "1700-01-01" }},
		{"short contact", func(p *Patient) { p.Contact = "12345" }},
		{"long contact", func(p *Patient) { p.Contact = "123456789012" }},
		{"non-digit contact", func(p *Patient) { p.Contact = "12345abcde" }},
		{"missing health info", func(p *Patient) { p.HealthInfo = "" }},
	}

	svc := NewService(&mockRepo{}, nil, zerolog.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPatient()
			tc.mutate(&p)
			if _, err := svc.Create(context.Background(), &p); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestCreate_AssignsID(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, zerolog.Nop())

	p := validPatient()
	created, err := svc.Create(context.Background(), &p)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated id")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 create, got %d", len(repo.created))
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc := NewService(&mockRepo{}, nil, zerolog.Nop())
	p := validPatient()
	p.ID = "missing"
	if _, err := svc.Update(context.Background(), &p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func newSignupService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "store.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	repo := NewStoreRepository(st, zerolog.Nop())
	return NewService(repo, st, zerolog.Nop()), st
}

func validSignup() Signup {
	return Signup{
		Name:       "Jane Roe",
		DOB:        "1985-03-20",
		Contact:    "5551234567",
		HealthInfo: "None",
		Email:      "jane@entnt.in",
		Password:   "secret123",
	}
}

func TestRegister_Success(t *testing.T) {
	svc, st := newSignupService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, validSignup())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if account.Patient.ID == "" || account.User.ID == "" {
		t.Fatal("expected generated ids for patient and user")
	}
	if account.User.Role != auth.RolePatient {
		t.Errorf("expected Patient role, got %q", account.User.Role)
	}
	if account.User.PatientID != account.Patient.ID {
		t.Error("expected user bound to the new patient")
	}

	// Both halves must be persisted.
	userDocs, _ := st.Get(ctx, store.Users)
	users := auth.DecodeUsers(userDocs, zerolog.Nop())
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "secret123" {
		t.Error("expected stored password to be hashed")
	}

	patientDocs, _ := st.Get(ctx, store.Patients)
	if len(patientDocs) != 1 {
		t.Fatalf("expected 1 patient, got %d", len(patientDocs))
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, st := newSignupService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, validSignup()); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	second := validSignup()
	second.Name = "Different Person"
	second.DOB = "1970-01-01"
	if _, err := svc.Register(ctx, second); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	// The failed signup must not leave a half-written patient behind.
	patientDocs, _ := st.Get(ctx, store.Patients)
	if len(patientDocs) != 1 {
		t.Errorf("expected 1 patient after blocked signup, got %d", len(patientDocs))
	}
}

func TestRegister_DuplicateNameAndDOB(t *testing.T) {
	svc, _ := newSignupService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, validSignup()); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	second := validSignup()
	second.Email = "jane.other@entnt.in"
	if _, err := svc.Register(ctx, second); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newSignupService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Signup)
	}{
		{"bad email", func(s *Signup) { s.Email = "not-an-email" }},
		{"email with spaces", func(s *Signup) { s.Email = "a b@c.d" }},
		{"missing password", func(s *Signup) { s.Password = "" }},
		{"missing name", func(s *Signup) { s.Name = "" }},
		{"bad contact", func(s *Signup) { s.Contact = "123" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validSignup()
			tc.mutate(&in)
			if _, err := svc.Register(ctx, in); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
