package patient

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

var (
	// ErrInvalid wraps every validation failure so handlers can map them to
	// 400 without inspecting messages.
	ErrInvalid = errors.New("invalid patient")

	// ErrDuplicateEmail blocks a signup reusing an existing login email.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrDuplicateRecord blocks a signup matching an existing patient's name
	// and date of birth.
	ErrDuplicateRecord = errors.New("patient already registered")
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	contactPattern = regexp.MustCompile(`^[0-9]{10}$`)
)

const maxPatientAgeYears = 150

// Service owns patient validation and the signup flow.
type Service struct {
	repo   Repository
	store  store.Store
	logger zerolog.Logger
}

func NewService(repo Repository, st store.Store, logger zerolog.Logger) *Service {
	return &Service{repo: repo, store: st, logger: logger}
}

func validate(p *Patient) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if p.DOB == "" {
		return fmt.Errorf("%w: date of birth is required", ErrInvalid)
	}
	dob, err := time.Parse("2006-01-02", p.DOB)
	if err != nil {
		return fmt.Errorf("%w: date of birth must be YYYY-MM-DD", ErrInvalid)
	}
	now := time.Now()
	if dob.After(now) {
		return fmt.Errorf("%w: date of birth must be in the past", ErrInvalid)
	}
	if dob.Before(now.AddDate(-maxPatientAgeYears, 0, 0)) {
		return fmt.Errorf("%w: date of birth is unreasonably old", ErrInvalid)
	}
	if !contactPattern.MatchString(p.Contact) {
		return fmt.Errorf("%w: contact must be exactly 10 digits", ErrInvalid)
	}
	if strings.TrimSpace(p.HealthInfo) == "" {
		return fmt.Errorf("%w: health info is required", ErrInvalid)
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]Patient, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, p *Patient) (*Patient, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID).Msg("patient created")
	return p, nil
}

func (s *Service) Update(ctx context.Context, p *Patient) (*Patient, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the patient only; their incidents are preserved.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id).Msg("patient deleted")
	return nil
}

// Signup is the self-registration input.
type Signup struct {
	Name       string `json:"name"`
	DOB        string `json:"dob"`
	Contact    string `json:"contact"`
	HealthInfo string `json:"healthInfo"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// Account is what signup returns: the new patient plus the credential-free
// login user.
type Account struct {
	Patient Patient          `json:"patient"`
	User    auth.SessionUser `json:"user"`
}

// Register creates a patient record and its login user in one store
// transaction, so a crash between the two writes cannot orphan either half.
func (s *Service) Register(ctx context.Context, in Signup) (*Account, error) {
	p := Patient{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(in.Name),
		DOB:        in.DOB,
		Contact:    in.Contact,
		HealthInfo: in.HealthInfo,
	}
	if err := validate(&p); err != nil {
		return nil, err
	}
	if !emailPattern.MatchString(in.Email) {
		return nil, fmt.Errorf("%w: email is malformed", ErrInvalid)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalid)
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := auth.User{
		ID:        uuid.NewString(),
		Role:      auth.RolePatient,
		Email:     in.Email,
		Password:  hashed,
		PatientID: p.ID,
	}

	err = s.store.Update(ctx, func(tx *store.Tx) error {
		userDocs, err := tx.Get(store.Users)
		if err != nil {
			return err
		}
		for _, u := range auth.DecodeUsers(userDocs, s.logger) {
			if u.Email == in.Email {
				return ErrDuplicateEmail
			}
		}

		patientDocs, err := tx.Get(store.Patients)
		if err != nil {
			return err
		}
		for _, existing := range decode(patientDocs, s.logger) {
			if existing.Name == p.Name && existing.DOB == p.DOB {
				return ErrDuplicateRecord
			}
		}

		patientDoc, err := store.MarshalDoc(p)
		if err != nil {
			return err
		}
		if err := tx.Append(store.Patients, patientDoc); err != nil {
			return err
		}
		userDoc, err := store.MarshalDoc(user)
		if err != nil {
			return err
		}
		return tx.Append(store.Users, userDoc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("patient_id", p.ID).Str("user_id", user.ID).Msg("patient registered")
	return &Account{Patient: p, User: user.SessionUser()}, nil
}
