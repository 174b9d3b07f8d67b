package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/attach"
)

// ErrInvalid wraps validation failures for handler mapping.
var ErrInvalid = errors.New("invalid incident")

var validStatuses = map[string]bool{
	StatusScheduled:   true,
	StatusInProgress:  true,
	StatusCompleted:   true,
	StatusCancelled:   true,
	StatusRescheduled: true,
}

// Service owns incident validation, the save merge rules and the approval
// workflow.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func validate(inc *Incident) error {
	if strings.TrimSpace(inc.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if strings.TrimSpace(inc.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalid)
	}
	if inc.PatientID == "" {
		return fmt.Errorf("%w: patientId is required", ErrInvalid)
	}
	if inc.AppointmentDate.IsZero() {
		return fmt.Errorf("%w: appointmentDate is required", ErrInvalid)
	}
	if inc.Cost < 0 {
		return fmt.Errorf("%w: cost cannot be negative", ErrInvalid)
	}
	if inc.Status != "" && !validStatuses[inc.Status] {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, inc.Status)
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]Incident, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Incident, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]Incident, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// ensureFileIDs gives every attachment an id so later merges and removals can
// address it.
func ensureFileIDs(files []FileRecord) []FileRecord {
	for i := range files {
		if files[i].ID == "" {
			files[i].ID = uuid.NewString()
		}
	}
	return files
}

// Create stamps the record with its id, timestamps and defaults and persists
// it. New incidents always start with a Pending approval.
func (s *Service) Create(ctx context.Context, inc *Incident) (*Incident, error) {
	if err := validate(inc); err != nil {
		return nil, err
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.Status == "" {
		inc.Status = StatusScheduled
	}
	inc.ApprovalStatus = ApprovalPending
	inc.Files = ensureFileIDs(inc.Files)
	now := LocalTime{s.now()}
	inc.CreatedAt = now
	inc.UpdatedAt = now

	if err := s.repo.Create(ctx, inc); err != nil {
		return nil, err
	}
	s.logger.Info().Str("incident_id", inc.ID).Str("patient_id", inc.PatientID).Msg("incident created")
	return inc, nil
}

// Update merges the edit over the stored record. CreatedAt and the approval
// state are preserved; files are a union keyed by file id, with the incoming
// side winning on a shared id.
func (s *Service) Update(ctx context.Context, inc *Incident) (*Incident, error) {
	if inc.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if err := validate(inc); err != nil {
		return nil, err
	}

	existing, err := s.repo.Get(ctx, inc.ID)
	if err != nil {
		return nil, err
	}

	inc.CreatedAt = existing.CreatedAt
	inc.ApprovalStatus = existing.ApprovalStatus
	if inc.Status == "" {
		inc.Status = existing.Status
	}
	inc.Files = mergeFiles(existing.Files, ensureFileIDs(inc.Files))
	inc.UpdatedAt = LocalTime{s.now()}

	if err := s.repo.Update(ctx, inc); err != nil {
		return nil, err
	}
	return inc, nil
}

// mergeFiles unions the persisted attachments with the incoming ones. Order
// is persisted-first, then new ids in their incoming order.
func mergeFiles(persisted, incoming []FileRecord) []FileRecord {
	byID := make(map[string]int, len(persisted))
	out := make([]FileRecord, len(persisted))
	copy(out, persisted)
	for i, f := range out {
		byID[f.ID] = i
	}
	for _, f := range incoming {
		if i, ok := byID[f.ID]; ok {
			out[i] = f
			continue
		}
		byID[f.ID] = len(out)
		out = append(out, f)
	}
	return out
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("incident_id", id).Msg("incident deleted")
	return nil
}

// Approve marks the incident approved and schedules the treatment. Approval
// is terminal: approving or rejecting an already-decided incident returns the
// record unchanged.
func (s *Service) Approve(ctx context.Context, id string) (*Incident, error) {
	return s.decide(ctx, id, ApprovalApproved, StatusScheduled)
}

// Reject marks the incident rejected and cancels the treatment.
func (s *Service) Reject(ctx context.Context, id string) (*Incident, error) {
	return s.decide(ctx, id, ApprovalRejected, StatusCancelled)
}

func (s *Service) decide(ctx context.Context, id, approval, status string) (*Incident, error) {
	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.ApprovalStatus == ApprovalApproved || inc.ApprovalStatus == ApprovalRejected {
		return inc, nil
	}

	inc.ApprovalStatus = approval
	inc.Status = status
	inc.UpdatedAt = LocalTime{s.now()}
	if err := s.repo.Update(ctx, inc); err != nil {
		return nil, err
	}
	s.logger.Info().Str("incident_id", id).Str("approval", approval).Msg("incident decided")
	return inc, nil
}

// AddFiles unions freshly uploaded attachments into the incident.
func (s *Service) AddFiles(ctx context.Context, id string, files []attach.File) (*Incident, error) {
	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	inc.Files = mergeFiles(inc.Files, files)
	inc.UpdatedAt = LocalTime{s.now()}
	if err := s.repo.Update(ctx, inc); err != nil {
		return nil, err
	}
	return inc, nil
}

// RemoveFile drops one attachment. Removing an id that is already gone is a
// no-op.
func (s *Service) RemoveFile(ctx context.Context, id, fileID string) (*Incident, error) {
	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	kept := inc.Files[:0]
	for _, f := range inc.Files {
		if f.ID == fileID {
			continue
		}
		kept = append(kept, f)
	}
	inc.Files = kept
	inc.UpdatedAt = LocalTime{s.now()}
	if err := s.repo.Update(ctx, inc); err != nil {
		return nil, err
	}
	return inc, nil
}

// NextAppointment returns the patient's earliest future incident, or nil when
// nothing is booked.
func (s *Service) NextAppointment(ctx context.Context, patientID string) (*Incident, error) {
	incidents, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range incidents {
		if incidents[i].AppointmentDate.After(now) {
			return &incidents[i], nil
		}
	}
	return nil, nil
}

// IsPostAppointment reports whether the appointment time has passed, which is
// when costs and treatment notes become meaningful.
func IsPostAppointment(inc Incident, now time.Time) bool {
	return !inc.AppointmentDate.After(now)
}
