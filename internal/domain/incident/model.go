// Package incident manages treatment incidents: the appointment records that
// carry costs, statuses, approvals and file attachments.
package incident

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/attach"
)

// Treatment statuses. Scheduled and In Progress count as pending work on the
// dashboard.
const (
	StatusScheduled   = "Scheduled"
	StatusInProgress  = "In Progress"
	StatusCompleted   = "Completed"
	StatusCancelled   = "Cancelled"
	StatusRescheduled = "Rescheduled"
)

// Approval states. Approved and Rejected are terminal.
const (
	ApprovalPending  = "Pending"
	ApprovalApproved = "Approved"
	ApprovalRejected = "Rejected"
)

// FileRecord is an attachment carried inside an incident.
type FileRecord = attach.File

// Incident is one treatment record for a patient.
type Incident struct {
	ID              string       `json:"id"`
	PatientID       string       `json:"patientId"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	Comments        string       `json:"comments,omitempty"`
	AppointmentDate LocalTime    `json:"appointmentDate"`
	Cost            float64      `json:"cost,omitempty"`
	Treatment       string       `json:"treatment,omitempty"`
	Status          string       `json:"status"`
	NextDate        *LocalTime   `json:"nextDate,omitempty"`
	ApprovalStatus  string       `json:"approvalStatus"`
	Files           []FileRecord `json:"files,omitempty"`
	CreatedAt       LocalTime    `json:"createdAt,omitempty"`
	UpdatedAt       LocalTime    `json:"updatedAt,omitempty"`
}

const localLayout = "2006-01-02T15:04:05"

// LocalTime accepts both RFC3339 timestamps and the zone-less wall-clock form
// older records were written with ("2025-07-01T10:00:00"). Zone-less values
// are read in the host zone, which keeps an appointment on the calendar day
// it was booked for.
type LocalTime struct {
	time.Time
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

func (t *LocalTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(localLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}
