// Package dashboard aggregates patients and incidents into the admin
// overview: revenue, workload counters, upcoming and recent appointments and
// the most frequent visitors. Compute is pure so the numbers are trivially
// reproducible from a store snapshot.
package dashboard

import (
	"sort"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/incident"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
)

const (
	maxAppointments = 10
	maxTopPatients  = 5
)

// UnknownPatientName labels incidents whose patient record is gone.
const UnknownPatientName = "Unknown Patient"

// AppointmentView is one dashboard row joining an incident with its patient
// name.
type AppointmentView struct {
	IncidentID      string             `json:"incidentId"`
	PatientID       string             `json:"patientId"`
	PatientName     string             `json:"patientName"`
	Title           string             `json:"title"`
	AppointmentDate incident.LocalTime `json:"appointmentDate"`
	Status          string             `json:"status"`
}

// TopPatient is one row of the most-frequent-visitor ranking.
type TopPatient struct {
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	Visits    int    `json:"visits"`
}

// Stats is the full dashboard payload.
type Stats struct {
	TotalPatients  int               `json:"totalPatients"`
	TotalRevenue   float64           `json:"totalRevenue"`
	PendingCount   int               `json:"pendingCount"`
	CompletedCount int               `json:"completedCount"`
	CancelledCount int               `json:"cancelledCount"`
	Upcoming       []AppointmentView `json:"upcoming"`
	Recent         []AppointmentView `json:"recent"`
	TopPatients    []TopPatient      `json:"topPatients"`
}

// Compute derives the dashboard from a full snapshot. Revenue sums every
// incident's cost; pending counts Scheduled and In Progress work; upcoming
// and recent split on now and are capped at ten rows each.
func Compute(patients []patient.Patient, incidents []incident.Incident, now time.Time) Stats {
	names := make(map[string]string, len(patients))
	for _, p := range patients {
		names[p.ID] = p.Name
	}
	nameOf := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		return UnknownPatientName
	}

	stats := Stats{
		TotalPatients: len(patients),
		Upcoming:      []AppointmentView{},
		Recent:        []AppointmentView{},
		TopPatients:   []TopPatient{},
	}

	visits := make(map[string]int)
	var upcoming, recent []AppointmentView
	for _, inc := range incidents {
		stats.TotalRevenue += inc.Cost
		switch inc.Status {
		case incident.StatusScheduled, incident.StatusInProgress:
			stats.PendingCount++
		case incident.StatusCompleted:
			stats.CompletedCount++
		case incident.StatusCancelled:
			stats.CancelledCount++
		}
		visits[inc.PatientID]++

		view := AppointmentView{
			IncidentID:      inc.ID,
			PatientID:       inc.PatientID,
			PatientName:     nameOf(inc.PatientID),
			Title:           inc.Title,
			AppointmentDate: inc.AppointmentDate,
			Status:          inc.Status,
		}
		if inc.AppointmentDate.After(now) {
			upcoming = append(upcoming, view)
		} else {
			recent = append(recent, view)
		}
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].AppointmentDate.Before(upcoming[j].AppointmentDate.Time)
	})
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].AppointmentDate.After(recent[j].AppointmentDate.Time)
	})
	stats.Upcoming = cap10(upcoming)
	stats.Recent = cap10(recent)

	// Rank by visit count (zero included), keeping registry order among ties.
	ranked := make([]TopPatient, 0, len(patients))
	for _, p := range patients {
		ranked = append(ranked, TopPatient{PatientID: p.ID, Name: p.Name, Visits: visits[p.ID]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Visits > ranked[j].Visits
	})
	if len(ranked) > maxTopPatients {
		ranked = ranked[:maxTopPatients]
	}
	stats.TopPatients = ranked

	return stats
}

func cap10(views []AppointmentView) []AppointmentView {
	if views == nil {
		return []AppointmentView{}
	}
	if len(views) > maxAppointments {
		return views[:maxAppointments]
	}
	return views
}
