// Package calendar projects incidents onto month and week views. All
// bucketing happens in the clinic's timezone so an appointment lands on the
// day it was booked, not the day its UTC instant falls on.
package calendar

import (
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/incident"
)

const dayLayout = "2006-01-02"

// DateKey buckets an instant into its calendar day in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// Day is one calendar cell with its appointments.
type Day struct {
	Date         string              `json:"date"`
	Appointments []incident.Incident `json:"appointments"`
}

// MonthGrid lays out a month the way a wall calendar does: leading nil cells
// pad the first week so day 1 sits under its weekday (Sunday first), then one
// cell per day.
func MonthGrid(year int, month time.Month, incidents []incident.Incident, loc *time.Location) []*Day {
	byDay := bucket(incidents, loc)

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()

	cells := make([]*Day, 0, int(first.Weekday())+daysInMonth)
	for i := 0; i < int(first.Weekday()); i++ {
		cells = append(cells, nil)
	}
	for day := 1; day <= daysInMonth; day++ {
		key := time.Date(year, month, day, 0, 0, 0, 0, loc).Format(dayLayout)
		cells = append(cells, &Day{Date: key, Appointments: appointmentsOr(byDay, key)})
	}
	return cells
}

// WeekDays returns the Sunday-to-Saturday week containing anchor.
func WeekDays(anchor time.Time, incidents []incident.Incident, loc *time.Location) []Day {
	byDay := bucket(incidents, loc)

	local := anchor.In(loc)
	sunday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -int(local.Weekday()))

	days := make([]Day, 0, 7)
	for i := 0; i < 7; i++ {
		key := sunday.AddDate(0, 0, i).Format(dayLayout)
		days = append(days, Day{Date: key, Appointments: appointmentsOr(byDay, key)})
	}
	return days
}

// AppointmentsOn returns the incidents falling on day's calendar date.
func AppointmentsOn(day time.Time, incidents []incident.Incident, loc *time.Location) []incident.Incident {
	return appointmentsOr(bucket(incidents, loc), DateKey(day, loc))
}

// AddMonths steps month navigation. Day-of-month is clamped to the target
// month's length, so stepping from Jan 31 lands on Feb 28 rather than
// overflowing into March.
func AddMonths(t time.Time, months int, loc *time.Location) time.Time {
	local := t.In(loc)
	year, month, day := local.Date()

	firstOfTarget := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, loc)
	lastDay := time.Date(firstOfTarget.Year(), firstOfTarget.Month()+1, 0, 0, 0, 0, 0, loc).Day()
	if day > lastDay {
		day = lastDay
	}
	hour, min, sec := local.Clock()
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, min, sec, local.Nanosecond(), loc)
}

func bucket(incidents []incident.Incident, loc *time.Location) map[string][]incident.Incident {
	byDay := make(map[string][]incident.Incident)
	for _, inc := range incidents {
		if inc.AppointmentDate.IsZero() {
			continue
		}
		key := DateKey(inc.AppointmentDate.Time, loc)
		byDay[key] = append(byDay[key], inc)
	}
	return byDay
}

func appointmentsOr(byDay map[string][]incident.Incident, key string) []incident.Incident {
	if appts, ok := byDay[key]; ok {
		return appts
	}
	return []incident.Incident{}
}
