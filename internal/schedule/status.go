// Package schedule implements the classroom scheduling core: the recurring
// series engine, entry lifecycle status, calendar windowing and export
// projections. All operations take an explicit *gorm.DB and reference clock
// so they stay deterministic under test.
package schedule

import (
	"time"

	"github.com/williamalexakis/stcats-ops/internal/models"
)

type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

var statusLabels = map[Status]string{
	StatusUpcoming: "Upcoming",
	StatusActive:   "Active",
	StatusFinished: "Finished",
}

func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ValidStatus reports whether the given filter value names a known status.
func ValidStatus(s string) bool {
	_, ok := statusLabels[Status(s)]
	return ok
}

// Classify returns the lifecycle status of an entry relative to the given
// reference date and wall time ("HH:MM"). Exactly one status applies:
// upcoming before the slot starts, finished after it ends, active in between.
func Classify(entry *models.ScheduleEntry, refDate time.Time, refTime string) Status {
	d := entry.DateOnly()
	r := refDate.Format("2006-01-02")

	// ISO dates and zero-padded HH:MM times order lexicographically.
	if d > r || (d == r && entry.StartTime > refTime) {
		return StatusUpcoming
	}
	if d < r || (d == r && entry.EndTime < refTime) {
		return StatusFinished
	}
	return StatusActive
}
