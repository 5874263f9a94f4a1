package schedule

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/williamalexakis/stcats-ops/internal/models"
)

// Scope selects whether a mutation targets one occurrence or its whole series.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeSeries Scope = "series"
)

// EntryFields carries the user-editable fields of a schedule entry.
type EntryFields struct {
	TeacherID   uint
	ClassroomID uint
	SubjectID   uint
	CourseID    uint
	GroupID     uint
	Date        time.Time
	StartTime   string // "HH:MM"
	EndTime     string // "HH:MM"
}

// Recurrence is a requested series configuration.
type Recurrence struct {
	IntervalDays int
	Occurrences  int
}

// Validate rejects time ranges that do not move forward.
func (f EntryFields) Validate() error {
	if f.EndTime <= f.StartTime {
		return validationErr("End time must be after the start time.")
	}
	return nil
}

// Validate enforces the minimum shape of a series request.
func (r Recurrence) Validate() error {
	if r.IntervalDays <= 0 {
		return validationErr("Recurring entries require an interval in days greater than zero.")
	}
	if r.Occurrences < 2 {
		return validationErr("Recurring entries must repeat at least twice.")
	}
	return nil
}

func (f EntryFields) ApplyTo(entry *models.ScheduleEntry) {
	entry.TeacherID = f.TeacherID
	entry.ClassroomID = f.ClassroomID
	entry.SubjectID = f.SubjectID
	entry.CourseID = f.CourseID
	entry.GroupID = f.GroupID
	entry.Date = f.Date
	entry.StartTime = f.StartTime
	entry.EndTime = f.EndTime
}

// applyToExceptDate copies everything but the date, used when series members
// keep their own dates (shifted by a delta) during a whole-series edit.
func (f EntryFields) applyToExceptDate(entry *models.ScheduleEntry) {
	date := entry.Date
	f.ApplyTo(entry)
	entry.Date = date
}

func setRecurrence(entry *models.ScheduleEntry, seriesID uuid.UUID, rec Recurrence, index int) {
	id := seriesID
	interval := rec.IntervalDays
	total := rec.Occurrences
	idx := index
	entry.SeriesID = &id
	entry.IntervalDays = &interval
	entry.TotalOccurrences = &total
	entry.SeriesIndex = &idx
}

func clearRecurrence(entry *models.ScheduleEntry) {
	entry.SeriesID = nil
	entry.IntervalDays = nil
	entry.TotalOccurrences = nil
	entry.SeriesIndex = nil
}

// loadSeries returns all live members of a series in canonical
// (date, start_time, id) order, locked FOR UPDATE when lock is set.
func loadSeries(tx *gorm.DB, seriesID uuid.UUID, lock bool) ([]models.ScheduleEntry, error) {
	q := tx.Where("series_id = ?", seriesID).Order("date, start_time, id")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var entries []models.ScheduleEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Reindex rewrites series_index and total_occurrences for every member of the
// series so they form a contiguous 1..N ranking in (date, start_time, id)
// order. Only records whose values actually changed are written, which makes
// repeated calls cheap and idempotent. An empty series is a no-op.
func Reindex(tx *gorm.DB, seriesID uuid.UUID) error {
	entries, err := loadSeries(tx, seriesID, true)
	if err != nil {
		return err
	}

	total := len(entries)
	if total == 0 {
		return nil
	}

	for i := range entries {
		entry := &entries[i]
		index := i + 1
		updates := map[string]interface{}{}

		if entry.SeriesIndex == nil || *entry.SeriesIndex != index {
			entry.SeriesIndex = &index
			updates["series_index"] = index
		}
		if entry.TotalOccurrences == nil || *entry.TotalOccurrences != total {
			entry.TotalOccurrences = &total
			updates["total_occurrences"] = total
		}

		if len(updates) > 0 {
			if err := tx.Model(entry).Updates(updates).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

// Materialize turns the template entry into a recurring series of
// rec.Occurrences members spaced rec.IntervalDays apart. A template that is
// already persisted (nonzero ID) becomes position 1 and the remaining members
// are created; a blank template is created along with the rest. New records
// are stamped with actorID as their creator. Runs inside one transaction.
func Materialize(db *gorm.DB, template *models.ScheduleEntry, rec Recurrence, actorID uint) (uuid.UUID, error) {
	if err := rec.Validate(); err != nil {
		return uuid.Nil, err
	}

	seriesID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		setRecurrence(template, seriesID, rec, 1)

		if template.ID == 0 {
			if template.CreatedByID == 0 {
				template.CreatedByID = actorID
			}
			if err := tx.Create(template).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Save(template).Error; err != nil {
				return err
			}
		}

		for k := 2; k <= rec.Occurrences; k++ {
			member := cloneForSeries(template, actorID)
			member.Date = template.Date.AddDate(0, 0, rec.IntervalDays*(k-1))
			setRecurrence(&member, seriesID, rec, k)
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		}

		return Reindex(tx, seriesID)
	})
	if err != nil {
		return uuid.Nil, err
	}

	return seriesID, nil
}

// cloneForSeries copies the schedulable fields of the template into a fresh
// record. Private notes stay with the original occurrence.
func cloneForSeries(template *models.ScheduleEntry, actorID uint) models.ScheduleEntry {
	return models.ScheduleEntry{
		TeacherID:   template.TeacherID,
		ClassroomID: template.ClassroomID,
		SubjectID:   template.SubjectID,
		CourseID:    template.CourseID,
		GroupID:     template.GroupID,
		Date:        template.Date,
		StartTime:   template.StartTime,
		EndTime:     template.EndTime,
		CreatedByID: actorID,
	}
}

// EditOutcome names what an edit ended up doing, for caller messaging.
type EditOutcome string

const (
	OutcomeUpdated        EditOutcome = "updated"
	OutcomeSeriesCreated  EditOutcome = "series_created"
	OutcomeSeriesDetached EditOutcome = "series_detached"
	OutcomeEntryDetached  EditOutcome = "entry_detached"
	OutcomeSeriesResized  EditOutcome = "series_resized"
)

// EditRequest describes one edit submission.
type EditRequest struct {
	Fields     EntryFields
	Recurring  bool
	Recurrence Recurrence // read when Recurring is set
	Scope      Scope
	ActorID    uint // creator for any newly materialized members
}

// EditResult reports the applied transition.
type EditResult struct {
	Outcome    EditOutcome
	SeriesSize int
}

// EditEntry applies an edit to the entry with the given ID. The transition is
// keyed by whether the entry was already recurring and whether the submission
// requests recurrence; ScopeSeries widens the recurring-side transitions to
// every member of the series. Everything runs in one transaction with the
// series rows locked, so concurrent edits serialize and no partial series
// state is ever visible.
func EditEntry(db *gorm.DB, entryID uint, req EditRequest) (*EditResult, error) {
	if err := req.Fields.Validate(); err != nil {
		return nil, err
	}
	if req.Recurring {
		if err := req.Recurrence.Validate(); err != nil {
			return nil, err
		}
	}

	result := &EditResult{Outcome: OutcomeUpdated, SeriesSize: 1}

	err := db.Transaction(func(tx *gorm.DB) error {
		var entry models.ScheduleEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, entryID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		peerCount := 1
		if entry.SeriesID != nil {
			members, err := loadSeries(tx, *entry.SeriesID, true)
			if err != nil {
				return err
			}
			peerCount = len(members)
		}

		applyToSeries := req.Scope == ScopeSeries && entry.SeriesID != nil && peerCount > 1

		switch {
		case entry.SeriesID == nil && !req.Recurring:
			req.Fields.ApplyTo(&entry)
			return tx.Save(&entry).Error

		case entry.SeriesID == nil && req.Recurring:
			req.Fields.ApplyTo(&entry)
			if _, err := Materialize(tx, &entry, req.Recurrence, req.ActorID); err != nil {
				return err
			}
			result.Outcome = OutcomeSeriesCreated
			result.SeriesSize = req.Recurrence.Occurrences
			return nil

		case !req.Recurring:
			return editDropRecurrence(tx, &entry, req, applyToSeries, result)

		default:
			return editKeepRecurrence(tx, &entry, req, applyToSeries, result)
		}
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// editDropRecurrence handles the recurring→standalone transitions.
func editDropRecurrence(tx *gorm.DB, entry *models.ScheduleEntry, req EditRequest, applyToSeries bool, result *EditResult) error {
	seriesID := *entry.SeriesID

	if applyToSeries {
		members, err := loadSeries(tx, seriesID, true)
		if err != nil {
			return err
		}

		// Shift every member by the same number of days the edited
		// occurrence moved, so relative spacing survives the detach.
		deltaDays := daysBetween(entry.Date, req.Fields.Date)

		for i := range members {
			member := &members[i]
			req.Fields.applyToExceptDate(member)
			member.Date = member.Date.AddDate(0, 0, deltaDays)
			clearRecurrence(member)
			if err := tx.Save(member).Error; err != nil {
				return err
			}
		}

		result.Outcome = OutcomeSeriesDetached
		result.SeriesSize = len(members)
		return nil
	}

	req.Fields.ApplyTo(entry)
	clearRecurrence(entry)
	if err := tx.Save(entry).Error; err != nil {
		return err
	}

	// The remaining members need contiguous positions again.
	if err := Reindex(tx, seriesID); err != nil {
		return err
	}
	result.Outcome = OutcomeEntryDetached
	return nil
}

// editKeepRecurrence handles the recurring→recurring transitions.
func editKeepRecurrence(tx *gorm.DB, entry *models.ScheduleEntry, req EditRequest, applyToSeries bool, result *EditResult) error {
	seriesID := *entry.SeriesID

	if !applyToSeries {
		// One-off deviation: only this occurrence changes and it stays a
		// series member with its metadata untouched.
		req.Fields.ApplyTo(entry)
		if err := tx.Save(entry).Error; err != nil {
			return err
		}
		return Reindex(tx, seriesID)
	}

	// Canonical ordering first so the edited entry's rank is trustworthy.
	if err := Reindex(tx, seriesID); err != nil {
		return err
	}
	if err := tx.First(entry, entry.ID).Error; err != nil {
		return err
	}

	var members []models.ScheduleEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("series_id = ?", seriesID).
		Order("series_index, date, start_time, id").
		Find(&members).Error
	if err != nil {
		return err
	}

	rank := 1
	if entry.SeriesIndex != nil {
		rank = *entry.SeriesIndex
	}

	// Derive the series start so the edited occurrence lands on the
	// submitted date while every other rank keeps its relative offset.
	rec := req.Recurrence
	newStart := req.Fields.Date.AddDate(0, 0, -rec.IntervalDays*(rank-1))

	for k := 0; k < rec.Occurrences; k++ {
		targetDate := newStart.AddDate(0, 0, rec.IntervalDays*k)

		if k < len(members) {
			member := &members[k]
			req.Fields.applyToExceptDate(member)
			member.Date = targetDate
			setRecurrence(member, seriesID, rec, k+1)
			if err := tx.Save(member).Error; err != nil {
				return err
			}
			continue
		}

		created := models.ScheduleEntry{
			TeacherID:   req.Fields.TeacherID,
			ClassroomID: req.Fields.ClassroomID,
			SubjectID:   req.Fields.SubjectID,
			CourseID:    req.Fields.CourseID,
			GroupID:     req.Fields.GroupID,
			Date:        targetDate,
			StartTime:   req.Fields.StartTime,
			EndTime:     req.Fields.EndTime,
			CreatedByID: req.ActorID,
		}
		setRecurrence(&created, seriesID, rec, k+1)
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
	}

	// Shrinking the series drops the trailing ranks.
	for k := rec.Occurrences; k < len(members); k++ {
		if err := tx.Unscoped().Delete(&members[k]).Error; err != nil {
			return err
		}
	}

	if err := Reindex(tx, seriesID); err != nil {
		return err
	}
	result.Outcome = OutcomeSeriesResized
	result.SeriesSize = rec.Occurrences
	return nil
}

// DeleteResult reports how many occurrences a delete removed.
type DeleteResult struct {
	Deleted     int
	WholeSeries bool
}

// DeleteEntry removes the entry, or its entire series when scope is
// ScopeSeries and the entry actually has series peers. Single deletes from a
// series reindex the remainder.
func DeleteEntry(db *gorm.DB, entryID uint, scope Scope) (*DeleteResult, error) {
	result := &DeleteResult{}

	err := db.Transaction(func(tx *gorm.DB) error {
		var entry models.ScheduleEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, entryID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		peerCount := 1
		if entry.SeriesID != nil {
			members, err := loadSeries(tx, *entry.SeriesID, true)
			if err != nil {
				return err
			}
			peerCount = len(members)
		}

		if scope == ScopeSeries && entry.SeriesID != nil && peerCount > 1 {
			res := tx.Unscoped().Where("series_id = ?", *entry.SeriesID).Delete(&models.ScheduleEntry{})
			if res.Error != nil {
				return res.Error
			}
			result.Deleted = int(res.RowsAffected)
			result.WholeSeries = true
			return nil
		}

		if err := tx.Unscoped().Delete(&entry).Error; err != nil {
			return err
		}
		result.Deleted = 1

		if entry.SeriesID != nil {
			return Reindex(tx, *entry.SeriesID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CleanupPastEntries removes every entry dated before the reference day and
// every entry on the reference day that has already ended. Affected series
// are not reindexed here; the next series mutation restores contiguous
// positions. Safe to run repeatedly.
func CleanupPastEntries(db *gorm.DB, now time.Time) (int, error) {
	today := now.Format("2006-01-02")
	currentTime := now.Format("15:04")

	deleted := 0

	res := db.Unscoped().Where("date < ?", today).Delete(&models.ScheduleEntry{})
	if res.Error != nil {
		return deleted, res.Error
	}
	deleted += int(res.RowsAffected)

	res = db.Unscoped().Where("date = ? AND end_time < ?", today, currentTime).Delete(&models.ScheduleEntry{})
	if res.Error != nil {
		return deleted, res.Error
	}
	deleted += int(res.RowsAffected)

	return deleted, nil
}

// daysBetween returns the whole-day difference to - from for date-only values.
func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
