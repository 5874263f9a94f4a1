package schedule

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("TEST_DB_HOST not set, skipping database tests")
	}
	if err := storage.ConnectTestingDatabase(); err != nil {
		t.Fatalf("test database connection failed: %v", err)
	}
	db := storage.DB

	err := db.AutoMigrate(
		&models.User{},
		&models.InviteCode{},
		&models.Classroom{},
		&models.Subject{},
		&models.Course{},
		&models.ClassGroup{},
		&models.ScheduleEntry{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	db.Exec("TRUNCATE TABLE users, invite_codes, classrooms, subjects, courses, class_groups, schedule_entries, audit_logs RESTART IDENTITY CASCADE")
	return db
}

type seededRefs struct {
	admin     models.User
	teacher   models.User
	classroom models.Classroom
	subject   models.Subject
	course    models.Course
	group     models.ClassGroup
}

func seedRefs(t *testing.T, db *gorm.DB) seededRefs {
	t.Helper()
	r := seededRefs{
		admin:   models.User{Username: "head", Email: "head@school.test", PasswordHash: "x", Role: models.RoleAdmin},
		teacher: models.User{Username: "smith", Email: "smith@school.test", PasswordHash: "x", Role: models.RoleTeacher},
	}
	assert.NoError(t, db.Create(&r.admin).Error)
	assert.NoError(t, db.Create(&r.teacher).Error)

	r.classroom = models.Classroom{Name: "cs1", DisplayName: "CS1", CreatedByID: r.admin.ID}
	r.subject = models.Subject{Name: "computing", DisplayName: "Computing", CreatedByID: r.admin.ID}
	r.course = models.Course{Name: "a-level", DisplayName: "A-Level", CreatedByID: r.admin.ID}
	r.group = models.ClassGroup{Name: "year 12", DisplayName: "Year 12", CreatedByID: r.admin.ID}
	assert.NoError(t, db.Create(&r.classroom).Error)
	assert.NoError(t, db.Create(&r.subject).Error)
	assert.NoError(t, db.Create(&r.course).Error)
	assert.NoError(t, db.Create(&r.group).Error)
	return r
}

func (r seededRefs) fields(t *testing.T, date, start, end string) EntryFields {
	return EntryFields{
		TeacherID:   r.teacher.ID,
		ClassroomID: r.classroom.ID,
		SubjectID:   r.subject.ID,
		CourseID:    r.course.ID,
		GroupID:     r.group.ID,
		Date:        mustDate(t, date),
		StartTime:   start,
		EndTime:     end,
	}
}

func (r seededRefs) entry(t *testing.T, db *gorm.DB, date, start, end string) models.ScheduleEntry {
	t.Helper()
	entry := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, date, start, end).ApplyTo(&entry)
	assert.NoError(t, db.Create(&entry).Error)
	return entry
}

func seriesEntries(t *testing.T, db *gorm.DB, seriesID interface{}) []models.ScheduleEntry {
	t.Helper()
	var entries []models.ScheduleEntry
	assert.NoError(t, db.Where("series_id = ?", seriesID).Order("date, start_time, id").Find(&entries).Error)
	return entries
}

func TestMaterializeSeries(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)

	seriesID, err := Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 3}, r.admin.ID)
	assert.NoError(t, err)

	entries := seriesEntries(t, db, seriesID)
	assert.Len(t, entries, 3)

	wantDates := []string{"2024-01-01", "2024-01-08", "2024-01-15"}
	for i, entry := range entries {
		assert.Equal(t, wantDates[i], entry.DateOnly())
		assert.Equal(t, i+1, *entry.SeriesIndex)
		assert.Equal(t, 3, *entry.TotalOccurrences)
		assert.Equal(t, 7, *entry.IntervalDays)
		assert.Equal(t, "09:00", entry.StartTime)
		assert.Equal(t, r.admin.ID, entry.CreatedByID)
	}
}

func TestMaterializeRejectsBadRecurrence(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)

	_, err := Materialize(db, &template, Recurrence{IntervalDays: 0, Occurrences: 3}, r.admin.ID)
	assert.True(t, IsValidation(err))

	_, err = Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 1}, r.admin.ID)
	assert.True(t, IsValidation(err))

	var count int64
	db.Model(&models.ScheduleEntry{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestReindexIsIdempotent(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)
	seriesID, err := Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 3}, r.admin.ID)
	assert.NoError(t, err)

	before := seriesEntries(t, db, seriesID)
	assert.NoError(t, Reindex(db, seriesID))
	after := seriesEntries(t, db, seriesID)

	for i := range before {
		assert.Equal(t, *before[i].SeriesIndex, *after[i].SeriesIndex)
		assert.Equal(t, *before[i].TotalOccurrences, *after[i].TotalOccurrences)
		// No write happens when nothing changed.
		assert.Equal(t, before[i].UpdatedAt, after[i].UpdatedAt)
	}
}

func TestDeleteSingleOccurrenceReindexesRemainder(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)
	seriesID, err := Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 3}, r.admin.ID)
	assert.NoError(t, err)

	entries := seriesEntries(t, db, seriesID)
	middle := entries[1]

	result, err := DeleteEntry(db, middle.ID, ScopeSingle)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.False(t, result.WholeSeries)

	remaining := seriesEntries(t, db, seriesID)
	assert.Len(t, remaining, 2)
	assert.Equal(t, "2024-01-01", remaining[0].DateOnly())
	assert.Equal(t, "2024-01-15", remaining[1].DateOnly())
	for i, entry := range remaining {
		assert.Equal(t, i+1, *entry.SeriesIndex)
		assert.Equal(t, 2, *entry.TotalOccurrences)
	}
}

func TestDeleteWholeSeries(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)
	seriesID, err := Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 3}, r.admin.ID)
	assert.NoError(t, err)

	entries := seriesEntries(t, db, seriesID)
	result, err := DeleteEntry(db, entries[0].ID, ScopeSeries)
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Deleted)
	assert.True(t, result.WholeSeries)

	assert.Empty(t, seriesEntries(t, db, seriesID))
}

func TestDeleteMissingEntry(t *testing.T) {
	db := testDB(t)
	seedRefs(t, db)

	_, err := DeleteEntry(db, 9999, ScopeSingle)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditPlainUpdate(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)
	entry := r.entry(t, db, "2024-01-05", "09:00", "10:00")

	result, err := EditEntry(db, entry.ID, EditRequest{
		Fields:  r.fields(t, "2024-01-06", "10:00", "11:00"),
		Scope:   ScopeSingle,
		ActorID: r.admin.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, result.Outcome)

	var reloaded models.ScheduleEntry
	assert.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, "2024-01-06", reloaded.DateOnly())
	assert.Equal(t, "10:00", reloaded.StartTime)
	assert.Nil(t, reloaded.SeriesID)
}

func TestEditConvertsSingleIntoSeries(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)
	entry := r.entry(t, db, "2024-01-05", "09:00", "10:00")

	result, err := EditEntry(db, entry.ID, EditRequest{
		Fields:     r.fields(t, "2024-01-05", "09:00", "10:00"),
		Recurring:  true,
		Recurrence: Recurrence{IntervalDays: 7, Occurrences: 3},
		Scope:      ScopeSingle,
		ActorID:    r.admin.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSeriesCreated, result.Outcome)
	assert.Equal(t, 3, result.SeriesSize)

	var reloaded models.ScheduleEntry
	assert.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.NotNil(t, reloaded.SeriesID)
	assert.Equal(t, 1, *reloaded.SeriesIndex)

	entries := seriesEntries(t, db, *reloaded.SeriesID)
	assert.Len(t, entries, 3)
	assert.Equal(t, "2024-01-19", entries[2].DateOnly())
}

func TestEditDetachesWholeSeriesWithDateShift(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)
	seriesID, err := Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 3}, r.admin.ID)
	assert.NoError(t, err)

	entries := seriesEntries(t, db, seriesID)

	// Moving the first occurrence one day later shifts every member.
	result, err := EditEntry(db, entries[0].ID, EditRequest{
		Fields:  r.fields(t, "2024-01-02", "09:30", "10:30"),
		Scope:   ScopeSeries,
		ActorID: r.admin.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSeriesDetached, result.Outcome)

	var all []models.ScheduleEntry
	assert.NoError(t, db.Order("date").Find(&all).Error)
	assert.Len(t, all, 3)

	wantDates := []string{"2024-01-02", "2024-01-09", "2024-01-16"}
	for i, entry := range all {
		assert.Equal(t, wantDates[i], entry.DateOnly())
		assert.Equal(t, "09:30", entry.StartTime)
		assert.Nil(t, entry.SeriesID)
		assert.Nil(t, entry.SeriesIndex)
	}
}

func TestEditDetachesOneOccurrence(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)
	seriesID, err := Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 3}, r.admin.ID)
	assert.NoError(t, err)

	entries := seriesEntries(t, db, seriesID)
	middle := entries[1]

	result, err := EditEntry(db, middle.ID, EditRequest{
		Fields:  r.fields(t, "2024-01-09", "14:00", "15:00"),
		Scope:   ScopeSingle,
		ActorID: r.admin.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeEntryDetached, result.Outcome)

	var detached models.ScheduleEntry
	assert.NoError(t, db.First(&detached, middle.ID).Error)
	assert.Nil(t, detached.SeriesID)
	assert.Equal(t, "2024-01-09", detached.DateOnly())

	remaining := seriesEntries(t, db, seriesID)
	assert.Len(t, remaining, 2)
	for i, entry := range remaining {
		assert.Equal(t, i+1, *entry.SeriesIndex)
		assert.Equal(t, 2, *entry.TotalOccurrences)
	}
}

func TestEditOneOffDeviationStaysInSeries(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)
	seriesID, err := Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 3}, r.admin.ID)
	assert.NoError(t, err)

	entries := seriesEntries(t, db, seriesID)
	middle := entries[1]

	// Moving one occurrence past the last member rewrites only that row.
	result, err := EditEntry(db, middle.ID, EditRequest{
		Fields:     r.fields(t, "2024-01-20", "14:00", "15:00"),
		Recurring:  true,
		Recurrence: Recurrence{IntervalDays: 7, Occurrences: 3},
		Scope:      ScopeSingle,
		ActorID:    r.admin.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, result.Outcome)

	var moved models.ScheduleEntry
	assert.NoError(t, db.First(&moved, middle.ID).Error)
	assert.Equal(t, "2024-01-20", moved.DateOnly())
	assert.Equal(t, "14:00", moved.StartTime)
	assert.Equal(t, seriesID, *moved.SeriesID)
	assert.Equal(t, 3, *moved.TotalOccurrences)
	// The moved occurrence now sorts last, so it takes the final position.
	assert.Equal(t, 3, *moved.SeriesIndex)

	members := seriesEntries(t, db, seriesID)
	assert.Len(t, members, 3)
	assert.Equal(t, "2024-01-01", members[0].DateOnly())
	assert.Equal(t, "2024-01-15", members[1].DateOnly())
	assert.Equal(t, "09:00", members[0].StartTime)
	assert.Equal(t, "09:00", members[1].StartTime)
	for i, entry := range members {
		assert.Equal(t, i+1, *entry.SeriesIndex)
		assert.Equal(t, 3, *entry.TotalOccurrences)
	}
}

func TestEditResizesSeries(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	template := models.ScheduleEntry{CreatedByID: r.admin.ID}
	r.fields(t, "2024-01-01", "09:00", "10:00").ApplyTo(&template)
	seriesID, err := Materialize(db, &template, Recurrence{IntervalDays: 7, Occurrences: 4}, r.admin.ID)
	assert.NoError(t, err)

	entries := seriesEntries(t, db, seriesID)

	// Shrinking drops the trailing occurrences.
	result, err := EditEntry(db, entries[0].ID, EditRequest{
		Fields:     r.fields(t, "2024-01-01", "09:00", "10:00"),
		Recurring:  true,
		Recurrence: Recurrence{IntervalDays: 7, Occurrences: 2},
		Scope:      ScopeSeries,
		ActorID:    r.admin.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSeriesResized, result.Outcome)
	assert.Equal(t, 2, result.SeriesSize)

	remaining := seriesEntries(t, db, seriesID)
	assert.Len(t, remaining, 2)
	assert.Equal(t, "2024-01-08", remaining[1].DateOnly())

	// Growing materializes the missing tail.
	result, err = EditEntry(db, remaining[0].ID, EditRequest{
		Fields:     r.fields(t, "2024-01-01", "09:00", "10:00"),
		Recurring:  true,
		Recurrence: Recurrence{IntervalDays: 7, Occurrences: 5},
		Scope:      ScopeSeries,
		ActorID:    r.admin.ID,
	})
	assert.NoError(t, err)
	assert.Equal(t, 5, result.SeriesSize)

	grown := seriesEntries(t, db, seriesID)
	assert.Len(t, grown, 5)
	assert.Equal(t, "2024-01-29", grown[4].DateOnly())
	for i, entry := range grown {
		assert.Equal(t, i+1, *entry.SeriesIndex)
		assert.Equal(t, 5, *entry.TotalOccurrences)
	}
}

func TestEditRejectsBackwardsTimes(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)
	entry := r.entry(t, db, "2024-01-05", "09:00", "10:00")

	_, err := EditEntry(db, entry.ID, EditRequest{
		Fields:  r.fields(t, "2024-01-05", "11:00", "10:00"),
		Scope:   ScopeSingle,
		ActorID: r.admin.ID,
	})
	assert.True(t, IsValidation(err))
}

func TestCleanupPastEntries(t *testing.T) {
	db := testDB(t)
	r := seedRefs(t, db)

	r.entry(t, db, "2024-01-09", "09:00", "10:00") // past day
	r.entry(t, db, "2024-01-10", "08:00", "09:00") // today, already over
	ongoing := r.entry(t, db, "2024-01-10", "11:00", "13:00")
	later := r.entry(t, db, "2024-01-10", "14:00", "15:00")
	future := r.entry(t, db, "2024-01-11", "09:00", "10:00")

	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	removed, err := CleanupPastEntries(db, now)
	assert.NoError(t, err)
	assert.Equal(t, 2, removed)

	var ids []uint
	assert.NoError(t, db.Model(&models.ScheduleEntry{}).Order("id").Pluck("id", &ids).Error)
	assert.Equal(t, []uint{ongoing.ID, later.ID, future.ID}, ids)
}
