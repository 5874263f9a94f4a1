package schedule

import (
	"time"

	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/models"
)

// UpcomingForTeacher returns the teacher's next occurrences that have not
// finished yet, soonest first.
func UpcomingForTeacher(db *gorm.DB, teacherID uint, limit int, now time.Time) ([]EntryView, error) {
	today := now.Format("2006-01-02")
	currentTime := now.Format("15:04")

	var entries []models.ScheduleEntry
	err := db.Model(&models.ScheduleEntry{}).
		Where("teacher_id = ?", teacherID).
		Where("date > ? OR (date = ? AND end_time >= ?)", today, today, currentTime).
		Preload("Teacher").Preload("Classroom").Preload("Subject").Preload("Course").Preload("Group").
		Order("date, start_time, id").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	seriesSizes, err := seriesSizeMap(db, entries)
	if err != nil {
		return nil, err
	}

	views := make([]EntryView, 0, len(entries))
	for i := range entries {
		views = append(views, buildEntryView(&entries[i], seriesSizes, teacherID, now, currentTime))
	}
	return views, nil
}
