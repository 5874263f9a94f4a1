package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduleEntry is one classroom booking. Entries belonging to a recurring
// series share a SeriesID and carry the series metadata; standalone entries
// have all four recurrence fields nil.
type ScheduleEntry struct {
	gorm.Model
	TeacherID   uint       `gorm:"index;not null"`
	Teacher     User       `gorm:"foreignKey:TeacherID;constraint:OnDelete:CASCADE"`
	ClassroomID uint       `gorm:"index;not null"`
	Classroom   Classroom  `gorm:"foreignKey:ClassroomID;constraint:OnDelete:RESTRICT"`
	SubjectID   uint       `gorm:"index;not null"`
	Subject     Subject    `gorm:"foreignKey:SubjectID;constraint:OnDelete:RESTRICT"`
	CourseID    uint       `gorm:"index;not null"`
	Course      Course     `gorm:"foreignKey:CourseID;constraint:OnDelete:RESTRICT"`
	GroupID     uint       `gorm:"index;not null"`
	Group       ClassGroup `gorm:"foreignKey:GroupID;constraint:OnDelete:RESTRICT"`

	Date      time.Time `gorm:"type:date;index;not null"`
	StartTime string    `gorm:"type:varchar(5);not null"` // "HH:MM", zero-padded so string order is time order
	EndTime   string    `gorm:"type:varchar(5);not null"`

	CreatedByID uint `gorm:"not null"`
	CreatedBy   User `gorm:"foreignKey:CreatedByID;constraint:OnDelete:RESTRICT"`

	SeriesID         *uuid.UUID `gorm:"type:uuid;index"`
	IntervalDays     *int       // spacing between occurrences in days
	TotalOccurrences *int       // series cardinality at last materialization
	SeriesIndex      *int       // 1-based rank within the series

	PrivateNote string `gorm:"type:text;not null;default:''"` // visible to the owning teacher only
}

func (e *ScheduleEntry) IsRecurring() bool {
	return e.SeriesID != nil
}

// DateOnly returns the entry date formatted as YYYY-MM-DD.
func (e *ScheduleEntry) DateOnly() string {
	return e.Date.Format("2006-01-02")
}
