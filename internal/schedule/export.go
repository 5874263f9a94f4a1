package schedule

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/models"
)

// ExportRow is the flat projection of one occurrence used by the CSV and
// XLSX exports. Dates are YYYY-MM-DD and times HH:MM so a re-parse recovers
// the stored values exactly.
type ExportRow struct {
	Week        int
	Date        string
	Day         string
	StartTime   string
	EndTime     string
	Subject     string
	Course      string
	Teacher     string
	Classroom   string
	Group       string
	SeriesLabel string // "k of N" or "N/A"
	Interval    string // days or "N/A"
	Status      string
	Note        string // owner-only
}

var exportHeader = []string{
	"Week",
	"Date",
	"Day",
	"Start Time",
	"End Time",
	"Subject",
	"Course",
	"Teacher",
	"Classroom",
	"Group",
	"Recurring Series",
	"Interval (days)",
	"Status",
	"Personal Note",
}

// ExportOptions selects the month slice to export.
type ExportOptions struct {
	Year         int
	Month        int
	Filters      Filters
	ShowWeekends bool
	ViewerID     uint
	Now          time.Time
}

// BuildExportRows queries the requested month (weekends excluded unless
// requested) and projects each entry in (date, start_time, id) order.
func BuildExportRows(db *gorm.DB, opts ExportOptions) ([]ExportRow, error) {
	year, month := resolveMonth(opts.Year, opts.Month, opts.Filters.Date, opts.Now)

	monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	q := applyFilters(db.Model(&models.ScheduleEntry{}), opts.Filters, opts.Now).
		Where("date >= ? AND date <= ?", monthStart.Format("2006-01-02"), monthEnd.Format("2006-01-02"))
	if !opts.ShowWeekends {
		q = q.Where("EXTRACT(DOW FROM date) NOT IN (0, 6)")
	}

	var entries []models.ScheduleEntry
	err := q.Preload("Teacher").Preload("Classroom").Preload("Subject").Preload("Course").Preload("Group").
		Order("date, start_time, id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	currentTime := opts.Now.Format("15:04")

	rows := make([]ExportRow, 0, len(entries))
	for i := range entries {
		rows = append(rows, buildExportRow(&entries[i], opts.ViewerID, opts.Now, currentTime))
	}
	return rows, nil
}

func buildExportRow(entry *models.ScheduleEntry, viewerID uint, now time.Time, currentTime string) ExportRow {
	_, week := entry.Date.ISOWeek()
	status := Classify(entry, now, currentTime)

	seriesLabel := "N/A"
	if entry.SeriesID != nil && entry.TotalOccurrences != nil && entry.SeriesIndex != nil {
		seriesLabel = fmt.Sprintf("%d of %d", *entry.SeriesIndex, *entry.TotalOccurrences)
	}

	interval := "N/A"
	if entry.IntervalDays != nil {
		interval = fmt.Sprint(*entry.IntervalDays)
	}

	note := ""
	if entry.TeacherID == viewerID {
		note = entry.PrivateNote
	}

	return ExportRow{
		Week:        week,
		Date:        entry.DateOnly(),
		Day:         entry.Date.Weekday().String(),
		StartTime:   entry.StartTime,
		EndTime:     entry.EndTime,
		Subject:     displayName(entry.Subject.DisplayName, entry.Subject.Name),
		Course:      displayName(entry.Course.DisplayName, entry.Course.Name),
		Teacher:     entry.Teacher.Username,
		Classroom:   displayName(entry.Classroom.DisplayName, entry.Classroom.Name),
		Group:       displayName(entry.Group.DisplayName, entry.Group.Name),
		SeriesLabel: seriesLabel,
		Interval:    interval,
		Status:      status.Label(),
		Note:        note,
	}
}

func (r ExportRow) record() []string {
	return []string{
		fmt.Sprint(r.Week),
		r.Date,
		r.Day,
		r.StartTime,
		r.EndTime,
		r.Subject,
		r.Course,
		r.Teacher,
		r.Classroom,
		r.Group,
		r.SeriesLabel,
		r.Interval,
		r.Status,
		r.Note,
	}
}

// WriteCSV writes the header row followed by one record per row.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row.record()); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteXLSX renders the same projection as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Schedule"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for i, name := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row.record() {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}
