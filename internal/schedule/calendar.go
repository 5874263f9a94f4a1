package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/models"
)

// Filters narrows the set of entries a calendar window or export considers.
// Zero / empty values mean "no filter".
type Filters struct {
	TeacherID   uint
	ClassroomID uint
	SubjectID   uint
	CourseID    uint
	GroupID     uint
	Date        string // YYYY-MM-DD
	Status      string
}

// WindowOptions parameterize BuildWindow.
type WindowOptions struct {
	Year         int // 0 or out of range falls back to the reference month
	Month        int
	Filters      Filters
	ShowWeekends bool
	ViewerID     uint      // private notes and ownership flags resolve against this user
	Now          time.Time // reference clock
}

// EntryView is the presentation-ready projection of one occurrence.
type EntryView struct {
	ID            uint       `json:"id"`
	Date          string     `json:"date"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	TeacherID     uint       `json:"teacher_id"`
	TeacherName   string     `json:"teacher_name"`
	ClassroomID   uint       `json:"classroom_id"`
	ClassroomName string     `json:"classroom_name"`
	SubjectID     uint       `json:"subject_id"`
	SubjectName   string     `json:"subject_name"`
	CourseID      uint       `json:"course_id"`
	CourseName    string     `json:"course_name"`
	GroupID       uint       `json:"group_id"`
	GroupName     string     `json:"group_name"`
	Status        Status     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	IsActive      bool       `json:"is_active"`
	IsOwned       bool       `json:"is_owned"`
	SeriesID      *uuid.UUID `json:"series_id,omitempty"`
	SeriesIndex   int        `json:"series_index,omitempty"`
	SeriesSize    int        `json:"series_size"`
	HasPeers      bool       `json:"has_recurrence_peers"`
	SeriesLabel   string     `json:"series_label,omitempty"`
	IntervalDays  int        `json:"interval_days,omitempty"`
	PrivateNote   string     `json:"private_note,omitempty"` // owner only
}

// DayCell is one day of the rendered grid.
type DayCell struct {
	Date           string      `json:"date"`
	IsCurrentMonth bool        `json:"is_current_month"`
	IsToday        bool        `json:"is_today"`
	IsWeekend      bool        `json:"is_weekend"`
	IsHidden       bool        `json:"is_hidden"` // weekend cell while weekends are off
	Entries        []EntryView `json:"entries"`
}

type Week struct {
	WeekNumber int       `json:"week_number"`
	Days       []DayCell `json:"days"`
}

type DayName struct {
	Label     string `json:"label"`
	Full      string `json:"full"`
	IsWeekend bool   `json:"is_weekend"`
}

type MonthRef struct {
	Month int    `json:"month"`
	Year  int    `json:"year"`
	Label string `json:"label"`
}

// MonthBadge is one quick-jump chip in the ±2 month strip.
type MonthBadge struct {
	Label          string `json:"label"`
	Month          int    `json:"month"`
	Year           int    `json:"year"`
	Count          int    `json:"count"`
	HasEntries     bool   `json:"has_entries"`
	IsCurrent      bool   `json:"is_current"`
	IsCurrentMonth bool   `json:"is_current_month"`
	Offset         int    `json:"offset"`
}

// CalendarWindow is the full month view: whole-week padded grid, navigation
// metadata and a change-detection token.
type CalendarWindow struct {
	Year               int          `json:"year"`
	Month              int          `json:"month"`
	MonthLabel         string       `json:"month_label"`
	DayNames           []DayName    `json:"day_names"`
	Weeks              []Week       `json:"weeks"`
	Prev               MonthRef     `json:"prev"`
	Next               MonthRef     `json:"next"`
	Badges             []MonthBadge `json:"month_badges"`
	VisibleEntryCount  int          `json:"month_entry_count"`
	TotalEntries       int64        `json:"total_entries"`
	ShowWeekends       bool         `json:"show_weekends"`
	StateToken         string       `json:"state_token"`
	RealMonthDirection string       `json:"real_month_direction,omitempty"` // prev/next hint when today's month is off-strip
}

// applyFilters narrows a ScheduleEntry query. Status filters compare against
// the reference clock the same way Classify does.
func applyFilters(q *gorm.DB, f Filters, now time.Time) *gorm.DB {
	if f.TeacherID != 0 {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	if f.ClassroomID != 0 {
		q = q.Where("classroom_id = ?", f.ClassroomID)
	}
	if f.SubjectID != 0 {
		q = q.Where("subject_id = ?", f.SubjectID)
	}
	if f.CourseID != 0 {
		q = q.Where("course_id = ?", f.CourseID)
	}
	if f.GroupID != 0 {
		q = q.Where("group_id = ?", f.GroupID)
	}
	if f.Date != "" {
		if _, err := time.Parse("2006-01-02", f.Date); err == nil {
			q = q.Where("date = ?", f.Date)
		}
	}

	today := now.Format("2006-01-02")
	currentTime := now.Format("15:04")

	switch Status(f.Status) {
	case StatusActive:
		q = q.Where("date = ? AND start_time <= ? AND end_time >= ?", today, currentTime, currentTime)
	case StatusUpcoming:
		q = q.Where("date > ? OR (date = ? AND start_time > ?)", today, today, currentTime)
	case StatusFinished:
		q = q.Where("date < ? OR (date = ? AND end_time < ?)", today, today, currentTime)
	}

	return q
}

// resolveMonth picks the month to display: explicit parameters when sane,
// otherwise the month of the date filter, otherwise the reference month.
func resolveMonth(year, month int, dateFilter string, now time.Time) (int, int) {
	fallback := now
	if dateFilter != "" {
		if d, err := time.Parse("2006-01-02", dateFilter); err == nil {
			fallback = d
		}
	}

	if year < 1 || month < 1 || month > 12 {
		return fallback.Year(), int(fallback.Month())
	}
	return year, month
}

// monthOffset walks offset months from (year, month), wrapping year
// boundaries in either direction.
func monthOffset(year, month, offset int) (int, int) {
	total := year*12 + (month - 1) + offset
	return total / 12, total%12 + 1
}

func monthLabel(year, month int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
}

// BuildWindow assembles the calendar for the requested month: the grid is
// padded to whole Monday..Sunday weeks, every entry in the window is
// annotated with status and series info, and the result carries a state
// token so clients can poll for changes cheaply. An empty schedule still
// yields a full grid.
func BuildWindow(db *gorm.DB, opts WindowOptions) (*CalendarWindow, error) {
	year, month := resolveMonth(opts.Year, opts.Month, opts.Filters.Date, opts.Now)

	today := opts.Now.Format("2006-01-02")
	currentTime := opts.Now.Format("15:04")

	monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	// Pad to Monday on/before the 1st and Sunday on/after the last day.
	windowStart := monthStart.AddDate(0, 0, -mondayOffset(monthStart))
	windowEnd := monthEnd.AddDate(0, 0, 6-mondayOffset(monthEnd))

	filtered := applyFilters(db.Model(&models.ScheduleEntry{}), opts.Filters, opts.Now)

	var totalEntries int64
	if err := filtered.Session(&gorm.Session{}).Count(&totalEntries).Error; err != nil {
		return nil, err
	}

	var entries []models.ScheduleEntry
	err := applyFilters(db.Model(&models.ScheduleEntry{}), opts.Filters, opts.Now).
		Where("date >= ? AND date <= ?", windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02")).
		Preload("Teacher").Preload("Classroom").Preload("Subject").Preload("Course").Preload("Group").
		Order("date, start_time, id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	seriesSizes, err := seriesSizeMap(db, entries)
	if err != nil {
		return nil, err
	}

	views := make([]EntryView, 0, len(entries))
	byDate := make(map[string][]EntryView)
	for i := range entries {
		view := buildEntryView(&entries[i], seriesSizes, opts.ViewerID, opts.Now, currentTime)
		views = append(views, view)
		byDate[view.Date] = append(byDate[view.Date], view)
	}

	badges, realDirection, err := monthBadges(db, opts, year, month)
	if err != nil {
		return nil, err
	}

	weeks, visibleCount := buildGrid(windowStart, windowEnd, month, today, opts.ShowWeekends, byDate)

	prevYear, prevMonth := monthOffset(year, month, -1)
	nextYear, nextMonth := monthOffset(year, month, 1)

	window := &CalendarWindow{
		Year:               year,
		Month:              month,
		MonthLabel:         monthStart.Format("January 2006"),
		DayNames:           dayNames(opts.ShowWeekends),
		Weeks:              weeks,
		Prev:               MonthRef{Month: prevMonth, Year: prevYear, Label: monthLabel(prevYear, prevMonth)},
		Next:               MonthRef{Month: nextMonth, Year: nextYear, Label: monthLabel(nextYear, nextMonth)},
		Badges:             badges,
		VisibleEntryCount:  visibleCount,
		TotalEntries:       totalEntries,
		ShowWeekends:       opts.ShowWeekends,
		StateToken:         StateToken(views),
		RealMonthDirection: realDirection,
	}

	return window, nil
}

// mondayOffset returns how many days d lies after the most recent Monday.
func mondayOffset(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// seriesSizeMap bulk-counts series membership for every series visible in the
// window, avoiding a count query per entry.
func seriesSizeMap(db *gorm.DB, entries []models.ScheduleEntry) (map[uuid.UUID]int, error) {
	ids := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]bool)
	for i := range entries {
		if entries[i].SeriesID != nil && !seen[*entries[i].SeriesID] {
			seen[*entries[i].SeriesID] = true
			ids = append(ids, *entries[i].SeriesID)
		}
	}

	sizes := make(map[uuid.UUID]int, len(ids))
	if len(ids) == 0 {
		return sizes, nil
	}

	var rows []struct {
		SeriesID uuid.UUID
		Total    int
	}
	err := db.Model(&models.ScheduleEntry{}).
		Select("series_id, COUNT(*) AS total").
		Where("series_id IN ?", ids).
		Group("series_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		sizes[row.SeriesID] = row.Total
	}
	return sizes, nil
}

func buildEntryView(entry *models.ScheduleEntry, seriesSizes map[uuid.UUID]int, viewerID uint, now time.Time, currentTime string) EntryView {
	status := Classify(entry, now, currentTime)

	view := EntryView{
		ID:            entry.ID,
		Date:          entry.DateOnly(),
		StartTime:     entry.StartTime,
		EndTime:       entry.EndTime,
		TeacherID:     entry.TeacherID,
		TeacherName:   displayName(entry.Teacher.DisplayName, entry.Teacher.Username),
		ClassroomID:   entry.ClassroomID,
		ClassroomName: displayName(entry.Classroom.DisplayName, entry.Classroom.Name),
		SubjectID:     entry.SubjectID,
		SubjectName:   displayName(entry.Subject.DisplayName, entry.Subject.Name),
		CourseID:      entry.CourseID,
		CourseName:    displayName(entry.Course.DisplayName, entry.Course.Name),
		GroupID:       entry.GroupID,
		GroupName:     displayName(entry.Group.DisplayName, entry.Group.Name),
		Status:        status,
		StatusLabel:   status.Label(),
		IsActive:      status == StatusActive,
		IsOwned:       entry.TeacherID == viewerID,
		SeriesID:      entry.SeriesID,
		SeriesSize:    1,
	}

	if entry.SeriesIndex != nil {
		view.SeriesIndex = *entry.SeriesIndex
	}
	if entry.IntervalDays != nil {
		view.IntervalDays = *entry.IntervalDays
	}
	if entry.SeriesID != nil {
		if size, ok := seriesSizes[*entry.SeriesID]; ok {
			view.SeriesSize = size
		}
		view.HasPeers = view.SeriesSize > 1
		if view.SeriesIndex > 0 && view.SeriesSize > 0 {
			view.SeriesLabel = fmt.Sprintf("Series %d of %d", view.SeriesIndex, view.SeriesSize)
		}
	}
	if view.IsOwned {
		view.PrivateNote = entry.PrivateNote
	}

	return view
}

func displayName(display, fallback string) string {
	if display != "" {
		return display
	}
	return fallback
}

func dayNames(showWeekends bool) []DayName {
	names := make([]DayName, 0, 7)
	for weekday := 0; weekday < 7; weekday++ {
		isWeekend := weekday >= 5
		if !showWeekends && isWeekend {
			continue
		}
		// weekday 0 is Monday here; Go's Weekday starts at Sunday.
		d := time.Weekday((weekday + 1) % 7)
		names = append(names, DayName{
			Label:     d.String()[:3],
			Full:      d.String(),
			IsWeekend: isWeekend,
		})
	}
	return names
}

func buildGrid(windowStart, windowEnd time.Time, month int, today string, showWeekends bool, byDate map[string][]EntryView) ([]Week, int) {
	weeks := make([]Week, 0)
	visible := 0

	for pointer := windowStart; !pointer.After(windowEnd); pointer = pointer.AddDate(0, 0, 7) {
		_, weekNumber := pointer.ISOWeek()
		days := make([]DayCell, 0, 7)

		for i := 0; i < 7; i++ {
			day := pointer.AddDate(0, 0, i)
			dateStr := day.Format("2006-01-02")
			dayEntries := byDate[dateStr]
			if dayEntries == nil {
				dayEntries = []EntryView{}
			}
			isWeekend := mondayOffset(day) >= 5

			inMonth := int(day.Month()) == month
			if inMonth {
				visible += len(dayEntries)
			}

			days = append(days, DayCell{
				Date:           dateStr,
				IsCurrentMonth: inMonth,
				IsToday:        dateStr == today,
				IsWeekend:      isWeekend,
				IsHidden:       !showWeekends && isWeekend,
				Entries:        dayEntries,
			})
		}

		weeks = append(weeks, Week{WeekNumber: weekNumber, Days: days})
	}

	return weeks, visible
}

// monthBadges computes the ±2 month quick-jump strip with per-month entry
// counts, plus a hint pointing at today's month when it falls outside the
// strip.
func monthBadges(db *gorm.DB, opts WindowOptions, year, month int) ([]MonthBadge, string, error) {
	var rows []struct {
		Y int
		M int
		C int
	}
	err := applyFilters(db.Model(&models.ScheduleEntry{}), opts.Filters, opts.Now).
		Select("date_part('year', date)::int AS y, date_part('month', date)::int AS m, COUNT(*) AS c").
		Group("1, 2").
		Scan(&rows).Error
	if err != nil {
		return nil, "", err
	}

	counts := make(map[[2]int]int, len(rows))
	for _, row := range rows {
		counts[[2]int{row.Y, row.M}] = row.C
	}

	todayYear, todayMonth := opts.Now.Year(), int(opts.Now.Month())

	badges := make([]MonthBadge, 0, 5)
	realMonthVisible := false
	for offset := -2; offset <= 2; offset++ {
		badgeYear, badgeMonth := monthOffset(year, month, offset)
		count := counts[[2]int{badgeYear, badgeMonth}]
		isCurrentMonth := badgeYear == todayYear && badgeMonth == todayMonth
		if isCurrentMonth {
			realMonthVisible = true
		}
		badges = append(badges, MonthBadge{
			Label:          monthLabel(badgeYear, badgeMonth),
			Month:          badgeMonth,
			Year:           badgeYear,
			Count:          count,
			HasEntries:     count > 0,
			IsCurrent:      offset == 0,
			IsCurrentMonth: isCurrentMonth,
			Offset:         offset,
		})
	}

	direction := ""
	if !realMonthVisible {
		currentIndex := year*12 + month
		todayIndex := todayYear*12 + todayMonth
		if todayIndex < currentIndex-2 {
			direction = "prev"
		} else if todayIndex > currentIndex+2 {
			direction = "next"
		}
	}

	return badges, direction, nil
}

// StateToken hashes the identity, scheduling fields and derived status of
// every visible entry into a stable change-detection fingerprint. Clients
// present it back and receive "unchanged" when nothing moved.
func StateToken(views []EntryView) string {
	if len(views) == 0 {
		return "0"
	}

	parts := make([]string, 0, len(views))
	for _, v := range views {
		active := 0
		if v.IsActive {
			active = 1
		}
		parts = append(parts, strings.Join([]string{
			fmt.Sprint(v.ID),
			v.Date,
			v.StartTime,
			v.EndTime,
			fmt.Sprint(v.TeacherID),
			v.TeacherName,
			fmt.Sprint(v.ClassroomID),
			v.ClassroomName,
			fmt.Sprint(v.SubjectID),
			v.SubjectName,
			fmt.Sprint(v.CourseID),
			v.CourseName,
			fmt.Sprint(v.GroupID),
			v.GroupName,
			fmt.Sprint(active),
			fmt.Sprint(v.SeriesSize),
			fmt.Sprint(v.SeriesIndex),
			string(v.Status),
		}, ":"))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
