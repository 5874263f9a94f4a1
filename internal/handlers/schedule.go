package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/audit"
	"github.com/williamalexakis/stcats-ops/internal/auth"
	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/response"
	"github.com/williamalexakis/stcats-ops/internal/schedule"
	"github.com/williamalexakis/stcats-ops/internal/storage"
	"github.com/williamalexakis/stcats-ops/internal/tasks"
)

type ScheduleEntryRequest struct {
	TeacherID   uint   `json:"teacher_id" binding:"required"`
	ClassroomID uint   `json:"classroom_id" binding:"required"`
	SubjectID   uint   `json:"subject_id" binding:"required"`
	CourseID    uint   `json:"course_id" binding:"required"`
	GroupID     uint   `json:"group_id" binding:"required"`
	Date        string `json:"date" binding:"required,dateymd"`
	StartTime   string `json:"start_time" binding:"required,hhmm"`
	EndTime     string `json:"end_time" binding:"required,hhmm"`
	IsRecurring bool   `json:"is_recurring"`
	Interval    int    `json:"recurrence_interval" binding:"omitempty,min=1,max=365"`
	Occurrences int    `json:"recurrence_total" binding:"omitempty,min=2,max=100"`
	Scope       string `json:"scope" binding:"omitempty,oneof=single series"`
}

type PrivateNoteRequest struct {
	Note string `json:"note" binding:"max=2000"`
}

type ScheduleMutationResponse struct {
	Message string `json:"message"`
	Outcome string `json:"outcome,omitempty"`
	Count   int    `json:"count,omitempty"`
}

type ScheduleUpdatesResponse struct {
	Changed bool                     `json:"changed"`
	Token   string                   `json:"token"`
	Window  *schedule.CalendarWindow `json:"window,omitempty"`
}

type UpcomingResponse struct {
	Entries []schedule.EntryView `json:"entries"`
}

func windowOptions(c *gin.Context, now time.Time) schedule.WindowOptions {
	year, _ := strconv.Atoi(c.Query("year"))
	month, _ := strconv.Atoi(c.Query("month"))
	viewer := auth.CurrentUser(c)

	return schedule.WindowOptions{
		Year:         year,
		Month:        month,
		Filters:      parseFilters(c),
		ShowWeekends: c.Query("show_weekends") == "1" || c.Query("show_weekends") == "true",
		ViewerID:     viewer.ID,
		Now:          now,
	}
}

func parseFilters(c *gin.Context) schedule.Filters {
	uintQuery := func(key string) uint {
		v, _ := strconv.ParseUint(c.Query(key), 10, 32)
		return uint(v)
	}
	return schedule.Filters{
		TeacherID:   uintQuery("teacher"),
		ClassroomID: uintQuery("classroom"),
		SubjectID:   uintQuery("subject"),
		CourseID:    uintQuery("course"),
		GroupID:     uintQuery("group"),
		Date:        c.Query("date"),
		Status:      c.Query("status"),
	}
}

// filterQueryKey canonicalizes the cacheable query parameters so equivalent
// requests share one cache slot.
func filterQueryKey(opts schedule.WindowOptions) string {
	f := opts.Filters
	return fmt.Sprintf("%d-%d:%d:%d:%d:%d:%d:%s:%s:%t",
		opts.Year, opts.Month,
		f.TeacherID, f.ClassroomID, f.SubjectID, f.CourseID, f.GroupID,
		f.Date, f.Status, opts.ShowWeekends)
}

// @Summary		Calendar month view
// @Description	Returns the padded month grid with entries, navigation badges and a change-detection token
// @Tags			schedule
// @Produce		json
// @Security		BearerAuth
// @Param			year			query		int		false	"Year"
// @Param			month			query		int		false	"Month (1-12)"
// @Param			teacher			query		int		false	"Filter by teacher ID"
// @Param			classroom		query		int		false	"Filter by classroom ID"
// @Param			subject			query		int		false	"Filter by subject ID"
// @Param			course			query		int		false	"Filter by course ID"
// @Param			group			query		int		false	"Filter by group ID"
// @Param			date			query		string	false	"Filter by day (YYYY-MM-DD)"
// @Param			status			query		string	false	"Filter by status (upcoming, active, finished)"
// @Param			show_weekends	query		bool	false	"Include Saturday and Sunday columns"
// @Success		200				{object}	schedule.CalendarWindow	"Month window"
// @Failure		500				{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/schedule [get]
func GetSchedule(c *gin.Context) {
	now := time.Now()
	tasks.MaybeSweep(storage.DB, now)

	opts := windowOptions(c, now)

	key := calendarCacheKey(scheduleGeneration(), opts.ViewerID, filterQueryKey(opts))
	if payload, ok := cachedCalendar(key); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
		return
	}

	window, err := schedule.BuildWindow(storage.DB, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to build the calendar",
		})
		return
	}

	if payload, err := json.Marshal(window); err == nil {
		storeCalendar(key, string(payload))
	}

	c.JSON(http.StatusOK, window)
}

// @Summary		Poll for calendar changes
// @Description	Compares the client's state token against the current window and returns the fresh window only when something changed
// @Tags			schedule
// @Produce		json
// @Security		BearerAuth
// @Param			token	query		string					true	"State token from a previous window"
// @Param			year	query		int						false	"Year"
// @Param			month	query		int						false	"Month (1-12)"
// @Success		200		{object}	ScheduleUpdatesResponse	"Change report"
// @Failure		500		{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/schedule/updates [get]
func GetScheduleUpdates(c *gin.Context) {
	now := time.Now()
	tasks.MaybeSweep(storage.DB, now)

	window, err := schedule.BuildWindow(storage.DB, windowOptions(c, now))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to check for calendar changes",
		})
		return
	}

	if c.Query("token") == window.StateToken {
		c.JSON(http.StatusOK, ScheduleUpdatesResponse{Changed: false, Token: window.StateToken})
		return
	}

	c.JSON(http.StatusOK, ScheduleUpdatesResponse{
		Changed: true,
		Token:   window.StateToken,
		Window:  window,
	})
}

// resolveEntryFields checks every referenced record exists and returns the
// validated field set. The per-kind message matches what the form shows.
func resolveEntryFields(c *gin.Context, req ScheduleEntryRequest) (schedule.EntryFields, bool) {
	refs := []struct {
		id    uint
		model interface{}
		label string
	}{
		{req.TeacherID, &models.User{}, "teacher"},
		{req.ClassroomID, &models.Classroom{}, "classroom"},
		{req.SubjectID, &models.Subject{}, "subject"},
		{req.CourseID, &models.Course{}, "course"},
		{req.GroupID, &models.ClassGroup{}, "group"},
	}
	for _, ref := range refs {
		if err := storage.DB.First(ref.model, ref.id).Error; err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    response.CodeValidation,
				Message: "Selected " + ref.label + " not found",
			})
			return schedule.EntryFields{}, false
		}
	}

	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid date",
		})
		return schedule.EntryFields{}, false
	}

	fields := schedule.EntryFields{
		TeacherID:   req.TeacherID,
		ClassroomID: req.ClassroomID,
		SubjectID:   req.SubjectID,
		CourseID:    req.CourseID,
		GroupID:     req.GroupID,
		Date:        date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if err := fields.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: err.Error(),
		})
		return schedule.EntryFields{}, false
	}
	return fields, true
}

// @Summary		Create a schedule entry
// @Description	Creates a single occurrence, or materializes a whole series when is_recurring is set
// @Tags			schedule
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			entry	body		ScheduleEntryRequest		true	"Entry data"
// @Success		201		{object}	ScheduleMutationResponse	"Created"
// @Failure		400		{object}	response.ErrorResponse		"VALIDATION_ERROR"
// @Failure		403		{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		500		{object}	response.ErrorResponse		"DB_ERROR"
// @Router			/api/schedule/entries [post]
func CreateScheduleEntry(c *gin.Context) {
	var req ScheduleEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid entry data",
			Details: err.Error(),
		})
		return
	}

	fields, ok := resolveEntryFields(c, req)
	if !ok {
		return
	}
	actor := auth.CurrentUser(c)

	entry := models.ScheduleEntry{CreatedByID: actor.ID}
	fields.ApplyTo(&entry)

	if req.IsRecurring {
		rec := schedule.Recurrence{IntervalDays: req.Interval, Occurrences: req.Occurrences}
		if _, err := schedule.Materialize(storage.DB, &entry, rec, actor.ID); err != nil {
			respondScheduleError(c, err)
			return
		}

		audit.Record(&actor.ID, "schedule.create_series", entry.DateOnly(), map[string]interface{}{
			"interval": req.Interval,
			"total":    req.Occurrences,
		})
		notifyScheduleChanged()

		c.JSON(http.StatusCreated, ScheduleMutationResponse{
			Message: fmt.Sprintf("Created %d recurring schedule entries.", req.Occurrences),
			Count:   req.Occurrences,
		})
		return
	}

	if err := storage.DB.Create(&entry).Error; err != nil {
		respondScheduleError(c, err)
		return
	}

	audit.Record(&actor.ID, "schedule.create", entry.DateOnly(), nil)
	notifyScheduleChanged()

	c.JSON(http.StatusCreated, ScheduleMutationResponse{
		Message: "Schedule entry created.",
		Count:   1,
	})
}

var editOutcomeMessages = map[schedule.EditOutcome]string{
	schedule.OutcomeUpdated:        "Schedule entry updated.",
	schedule.OutcomeSeriesCreated:  "Entry converted into a recurring series.",
	schedule.OutcomeSeriesDetached: "Recurrence removed from the series.",
	schedule.OutcomeEntryDetached:  "Entry detached from its series.",
	schedule.OutcomeSeriesResized:  "Recurring series updated.",
}

// @Summary		Edit a schedule entry
// @Description	Applies a single or whole-series edit depending on the current and requested recurrence plus the scope field
// @Tags			schedule
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			id		path		int							true	"Entry ID"
// @Param			entry	body		ScheduleEntryRequest		true	"Entry data"
// @Success		200		{object}	ScheduleMutationResponse	"Edited"
// @Failure		400		{object}	response.ErrorResponse		"VALIDATION_ERROR"
// @Failure		403		{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404		{object}	response.ErrorResponse		"NOT_FOUND"
// @Failure		500		{object}	response.ErrorResponse		"DB_ERROR"
// @Router			/api/schedule/entries/{id} [put]
func UpdateScheduleEntry(c *gin.Context) {
	entryID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "Schedule entry not found",
		})
		return
	}

	var req ScheduleEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid entry data",
			Details: err.Error(),
		})
		return
	}

	fields, ok := resolveEntryFields(c, req)
	if !ok {
		return
	}
	actor := auth.CurrentUser(c)

	scope := schedule.ScopeSingle
	if req.Scope == string(schedule.ScopeSeries) {
		scope = schedule.ScopeSeries
	}

	result, err := schedule.EditEntry(storage.DB, uint(entryID), schedule.EditRequest{
		Fields:     fields,
		Recurring:  req.IsRecurring,
		Recurrence: schedule.Recurrence{IntervalDays: req.Interval, Occurrences: req.Occurrences},
		Scope:      scope,
		ActorID:    actor.ID,
	})
	if err != nil {
		respondScheduleError(c, err)
		return
	}

	audit.Record(&actor.ID, "schedule.edit", fields.Date.Format("2006-01-02"), map[string]interface{}{
		"outcome": string(result.Outcome),
		"scope":   string(scope),
	})
	notifyScheduleChanged()

	c.JSON(http.StatusOK, ScheduleMutationResponse{
		Message: editOutcomeMessages[result.Outcome],
		Outcome: string(result.Outcome),
		Count:   result.SeriesSize,
	})
}

// @Summary		Delete a schedule entry
// @Description	Removes one occurrence, or the whole series when scope=series
// @Tags			schedule
// @Produce		json
// @Security		BearerAuth
// @Param			id		path		int							true	"Entry ID"
// @Param			scope	query		string						false	"single (default) or series"
// @Success		200		{object}	ScheduleMutationResponse	"Deleted"
// @Failure		403		{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404		{object}	response.ErrorResponse		"NOT_FOUND"
// @Failure		500		{object}	response.ErrorResponse		"DB_ERROR"
// @Router			/api/schedule/entries/{id} [delete]
func DeleteScheduleEntry(c *gin.Context) {
	entryID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "Schedule entry not found",
		})
		return
	}

	scope := schedule.ScopeSingle
	if c.Query("scope") == string(schedule.ScopeSeries) {
		scope = schedule.ScopeSeries
	}

	result, err := schedule.DeleteEntry(storage.DB, uint(entryID), scope)
	if err != nil {
		respondScheduleError(c, err)
		return
	}

	actor := auth.CurrentUser(c)
	audit.Record(&actor.ID, "schedule.delete", c.Param("id"), map[string]interface{}{
		"deleted":      result.Deleted,
		"whole_series": result.WholeSeries,
	})
	notifyScheduleChanged()

	message := "Schedule entry deleted."
	if result.WholeSeries {
		message = fmt.Sprintf("Deleted %d entries from the recurring series.", result.Deleted)
	}

	c.JSON(http.StatusOK, ScheduleMutationResponse{
		Message: message,
		Count:   result.Deleted,
	})
}

// @Summary		Save a private note
// @Description	Stores a note on an occurrence, visible only to the teacher who owns the entry
// @Tags			schedule
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			id		path		int							true	"Entry ID"
// @Param			note	body		PrivateNoteRequest			true	"Note text, empty clears it"
// @Success		200		{object}	response.SuccessResponse	"Note saved"
// @Failure		403		{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404		{object}	response.ErrorResponse		"NOT_FOUND"
// @Router			/api/schedule/entries/{id}/note [post]
func SavePrivateNote(c *gin.Context) {
	var req PrivateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid note data",
			Details: err.Error(),
		})
		return
	}

	var entry models.ScheduleEntry
	if err := storage.DB.First(&entry, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "Schedule entry not found",
		})
		return
	}

	viewer := auth.CurrentUser(c)
	if entry.TeacherID != viewer.ID {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    response.CodeForbidden,
			Message: "Only the assigned teacher can edit this note",
		})
		return
	}

	if err := storage.DB.Model(&entry).Update("private_note", req.Note).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to save the note",
		})
		return
	}

	message := "Note saved."
	if req.Note == "" {
		message = "Note cleared."
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: message})
}

// @Summary		Upcoming lessons
// @Description	Returns the viewer's next five occurrences that have not finished yet
// @Tags			schedule
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	UpcomingResponse		"Upcoming occurrences"
// @Failure		500	{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/schedule/upcoming [get]
func UpcomingEntries(c *gin.Context) {
	now := time.Now()
	tasks.MaybeSweep(storage.DB, now)
	viewer := auth.CurrentUser(c)

	views, err := schedule.UpcomingForTeacher(storage.DB, viewer.ID, 5, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to load upcoming lessons",
		})
		return
	}

	c.JSON(http.StatusOK, UpcomingResponse{Entries: views})
}

// exportFilename follows the schedule_YYYY-MM convention of the web UI.
func exportFilename(c *gin.Context, ext string) string {
	now := time.Now()
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil || year < 2000 || year > 2100 {
		year = now.Year()
	}
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil || month < 1 || month > 12 {
		month = int(now.Month())
	}
	return fmt.Sprintf("schedule_%04d-%02d.%s", year, month, ext)
}

func exportRows(c *gin.Context) ([]schedule.ExportRow, bool) {
	now := time.Now()
	year, _ := strconv.Atoi(c.Query("year"))
	month, _ := strconv.Atoi(c.Query("month"))
	viewer := auth.CurrentUser(c)

	rows, err := schedule.BuildExportRows(storage.DB, schedule.ExportOptions{
		Year:         year,
		Month:        month,
		Filters:      parseFilters(c),
		ShowWeekends: c.Query("show_weekends") == "1" || c.Query("show_weekends") == "true",
		ViewerID:     viewer.ID,
		Now:          now,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to build the export",
		})
		return nil, false
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "No schedule entries available to export for the selected month",
		})
		return nil, false
	}
	return rows, true
}

// @Summary		Export the month as CSV
// @Description	Streams the selected month's entries as a CSV attachment
// @Tags			schedule
// @Produce		text/csv
// @Security		BearerAuth
// @Param			year	query		int	false	"Year"
// @Param			month	query		int	false	"Month (1-12)"
// @Success		200		{string}	string					"CSV file"
// @Failure		404		{object}	response.ErrorResponse	"NOT_FOUND"
// @Failure		500		{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/schedule/export [get]
func ExportScheduleCSV(c *gin.Context) {
	rows, ok := exportRows(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := schedule.WriteCSV(&buf, rows); err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "EXPORT_ERROR",
			Message: "Failed to write the CSV file",
		})
		return
	}

	viewer := auth.CurrentUser(c)
	audit.Record(&viewer.ID, "schedule.export", exportFilename(c, "csv"), nil)

	c.Header("Content-Disposition", `attachment; filename="`+exportFilename(c, "csv")+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// @Summary		Export the month as XLSX
// @Description	Streams the selected month's entries as an Excel attachment
// @Tags			schedule
// @Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security		BearerAuth
// @Param			year	query		int	false	"Year"
// @Param			month	query		int	false	"Month (1-12)"
// @Success		200		{string}	string					"XLSX file"
// @Failure		404		{object}	response.ErrorResponse	"NOT_FOUND"
// @Failure		500		{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/schedule/export/xlsx [get]
func ExportScheduleXLSX(c *gin.Context) {
	rows, ok := exportRows(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := schedule.WriteXLSX(&buf, rows); err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "EXPORT_ERROR",
			Message: "Failed to write the XLSX file",
		})
		return
	}

	viewer := auth.CurrentUser(c)
	audit.Record(&viewer.ID, "schedule.export", exportFilename(c, "xlsx"), nil)

	c.Header("Content-Disposition", `attachment; filename="`+exportFilename(c, "xlsx")+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// respondScheduleError maps engine errors onto HTTP statuses.
func respondScheduleError(c *gin.Context, err error) {
	switch {
	case schedule.IsValidation(err):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: err.Error(),
		})
	case errors.Is(err, schedule.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "Schedule entry not found",
		})
	case isForeignKeyViolation(err):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    response.CodeReferenceConflict,
			Message: "The entry references a record that no longer exists",
		})
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to save the schedule change",
		})
	}
}
