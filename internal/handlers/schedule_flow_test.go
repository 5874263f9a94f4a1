package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/auth"
	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/schedule"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

// testAuth injects the given account the way AuthMiddleware would.
func testAuth(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", user.ID)
		c.Set("user", user)
		c.Next()
	}
}

type testEnv struct {
	db      *gorm.DB
	admin   *models.User
	teacher *models.User
	refs    map[string]uint
}

func setupEnv(t *testing.T) *testEnv {
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

	admin := &models.User{Username: "head", Email: "head@school.test", PasswordHash: "x", Role: models.RoleAdmin}
	teacher := &models.User{Username: "smith", Email: "smith@school.test", PasswordHash: "x", Role: models.RoleTeacher}
	assert.NoError(t, db.Create(admin).Error)
	assert.NoError(t, db.Create(teacher).Error)

	classroom := models.Classroom{Name: "cs1", DisplayName: "CS1", CreatedByID: admin.ID}
	subject := models.Subject{Name: "computing", DisplayName: "Computing", CreatedByID: admin.ID}
	course := models.Course{Name: "a-level", DisplayName: "A-Level", CreatedByID: admin.ID}
	group := models.ClassGroup{Name: "year 12", DisplayName: "Year 12", CreatedByID: admin.ID}
	assert.NoError(t, db.Create(&classroom).Error)
	assert.NoError(t, db.Create(&subject).Error)
	assert.NoError(t, db.Create(&course).Error)
	assert.NoError(t, db.Create(&group).Error)

	return &testEnv{
		db:      db,
		admin:   admin,
		teacher: teacher,
		refs: map[string]uint{
			"teacher":   teacher.ID,
			"classroom": classroom.ID,
			"subject":   subject.ID,
			"course":    course.ID,
			"group":     group.ID,
		},
	}
}

func (e *testEnv) router(user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	r := gin.New()
	api := r.Group("/api", testAuth(user))
	{
		api.GET("/schedule", GetSchedule)
		api.GET("/schedule/updates", GetScheduleUpdates)
		api.GET("/schedule/export", ExportScheduleCSV)
		api.POST("/schedule/entries/:id/note", SavePrivateNote)

		admin := api.Group("", auth.RequireAdmin())
		{
			admin.POST("/schedule/entries", CreateScheduleEntry)
			admin.PUT("/schedule/entries/:id", UpdateScheduleEntry)
			admin.DELETE("/schedule/entries/:id", DeleteScheduleEntry)
			admin.POST("/config/:kind", CreateConfigItem)
		}
	}
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) entryBody(date string) map[string]interface{} {
	return map[string]interface{}{
		"teacher_id":   e.refs["teacher"],
		"classroom_id": e.refs["classroom"],
		"subject_id":   e.refs["subject"],
		"course_id":    e.refs["course"],
		"group_id":     e.refs["group"],
		"date":         date,
		"start_time":   "09:00",
		"end_time":     "10:30",
	}
}

func TestCreateSingleEntryFlow(t *testing.T) {
	env := setupEnv(t)
	r := env.router(env.admin)

	w := doJSON(t, r, http.MethodPost, "/api/schedule/entries", env.entryBody("2030-05-06"))
	assert.Equal(t, http.StatusCreated, w.Code)

	var count int64
	env.db.Model(&models.ScheduleEntry{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateRecurringEntryFlow(t *testing.T) {
	env := setupEnv(t)
	r := env.router(env.admin)

	body := env.entryBody("2030-05-06")
	body["is_recurring"] = true
	body["recurrence_interval"] = 7
	body["recurrence_total"] = 3

	w := doJSON(t, r, http.MethodPost, "/api/schedule/entries", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp ScheduleMutationResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)

	var count int64
	env.db.Model(&models.ScheduleEntry{}).Count(&count)
	assert.Equal(t, int64(3), count)
}

func TestCreateEntryValidation(t *testing.T) {
	env := setupEnv(t)
	r := env.router(env.admin)

	// End before start.
	body := env.entryBody("2030-05-06")
	body["end_time"] = "08:00"
	w := doJSON(t, r, http.MethodPost, "/api/schedule/entries", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown teacher.
	body = env.entryBody("2030-05-06")
	body["teacher_id"] = 9999
	w = doJSON(t, r, http.MethodPost, "/api/schedule/entries", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	env.db.Model(&models.ScheduleEntry{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestEntryMutationsRequireAdmin(t *testing.T) {
	env := setupEnv(t)
	r := env.router(env.teacher)

	w := doJSON(t, r, http.MethodPost, "/api/schedule/entries", env.entryBody("2030-05-06"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCalendarWindowAndUpdates(t *testing.T) {
	env := setupEnv(t)
	r := env.router(env.admin)

	body := env.entryBody("2030-05-06")
	body["is_recurring"] = true
	body["recurrence_interval"] = 7
	body["recurrence_total"] = 2
	w := doJSON(t, r, http.MethodPost, "/api/schedule/entries", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/schedule?year=2030&month=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var window schedule.CalendarWindow
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &window))
	assert.Equal(t, 2030, window.Year)
	assert.Equal(t, 5, window.Month)
	assert.Equal(t, 2, window.VisibleEntryCount)
	assert.NotEqual(t, "0", window.StateToken)

	// Nothing changed since the window was built.
	w = doJSON(t, r, http.MethodGet, "/api/schedule/updates?year=2030&month=5&token="+window.StateToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var updates ScheduleUpdatesResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &updates))
	assert.False(t, updates.Changed)
	assert.Equal(t, window.StateToken, updates.Token)

	// A stale token gets the fresh window back.
	w = doJSON(t, r, http.MethodGet, "/api/schedule/updates?year=2030&month=5&token=stale", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &updates))
	assert.True(t, updates.Changed)
	assert.NotNil(t, updates.Window)
}

func TestPrivateNoteOwnership(t *testing.T) {
	env := setupEnv(t)
	adminRouter := env.router(env.admin)

	w := doJSON(t, adminRouter, http.MethodPost, "/api/schedule/entries", env.entryBody("2030-05-06"))
	assert.Equal(t, http.StatusCreated, w.Code)

	var entry models.ScheduleEntry
	assert.NoError(t, env.db.First(&entry).Error)
	notePath := fmt.Sprintf("/api/schedule/entries/%d/note", entry.ID)

	// The admin is not the assigned teacher.
	w = doJSON(t, adminRouter, http.MethodPost, notePath, map[string]string{"note": "prep slides"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	teacherRouter := env.router(env.teacher)
	w = doJSON(t, teacherRouter, http.MethodPost, notePath, map[string]string{"note": "prep slides"})
	assert.Equal(t, http.StatusOK, w.Code)

	assert.NoError(t, env.db.First(&entry, entry.ID).Error)
	assert.Equal(t, "prep slides", entry.PrivateNote)
}

func TestDeleteSeriesFlow(t *testing.T) {
	env := setupEnv(t)
	r := env.router(env.admin)

	body := env.entryBody("2030-05-06")
	body["is_recurring"] = true
	body["recurrence_interval"] = 7
	body["recurrence_total"] = 3
	w := doJSON(t, r, http.MethodPost, "/api/schedule/entries", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	var entry models.ScheduleEntry
	assert.NoError(t, env.db.Order("date").First(&entry).Error)

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/schedule/entries/%d?scope=series", entry.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ScheduleMutationResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)

	var count int64
	env.db.Model(&models.ScheduleEntry{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestConfigDuplicateName(t *testing.T) {
	env := setupEnv(t)
	r := env.router(env.admin)

	w := doJSON(t, r, http.MethodPost, "/api/config/classrooms", map[string]string{"name": "CS2"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/config/classrooms", map[string]string{"name": "cs2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/config/cupboards", map[string]string{"name": "C1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportCSVFlow(t *testing.T) {
	env := setupEnv(t)
	r := env.router(env.admin)

	w := doJSON(t, r, http.MethodGet, "/api/schedule/export?year=2030&month=5", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	created := doJSON(t, r, http.MethodPost, "/api/schedule/entries", env.entryBody("2030-05-06"))
	assert.Equal(t, http.StatusCreated, created.Code)

	w = doJSON(t, r, http.MethodGet, "/api/schedule/export?year=2030&month=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "schedule_2030-05.csv")
	assert.Contains(t, w.Body.String(), "Week,Date,Day")
	assert.Contains(t, w.Body.String(), "2030-05-06")
}
