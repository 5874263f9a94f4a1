package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/response"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

type DashboardResponse struct {
	Members        int64 `json:"members"`
	Admins         int64 `json:"admins"`
	Teachers       int64 `json:"teachers"`
	ScheduleCount  int64 `json:"schedule_entries"`
	ActiveInvites  int64 `json:"active_invites"`
	ClassroomCount int64 `json:"classrooms"`
	SubjectCount   int64 `json:"subjects"`
	CourseCount    int64 `json:"courses"`
	GroupCount     int64 `json:"groups"`
}

// @Summary		Admin dashboard counters
// @Description	Returns the record counts shown on the admin landing page
// @Tags			dashboard
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	DashboardResponse		"Counters"
// @Failure		403	{object}	response.ErrorResponse	"FORBIDDEN"
// @Failure		500	{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/admin/dashboard [get]
func Dashboard(c *gin.Context) {
	var resp DashboardResponse

	counts := []func() error{
		func() error {
			return storage.DB.Model(&models.User{}).Count(&resp.Members).Error
		},
		func() error {
			return storage.DB.Model(&models.User{}).
				Where("is_superuser OR role = ?", models.RoleAdmin).
				Count(&resp.Admins).Error
		},
		func() error {
			return storage.DB.Model(&models.ScheduleEntry{}).Count(&resp.ScheduleCount).Error
		},
		func() error {
			return storage.DB.Model(&models.InviteCode{}).
				Where("remaining_uses > 0 AND (expiration_date IS NULL OR expiration_date > NOW())").
				Count(&resp.ActiveInvites).Error
		},
		func() error {
			return storage.DB.Model(&models.Classroom{}).Count(&resp.ClassroomCount).Error
		},
		func() error {
			return storage.DB.Model(&models.Subject{}).Count(&resp.SubjectCount).Error
		},
		func() error {
			return storage.DB.Model(&models.Course{}).Count(&resp.CourseCount).Error
		},
		func() error {
			return storage.DB.Model(&models.ClassGroup{}).Count(&resp.GroupCount).Error
		},
	}
	for _, count := range counts {
		if err := count(); err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{
				Code:    response.CodeDB,
				Message: "Failed to load dashboard counters",
			})
			return
		}
	}
	resp.Teachers = resp.Members - resp.Admins

	c.JSON(http.StatusOK, resp)
}
