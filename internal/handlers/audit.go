package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/response"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

const auditPageSize = 10

type AuditLogView struct {
	ID        uint            `json:"id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Target    string          `json:"target"`
	IP        string          `json:"ip"`
	UserAgent string          `json:"user_agent"`
	Extra     json.RawMessage `json:"extra"`
	CreatedAt time.Time       `json:"created_at"`
}

type AuditLogListResponse struct {
	Logs    []AuditLogView `json:"logs"`
	Total   int64          `json:"total"`
	Page    int            `json:"page"`
	Pages   int            `json:"pages"`
	Actors  []string       `json:"actors"`
	Actions []string       `json:"actions"`
}

// @Summary		Browse the audit log
// @Description	Returns audit entries newest first, filterable by actor, action and day
// @Tags			audit
// @Produce		json
// @Security		BearerAuth
// @Param			actor	query		string					false	"Actor username"
// @Param			action	query		string					false	"Action name"
// @Param			date	query		string					false	"Day (YYYY-MM-DD)"
// @Param			page	query		int						false	"Page number, 10 entries per page"
// @Success		200		{object}	AuditLogListResponse	"Audit entries"
// @Failure		403		{object}	response.ErrorResponse	"FORBIDDEN"
// @Failure		500		{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/admin/audit-logs [get]
func ListAuditLogs(c *gin.Context) {
	q := storage.DB.Model(&models.AuditLog{})

	if actor := c.Query("actor"); actor != "" {
		q = q.Joins("LEFT JOIN users ON users.id = audit_logs.actor_id").
			Where("users.username = ?", actor)
	}
	if action := c.Query("action"); action != "" {
		q = q.Where("audit_logs.action = ?", action)
	}
	if date := c.Query("date"); date != "" {
		if _, err := parseDate(date); err == nil {
			q = q.Where("audit_logs.created_at::date = ?", date)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to count audit entries",
		})
		return
	}

	pages := int((total + auditPageSize - 1) / auditPageSize)
	if pages < 1 {
		pages = 1
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	var logs []models.AuditLog
	err := q.Preload("Actor").
		Order("audit_logs.created_at DESC").
		Offset((page - 1) * auditPageSize).
		Limit(auditPageSize).
		Find(&logs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to load audit entries",
		})
		return
	}

	views := make([]AuditLogView, 0, len(logs))
	for _, entry := range logs {
		actor := "system"
		if entry.Actor != nil {
			actor = entry.Actor.Username
		}
		extra := json.RawMessage(entry.Extra)
		if len(extra) == 0 {
			extra = json.RawMessage("{}")
		}
		views = append(views, AuditLogView{
			ID:        entry.ID,
			Actor:     actor,
			Action:    entry.Action,
			Target:    entry.Target,
			IP:        entry.IP,
			UserAgent: entry.UserAgent,
			Extra:     extra,
			CreatedAt: entry.CreatedAt,
		})
	}

	// Distinct filter values power the dropdowns in the log browser.
	var actors []string
	storage.DB.Model(&models.AuditLog{}).
		Joins("JOIN users ON users.id = audit_logs.actor_id").
		Distinct("users.username").
		Order("users.username").
		Pluck("users.username", &actors)

	var actions []string
	storage.DB.Model(&models.AuditLog{}).
		Distinct("action").
		Order("action").
		Pluck("action", &actions)

	c.JSON(http.StatusOK, AuditLogListResponse{
		Logs:    views,
		Total:   total,
		Page:    page,
		Pages:   pages,
		Actors:  actors,
		Actions: actions,
	})
}
