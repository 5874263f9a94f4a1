package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/williamalexakis/stcats-ops/internal/audit"
	"github.com/williamalexakis/stcats-ops/internal/auth"
	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/response"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

type CreateInviteRequest struct {
	Uses       int `json:"uses" binding:"required,min=1,max=100"`
	ExpiryDays int `json:"expiry_days" binding:"omitempty,min=1,max=365"`
}

type InviteView struct {
	ID             uint       `json:"id"`
	Code           string     `json:"code"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpirationDate *time.Time `json:"expiration_date"`
	RemainingUses  int        `json:"remaining_uses"`
	Valid          bool       `json:"valid"`
}

type InviteListResponse struct {
	Invites []InviteView `json:"invites"`
}

type CreateInviteResponse struct {
	Message string     `json:"message"`
	Invite  InviteView `json:"invite"`
}

func newInviteCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func inviteView(invite models.InviteCode, now time.Time) InviteView {
	createdBy := ""
	if invite.Creator.ID != 0 {
		createdBy = invite.Creator.Username
	}
	return InviteView{
		ID:             invite.ID,
		Code:           invite.Code,
		CreatedBy:      createdBy,
		CreatedAt:      invite.CreatedAt,
		ExpirationDate: invite.ExpirationDate,
		RemainingUses:  invite.RemainingUses,
		Valid:          invite.IsValid(now),
	}
}

// @Summary		List invitation codes
// @Description	Returns all invitation codes, newest first
// @Tags			invites
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	InviteListResponse		"Invitation codes"
// @Failure		403	{object}	response.ErrorResponse	"FORBIDDEN"
// @Failure		500	{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/admin/invites [get]
func ListInvites(c *gin.Context) {
	var invites []models.InviteCode
	if err := storage.DB.Preload("Creator").Order("created_at DESC").Find(&invites).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to load invitation codes",
		})
		return
	}

	now := time.Now()
	views := make([]InviteView, 0, len(invites))
	for _, invite := range invites {
		views = append(views, inviteView(invite, now))
	}

	c.JSON(http.StatusOK, InviteListResponse{Invites: views})
}

// @Summary		Create an invitation code
// @Description	Generates a new invitation code with a use count and optional expiry
// @Tags			invites
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			invite	body		CreateInviteRequest		true	"Invite settings"
// @Success		201		{object}	CreateInviteResponse	"Created invite"
// @Failure		400		{object}	response.ErrorResponse	"VALIDATION_ERROR"
// @Failure		403		{object}	response.ErrorResponse	"FORBIDDEN"
// @Failure		500		{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/admin/invites [post]
func CreateInvite(c *gin.Context) {
	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid invite settings",
			Details: err.Error(),
		})
		return
	}

	user := auth.CurrentUser(c)

	code, err := newInviteCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "CODE_GENERATION_ERROR",
			Message: "Failed to generate invitation code",
		})
		return
	}

	invite := models.InviteCode{
		Code:          code,
		CreatorID:     user.ID,
		RemainingUses: req.Uses,
	}
	if req.ExpiryDays > 0 {
		expires := time.Now().AddDate(0, 0, req.ExpiryDays)
		invite.ExpirationDate = &expires
	}

	if err := storage.DB.Create(&invite).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to save invitation code",
		})
		return
	}
	invite.Creator = *user

	audit.Record(&user.ID, "invite.create", invite.Code, map[string]interface{}{
		"uses":        req.Uses,
		"expiry_days": req.ExpiryDays,
	})

	c.JSON(http.StatusCreated, CreateInviteResponse{
		Message: "Invitation code created",
		Invite:  inviteView(invite, time.Now()),
	})
}

// @Summary		Delete an invitation code
// @Description	Revokes an invitation code so it can no longer be used
// @Tags			invites
// @Produce		json
// @Security		BearerAuth
// @Param			id	path		int							true	"Invite ID"
// @Success		200	{object}	response.SuccessResponse	"Invite deleted"
// @Failure		403	{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404	{object}	response.ErrorResponse		"NOT_FOUND"
// @Failure		500	{object}	response.ErrorResponse		"DB_ERROR"
// @Router			/api/admin/invites/{id} [delete]
func DeleteInvite(c *gin.Context) {
	var invite models.InviteCode
	if err := storage.DB.First(&invite, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "Invitation code not found",
		})
		return
	}

	if err := storage.DB.Unscoped().Delete(&invite).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to delete invitation code",
		})
		return
	}

	user := auth.CurrentUser(c)
	audit.Record(&user.ID, "invite.delete", invite.Code, nil)

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Invitation code deleted"})
}
