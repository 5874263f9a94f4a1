package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/williamalexakis/stcats-ops/internal/audit"
	"github.com/williamalexakis/stcats-ops/internal/auth"
	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/response"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

type MemberView struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	IsSuperuser bool      `json:"is_superuser"`
	JoinedAt    time.Time `json:"joined_at"`
}

type MemberListResponse struct {
	Admins   []MemberView `json:"admins"`
	Teachers []MemberView `json:"teachers"`
	Total    int          `json:"total"`
}

func memberView(user models.User) MemberView {
	return MemberView{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		IsSuperuser: user.IsSuperuser,
		JoinedAt:    user.CreatedAt,
	}
}

// @Summary		List members
// @Description	Returns all accounts grouped into admins and teachers
// @Tags			members
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	MemberListResponse		"Members"
// @Failure		403	{object}	response.ErrorResponse	"FORBIDDEN"
// @Failure		500	{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/members [get]
func ListMembers(c *gin.Context) {
	var users []models.User
	if err := storage.DB.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to load members",
		})
		return
	}

	admins := make([]MemberView, 0)
	teachers := make([]MemberView, 0)
	for _, user := range users {
		view := memberView(user)
		if user.IsAdmin() {
			admins = append(admins, view)
		} else {
			teachers = append(teachers, view)
		}
	}

	// Superusers lead the admin group, the rest is alphabetical.
	sort.SliceStable(admins, func(i, j int) bool {
		if admins[i].IsSuperuser != admins[j].IsSuperuser {
			return admins[i].IsSuperuser
		}
		return strings.ToLower(admins[i].Username) < strings.ToLower(admins[j].Username)
	})
	sort.SliceStable(teachers, func(i, j int) bool {
		return strings.ToLower(teachers[i].Username) < strings.ToLower(teachers[j].Username)
	})

	c.JSON(http.StatusOK, MemberListResponse{
		Admins:   admins,
		Teachers: teachers,
		Total:    len(users),
	})
}

func loadMember(c *gin.Context) (*models.User, bool) {
	var member models.User
	if err := storage.DB.First(&member, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "Member not found",
		})
		return nil, false
	}
	return &member, true
}

// @Summary		Promote a member
// @Description	Grants the admin role to a teacher
// @Tags			members
// @Produce		json
// @Security		BearerAuth
// @Param			id	path		int							true	"Member ID"
// @Success		200	{object}	response.SuccessResponse	"Member promoted"
// @Failure		400	{object}	response.ErrorResponse		"ALREADY_ADMIN"
// @Failure		403	{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404	{object}	response.ErrorResponse		"NOT_FOUND"
// @Router			/api/members/{id}/promote [post]
func PromoteMember(c *gin.Context) {
	member, ok := loadMember(c)
	if !ok {
		return
	}
	if member.IsAdmin() {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "ALREADY_ADMIN",
			Message: member.Username + " is already an admin",
		})
		return
	}

	if err := storage.DB.Model(member).Update("role", models.RoleAdmin).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to update member",
		})
		return
	}

	actor := auth.CurrentUser(c)
	audit.Record(&actor.ID, "member.promote", member.Username, nil)

	c.JSON(http.StatusOK, response.SuccessResponse{Message: member.Username + " is now an admin"})
}

// @Summary		Demote a member
// @Description	Revokes the admin role. Superusers and your own account cannot be demoted
// @Tags			members
// @Produce		json
// @Security		BearerAuth
// @Param			id	path		int							true	"Member ID"
// @Success		200	{object}	response.SuccessResponse	"Member demoted"
// @Failure		400	{object}	response.ErrorResponse		"NOT_ADMIN"
// @Failure		403	{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404	{object}	response.ErrorResponse		"NOT_FOUND"
// @Router			/api/members/{id}/demote [post]
func DemoteMember(c *gin.Context) {
	member, ok := loadMember(c)
	if !ok {
		return
	}
	actor := auth.CurrentUser(c)

	if member.IsSuperuser {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    response.CodeForbidden,
			Message: "Superuser accounts cannot be demoted",
		})
		return
	}
	if member.ID == actor.ID {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    response.CodeForbidden,
			Message: "You cannot demote your own account",
		})
		return
	}
	if !member.IsAdmin() {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "NOT_ADMIN",
			Message: member.Username + " is not an admin",
		})
		return
	}

	if err := storage.DB.Model(member).Update("role", models.RoleTeacher).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to update member",
		})
		return
	}

	audit.Record(&actor.ID, "member.demote", member.Username, nil)

	c.JSON(http.StatusOK, response.SuccessResponse{Message: member.Username + " is now a teacher"})
}

// @Summary		Remove a member
// @Description	Deletes an account. Their taught schedule entries are removed with them; accounts that created records other members depend on cannot be removed
// @Tags			members
// @Produce		json
// @Security		BearerAuth
// @Param			id	path		int							true	"Member ID"
// @Success		200	{object}	response.SuccessResponse	"Member removed"
// @Failure		403	{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404	{object}	response.ErrorResponse		"NOT_FOUND"
// @Failure		409	{object}	response.ErrorResponse		"REFERENCE_CONFLICT"
// @Router			/api/members/{id} [delete]
func RemoveMember(c *gin.Context) {
	member, ok := loadMember(c)
	if !ok {
		return
	}
	actor := auth.CurrentUser(c)

	if member.IsSuperuser {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    response.CodeForbidden,
			Message: "Superuser accounts cannot be removed",
		})
		return
	}
	if member.ID == actor.ID {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    response.CodeForbidden,
			Message: "You cannot remove your own account",
		})
		return
	}

	if err := storage.DB.Unscoped().Delete(member).Error; err != nil {
		if isForeignKeyViolation(err) {
			c.JSON(http.StatusConflict, response.ErrorResponse{
				Code:    response.CodeReferenceConflict,
				Message: member.Username + " is referenced by existing records and cannot be removed",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to remove member",
		})
		return
	}

	audit.Record(&actor.ID, "member.remove", member.Username, nil)
	notifyScheduleChanged()

	c.JSON(http.StatusOK, response.SuccessResponse{Message: member.Username + " has been removed"})
}
