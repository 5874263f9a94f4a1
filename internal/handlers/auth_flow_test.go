package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/williamalexakis/stcats-ops/internal/models"
)

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	r := gin.New()
	r.POST("/auth/register", Register)
	return r
}

func registerBody(username, email, code string) map[string]string {
	return map[string]string{
		"username":    username,
		"email":       email,
		"password":    "correcthorse",
		"invite_code": code,
	}
}

func TestRegisterConsumesInvite(t *testing.T) {
	env := setupEnv(t)
	r := authRouter()

	invite := models.InviteCode{Code: "welcome-1", CreatorID: env.admin.ID, RemainingUses: 2}
	assert.NoError(t, env.db.Create(&invite).Error)

	w := doJSON(t, r, http.MethodPost, "/auth/register", registerBody("jones", "jones@school.test", "welcome-1"))
	assert.Equal(t, http.StatusCreated, w.Code)

	assert.NoError(t, env.db.First(&invite, invite.ID).Error)
	assert.Equal(t, 1, invite.RemainingUses)

	var created models.User
	assert.NoError(t, env.db.Where("username = ?", "jones").First(&created).Error)
	assert.Equal(t, models.RoleTeacher, created.Role)

	// Spending the last use removes the code outright.
	w = doJSON(t, r, http.MethodPost, "/auth/register", registerBody("taylor", "taylor@school.test", "welcome-1"))
	assert.Equal(t, http.StatusCreated, w.Code)

	var count int64
	env.db.Model(&models.InviteCode{}).Where("code = ?", "welcome-1").Count(&count)
	assert.Equal(t, int64(0), count)

	w = doJSON(t, r, http.MethodPost, "/auth/register", registerBody("patel", "patel@school.test", "welcome-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.db.Model(&models.User{}).Count(&count)
	// The two seeded accounts plus the two registrations.
	assert.Equal(t, int64(4), count)
}
