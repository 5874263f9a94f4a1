package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/williamalexakis/stcats-ops/internal/audit"
	"github.com/williamalexakis/stcats-ops/internal/auth"
	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/response"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=150"`
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name" binding:"omitempty,max=150"`
	Password    string `json:"password" binding:"required,min=8"`
	InviteCode  string `json:"invite_code" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// @Summary		Register a new account
// @Description	Creates a teacher account from a valid invitation code
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			user	body		RegisterRequest				true	"Registration data"
// @Success		201		{object}	response.SuccessResponse	"Account created"
// @Failure		400		{object}	response.ErrorResponse		"VALIDATION_ERROR, USERNAME_EXISTS, EMAIL_EXISTS or INVALID_INVITE"
// @Failure		500		{object}	response.ErrorResponse		"PASSWORD_HASH_ERROR or DB_ERROR"
// @Router			/auth/register [post]
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid registration data",
			Details: err.Error(),
		})
		return
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	if err := storage.DB.Where("username = ?", username).First(&existing).Error; err == nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "USERNAME_EXISTS",
			Message: "That username is already taken",
		})
		return
	}
	if err := storage.DB.Where("email = ?", email).First(&existing).Error; err == nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "EMAIL_EXISTS",
			Message: "An account with that email already exists",
		})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "PASSWORD_HASH_ERROR",
			Message: "Failed to hash password",
		})
		return
	}

	user := models.User{
		Username:     username,
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hashed),
		Role:         models.RoleTeacher,
	}

	// The invite is consumed and the account created in one transaction
	// so a code cannot be spent without producing a user. The row lock
	// serializes concurrent registrations against the same code.
	err = storage.DB.Transaction(func(tx *gorm.DB) error {
		var invite models.InviteCode
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", strings.TrimSpace(req.InviteCode)).
			First(&invite).Error; err != nil {
			return errInvalidInvite
		}
		if !invite.IsValid(time.Now()) {
			return errInvalidInvite
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		invite.RemainingUses--
		if invite.RemainingUses <= 0 {
			return tx.Unscoped().Delete(&invite).Error
		}
		return tx.Model(&invite).Update("remaining_uses", invite.RemainingUses).Error
	})
	if err == errInvalidInvite {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_INVITE",
			Message: "The invitation code is invalid or has expired",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to create user",
		})
		return
	}

	audit.Record(&user.ID, "auth.register", user.Username, map[string]interface{}{"email": user.Email})

	c.JSON(http.StatusCreated, response.SuccessResponse{
		Message: "Account created, you can sign in now",
	})
}

var errInvalidInvite = errors.New("invalid invite code")

// @Summary		Sign in
// @Description	Authenticates by username or email and returns a token pair
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			user	body		LoginRequest			true	"Credentials"
// @Success		200		{object}	response.TokenResponse	"Token pair"
// @Failure		400		{object}	response.ErrorResponse	"VALIDATION_ERROR"
// @Failure		401		{object}	response.ErrorResponse	"INVALID_CREDENTIALS"
// @Failure		500		{object}	response.ErrorResponse	"TOKEN_GENERATION_ERROR"
// @Router			/auth/login [post]
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid login data",
			Details: err.Error(),
		})
		return
	}

	login := strings.TrimSpace(req.Username)

	var user models.User
	if err := storage.DB.Where("username = ? OR email = ?", login, strings.ToLower(login)).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "INVALID_CREDENTIALS",
			Message: "Incorrect username or password",
		})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "INVALID_CREDENTIALS",
			Message: "Incorrect username or password",
		})
		return
	}

	accessToken, err := auth.GenerateToken(user.ID, auth.AccessTokenTTL, auth.AccessSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "TOKEN_GENERATION_ERROR",
			Message: "Failed to generate access token",
		})
		return
	}

	refreshToken, err := auth.GenerateToken(user.ID, auth.RefreshTokenTTL, auth.RefreshSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "TOKEN_GENERATION_ERROR",
			Message: "Failed to generate refresh token",
		})
		return
	}

	audit.Record(&user.ID, "auth.login", user.Username, nil)

	c.JSON(http.StatusOK, response.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// @Summary		Refresh tokens
// @Description	Exchanges a valid refresh token for a new token pair
// @Tags			auth
// @Accept			json
// @Produce		json
// @Param			refresh_token	body		RefreshTokenRequest		true	"Refresh token"
// @Success		200				{object}	response.TokenResponse	"New token pair"
// @Failure		400				{object}	response.ErrorResponse	"VALIDATION_ERROR"
// @Failure		401				{object}	response.ErrorResponse	"INVALID_REFRESH_TOKEN or USER_NOT_FOUND"
// @Failure		500				{object}	response.ErrorResponse	"TOKEN_GENERATION_ERROR"
// @Router			/auth/refresh [post]
func RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid request data",
			Details: err.Error(),
		})
		return
	}

	userID, ok := auth.ParseUserID(req.RefreshToken, auth.RefreshSecret)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "INVALID_REFRESH_TOKEN",
			Message: "The refresh token is invalid or has expired",
		})
		return
	}

	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "USER_NOT_FOUND",
			Message: "User no longer exists",
		})
		return
	}

	accessToken, err := auth.GenerateToken(user.ID, auth.AccessTokenTTL, auth.AccessSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "TOKEN_GENERATION_ERROR",
			Message: "Failed to generate access token",
		})
		return
	}

	refreshToken, err := auth.GenerateToken(user.ID, auth.RefreshTokenTTL, auth.RefreshSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "TOKEN_GENERATION_ERROR",
			Message: "Failed to generate refresh token",
		})
		return
	}

	c.JSON(http.StatusOK, response.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}
