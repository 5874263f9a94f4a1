package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/williamalexakis/stcats-ops/internal/audit"
	"github.com/williamalexakis/stcats-ops/internal/auth"
	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/response"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

type ConfigItemView struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	CreatedBy   string `json:"created_by"`
}

type ConfigListResponse struct {
	Classrooms []ConfigItemView `json:"classrooms"`
	Subjects   []ConfigItemView `json:"subjects"`
	Courses    []ConfigItemView `json:"courses"`
	Groups     []ConfigItemView `json:"groups"`
}

type CreateConfigItemRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// configSection wires one named-entity kind into the shared handlers.
// The four kinds are structurally identical, only the model differs.
type configSection struct {
	label  string
	list   func() ([]ConfigItemView, error)
	create func(name, display string, creatorID uint) error
	remove func(id string) (string, error)
}

func itemView(id uint, name, display string, createdBy models.User) ConfigItemView {
	return ConfigItemView{ID: id, Name: name, DisplayName: display, CreatedBy: createdBy.Username}
}

var configSections = map[string]configSection{
	"classrooms": {
		label: "Classroom",
		list: func() ([]ConfigItemView, error) {
			var rows []models.Classroom
			if err := storage.DB.Preload("CreatedBy").Order("name").Find(&rows).Error; err != nil {
				return nil, err
			}
			views := make([]ConfigItemView, 0, len(rows))
			for _, r := range rows {
				views = append(views, itemView(r.ID, r.Name, r.DisplayName, r.CreatedBy))
			}
			return views, nil
		},
		create: func(name, display string, creatorID uint) error {
			return storage.DB.Create(&models.Classroom{Name: name, DisplayName: display, CreatedByID: creatorID}).Error
		},
		remove: func(id string) (string, error) {
			var row models.Classroom
			if err := storage.DB.First(&row, id).Error; err != nil {
				return "", err
			}
			return row.DisplayName, storage.DB.Unscoped().Delete(&row).Error
		},
	},
	"subjects": {
		label: "Subject",
		list: func() ([]ConfigItemView, error) {
			var rows []models.Subject
			if err := storage.DB.Preload("CreatedBy").Order("name").Find(&rows).Error; err != nil {
				return nil, err
			}
			views := make([]ConfigItemView, 0, len(rows))
			for _, r := range rows {
				views = append(views, itemView(r.ID, r.Name, r.DisplayName, r.CreatedBy))
			}
			return views, nil
		},
		create: func(name, display string, creatorID uint) error {
			return storage.DB.Create(&models.Subject{Name: name, DisplayName: display, CreatedByID: creatorID}).Error
		},
		remove: func(id string) (string, error) {
			var row models.Subject
			if err := storage.DB.First(&row, id).Error; err != nil {
				return "", err
			}
			return row.DisplayName, storage.DB.Unscoped().Delete(&row).Error
		},
	},
	"courses": {
		label: "Course",
		list: func() ([]ConfigItemView, error) {
			var rows []models.Course
			if err := storage.DB.Preload("CreatedBy").Order("name").Find(&rows).Error; err != nil {
				return nil, err
			}
			views := make([]ConfigItemView, 0, len(rows))
			for _, r := range rows {
				views = append(views, itemView(r.ID, r.Name, r.DisplayName, r.CreatedBy))
			}
			return views, nil
		},
		create: func(name, display string, creatorID uint) error {
			return storage.DB.Create(&models.Course{Name: name, DisplayName: display, CreatedByID: creatorID}).Error
		},
		remove: func(id string) (string, error) {
			var row models.Course
			if err := storage.DB.First(&row, id).Error; err != nil {
				return "", err
			}
			return row.DisplayName, storage.DB.Unscoped().Delete(&row).Error
		},
	},
	"groups": {
		label: "Group",
		list: func() ([]ConfigItemView, error) {
			var rows []models.ClassGroup
			if err := storage.DB.Preload("CreatedBy").Order("name").Find(&rows).Error; err != nil {
				return nil, err
			}
			views := make([]ConfigItemView, 0, len(rows))
			for _, r := range rows {
				views = append(views, itemView(r.ID, r.Name, r.DisplayName, r.CreatedBy))
			}
			return views, nil
		},
		create: func(name, display string, creatorID uint) error {
			return storage.DB.Create(&models.ClassGroup{Name: name, DisplayName: display, CreatedByID: creatorID}).Error
		},
		remove: func(id string) (string, error) {
			var row models.ClassGroup
			if err := storage.DB.First(&row, id).Error; err != nil {
				return "", err
			}
			return row.DisplayName, storage.DB.Unscoped().Delete(&row).Error
		},
	},
}

// @Summary		List schedule configuration
// @Description	Returns the classrooms, subjects, courses and groups entries are built from
// @Tags			config
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	ConfigListResponse		"Configuration lists"
// @Failure		403	{object}	response.ErrorResponse	"FORBIDDEN"
// @Failure		500	{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/config [get]
func GetConfig(c *gin.Context) {
	resp := ConfigListResponse{}
	targets := map[string]*[]ConfigItemView{
		"classrooms": &resp.Classrooms,
		"subjects":   &resp.Subjects,
		"courses":    &resp.Courses,
		"groups":     &resp.Groups,
	}
	for kind, dst := range targets {
		views, err := configSections[kind].list()
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{
				Code:    response.CodeDB,
				Message: "Failed to load configuration",
			})
			return
		}
		*dst = views
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary		Add a configuration item
// @Description	Creates a classroom, subject, course or group
// @Tags			config
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			kind	path		string						true	"classrooms, subjects, courses or groups"
// @Param			item	body		CreateConfigItemRequest		true	"Item name"
// @Success		201		{object}	response.SuccessResponse	"Item created"
// @Failure		400		{object}	response.ErrorResponse		"VALIDATION_ERROR or DUPLICATE_NAME"
// @Failure		403		{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404		{object}	response.ErrorResponse		"NOT_FOUND"
// @Router			/api/config/{kind} [post]
func CreateConfigItem(c *gin.Context) {
	section, ok := configSections[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "Unknown configuration kind",
		})
		return
	}

	var req CreateConfigItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Invalid item data",
			Details: err.Error(),
		})
		return
	}

	display := strings.TrimSpace(req.Name)
	name := strings.ToLower(display)
	if name == "" {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    response.CodeValidation,
			Message: "Name cannot be blank",
		})
		return
	}

	user := auth.CurrentUser(c)
	if err := section.create(name, display, user.ID); err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "DUPLICATE_NAME",
				Message: section.label + " \"" + display + "\" already exists",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to save " + strings.ToLower(section.label),
		})
		return
	}

	audit.Record(&user.ID, "config.create", section.label+": "+display, nil)

	c.JSON(http.StatusCreated, response.SuccessResponse{
		Message: section.label + " \"" + display + "\" added",
	})
}

// @Summary		Delete a configuration item
// @Description	Removes a classroom, subject, course or group that no schedule entry references
// @Tags			config
// @Produce		json
// @Security		BearerAuth
// @Param			kind	path		string						true	"classrooms, subjects, courses or groups"
// @Param			id		path		int							true	"Item ID"
// @Success		200		{object}	response.SuccessResponse	"Item deleted"
// @Failure		403		{object}	response.ErrorResponse		"FORBIDDEN"
// @Failure		404		{object}	response.ErrorResponse		"NOT_FOUND"
// @Failure		409		{object}	response.ErrorResponse		"REFERENCE_CONFLICT"
// @Router			/api/config/{kind}/{id} [delete]
func DeleteConfigItem(c *gin.Context) {
	section, ok := configSections[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: "Unknown configuration kind",
		})
		return
	}

	display, err := section.remove(c.Param("id"))
	switch {
	case err == nil:
	case isForeignKeyViolation(err):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    response.CodeReferenceConflict,
			Message: section.label + " \"" + display + "\" is used by existing schedule entries",
		})
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    response.CodeNotFound,
			Message: section.label + " not found",
		})
		return
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    response.CodeDB,
			Message: "Failed to delete " + strings.ToLower(section.label),
		})
		return
	}

	user := auth.CurrentUser(c)
	audit.Record(&user.ID, "config.delete", section.label+": "+display, nil)

	c.JSON(http.StatusOK, response.SuccessResponse{
		Message: section.label + " \"" + display + "\" deleted",
	})
}
