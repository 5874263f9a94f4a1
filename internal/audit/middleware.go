// Package audit persists an append-only log of mutating requests.
package audit

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

// Middleware records every POST/PUT/DELETE after the handler ran, with the
// actor when one is authenticated. Best-effort: a failed write is logged and
// never fails the request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case "POST", "PUT", "DELETE":
		default:
			return
		}

		var actorID *uint
		if id := c.GetUint("userID"); id != 0 {
			actorID = &id
		}

		extra, _ := json.Marshal(map[string]interface{}{
			"status": c.Writer.Status(),
			"method": c.Request.Method,
		})

		entry := models.AuditLog{
			ActorID:   actorID,
			Action:    "http." + strings.ToLower(c.Request.Method),
			Target:    truncate(c.Request.URL.Path, 200),
			IP:        c.ClientIP(),
			UserAgent: truncate(c.Request.UserAgent(), 400),
			Extra:     string(extra),
		}

		if err := storage.DB.Create(&entry).Error; err != nil {
			log.Println("audit: failed to record action:", err)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// Record stores a named action outside the request middleware, e.g. for
// domain events that deserve their own audit entries.
func Record(actorID *uint, action, target string, extra map[string]interface{}) {
	payload, _ := json.Marshal(extra)
	entry := models.AuditLog{
		ActorID: actorID,
		Action:  action,
		Target:  truncate(target, 200),
		Extra:   string(payload),
	}
	if err := storage.DB.Create(&entry).Error; err != nil {
		log.Println("audit: failed to record action:", err)
	}
}
