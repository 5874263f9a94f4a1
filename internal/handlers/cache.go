package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/williamalexakis/stcats-ops/internal/storage"
	"github.com/williamalexakis/stcats-ops/internal/ws"
)

const (
	scheduleGenerationKey = "schedule:generation"
	calendarCacheTTL      = 30 * time.Second
)

var cacheCtx = context.Background()

// scheduleGeneration returns the current calendar generation counter.
// Every mutation bumps it, which invalidates all cached windows at once.
func scheduleGeneration() int64 {
	if storage.RedisClient == nil {
		return 0
	}
	gen, err := storage.RedisClient.Get(cacheCtx, scheduleGenerationKey).Int64()
	if err != nil {
		return 0
	}
	return gen
}

func calendarCacheKey(gen int64, viewerID uint, query string) string {
	return fmt.Sprintf("calendar:%d:%d:%s", gen, viewerID, query)
}

func cachedCalendar(key string) (string, bool) {
	if storage.RedisClient == nil {
		return "", false
	}
	payload, err := storage.RedisClient.Get(cacheCtx, key).Result()
	if err != nil {
		return "", false
	}
	return payload, true
}

func storeCalendar(key, payload string) {
	if storage.RedisClient == nil {
		return
	}
	storage.RedisClient.Set(cacheCtx, key, payload, calendarCacheTTL)
}

// notifyScheduleChanged invalidates cached calendar windows and tells
// connected clients to refresh.
func notifyScheduleChanged() {
	if storage.RedisClient != nil {
		storage.RedisClient.Incr(cacheCtx, scheduleGenerationKey)
	}
	ws.HubInstance.BroadcastScheduleEvent(ws.ScheduleEvent{EventType: "schedule_changed"})
}
