package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/cache"
)

const (
	schemaVersion = 1
	appVersion    = "go-billing-1"

	dailyCounterKey = "analytics:events:%s:%s" // event name, YYYY-MM-DD
	counterTTL      = 90 * 24 * time.Hour
)

// Event is one analytics emission. UserID zero means anonymous.
type Event struct {
	EventName   string
	SourceRoute string
	UserState   string
	UserID      uint
	Extra       map[string]interface{}
}

// Emit writes the event as a structured log line and bumps a daily counter in
// redis. Both sinks are best-effort: Emit never returns an error and never
// panics, because analytics must not be able to fail a billing request.
func Emit(e Event) {
	if !IsKnownEvent(e.EventName) {
		log.Warnf("[analytics] unknown event name %q emitted", e.EventName)
	}

	payload := buildPayload(e, time.Now().UTC(), uuid.New().String())
	line, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("[analytics] marshal failed for %s: %v", e.EventName, err)
		return
	}
	log.Infof("[event] %s", line)

	key := fmt.Sprintf(dailyCounterKey, e.EventName, time.Now().UTC().Format("2006-01-02"))
	if _, err := cache.Incr(key); err != nil {
		log.Warnf("[analytics] counter bump failed for %s: %v", key, err)
	} else {
		// Best effort; a failed expire just leaves the counter around longer.
		_ = cache.GetClient().Expire(context.Background(), key, counterTTL).Err()
	}
}

func buildPayload(e Event, ts time.Time, sessionID string) map[string]interface{} {
	payload := map[string]interface{}{
		"event_name":     e.EventName,
		"event_ts_utc":   ts.Format(time.RFC3339),
		"source_route":   e.SourceRoute,
		"session_id":     sessionID,
		"user_state":     e.UserState,
		"app_version":    appVersion,
		"schema_version": schemaVersion,
	}
	if e.UserID != 0 {
		payload["user_id"] = e.UserID
	} else {
		payload["user_id"] = nil
	}
	for k, v := range e.Extra {
		payload[k] = v
	}
	return payload
}
