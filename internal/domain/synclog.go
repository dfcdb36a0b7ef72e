package domain

import "time"

const (
	LogSuccess = "success"
	LogError   = "error"
	LogInfo    = "info"
)

type SyncLog struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncReport summarizes one sync cycle.
type SyncReport struct {
	RunID            string        `json:"run_id"`
	PropertiesSynced int           `json:"properties_synced"`
	PropertiesFailed int           `json:"properties_failed"`
	CalendarsSynced  int           `json:"calendars_synced"`
	CalendarsFailed  int           `json:"calendars_failed"`
	Duration         time.Duration `json:"duration"`
}
