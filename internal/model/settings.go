package model

import (
	"encoding/json"
	"time"
)

const (
	SettingsDistractionBlocker = "distraction_blocker"
	SettingsNotifications      = "notifications"
	SettingsFocusTimer         = "focus_timer"
)

// SettingsDocument is a whole JSON blob stored per user and kind. It is
// always read and written in full.
type SettingsDocument struct {
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}
