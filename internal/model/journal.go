package model

import "time"

type MoodEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Mood      int       `json:"mood"`
	Sleep     int       `json:"sleep_quality"`
	Energy    int       `json:"energy_level"`
	Note      string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
