package domain

import "time"

// Session represents stored gateway credentials used for session restore
type Session struct {
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}
