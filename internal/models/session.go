package models

import "time"

// Session is one logical device-login. A session groups the successive
// refresh tokens issued to that device via rotation. Once IsActive is false
// or ExpiresAt has passed the session is terminal and is never revived.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	DeviceInfo   DeviceInfo `json:"device_info"`
	IPAddress    string     `json:"ip_address"`
	IsActive     bool       `json:"is_active"`
	LastActivity time.Time  `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}
