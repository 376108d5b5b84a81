package models

import "time"

// RefreshToken is the durable record of a refresh-token secret. Only the
// keyed hash of the secret is stored. Every token is bound to exactly one
// session and cannot outlive it; rotation deactivates the row and creates a
// replacement bound to the same session.
type RefreshToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"token_hash"`
	SessionID  string     `json:"session_id"`
	DeviceInfo DeviceInfo `json:"device_info"`
	IPAddress  string     `json:"ip_address"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt time.Time  `json:"last_used_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}
