package models

import "time"

type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

type LogoutRequest struct {
	SessionID string `json:"session_id"`
}

type LogoutAllRequest struct {
	ExcludeSessionID string `json:"exclude_session_id,omitempty"`
}

type TokenPairResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	SessionID    string     `json:"session_id"`
	DeviceInfo   DeviceInfo `json:"device_info"`
}

type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}
