package models

import "time"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// RevocationReason records why a token landed on the blacklist.
type RevocationReason string

const (
	ReasonLogout         RevocationReason = "logout"
	ReasonTokenRefresh   RevocationReason = "token_refresh"
	ReasonSessionRevoked RevocationReason = "session_revoked"
	ReasonUserLogoutAll  RevocationReason = "user_logout_all"
	ReasonAdminAction    RevocationReason = "admin_action"
)

// BlacklistEntry marks one token hash as revoked. Entries are independent of
// the session and refresh-token rows: a token stays rejectable even after its
// owning rows were purged. TokenExpiry is the token's natural expiry; past
// that point the entry is safe to delete because expiry alone rejects the
// token.
type BlacklistEntry struct {
	TokenHash     string           `json:"token_hash"`
	TokenType     TokenType        `json:"token_type"`
	Reason        RevocationReason `json:"reason"`
	UserID        string           `json:"user_id"`
	SessionID     string           `json:"session_id"`
	DeviceInfo    DeviceInfo       `json:"device_info"`
	BlacklistedAt time.Time        `json:"blacklisted_at"`
	TokenExpiry   time.Time        `json:"token_expiry"`
}
