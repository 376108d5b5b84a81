package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

const (
	MwUserIDHeader = "X-User-ID"
	MwUserIDKey    = "userID"
)

// RequestContext carries the request-level signals the HTTP layer extracts
// for us. Handlers build it once per request; everything below the
// controller receives it as a plain value.
type RequestContext struct {
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
}

// DeviceInfo describes the device behind a session. The fingerprint is a
// keyed digest of user-agent and IP kept for audit and session listings; it
// is never compared during token validation.
type DeviceInfo struct {
	Fingerprint string `json:"fingerprint"`
	UserAgent   string `json:"user_agent"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	DeviceClass string `json:"device_class"`
}

// Value implements driver.Valuer so DeviceInfo persists as jsonb.
func (d DeviceInfo) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for the jsonb column.
func (d *DeviceInfo) Scan(src interface{}) error {
	if src == nil {
		*d = DeviceInfo{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("device info: unsupported scan type %T", src)
	}
	return json.Unmarshal(b, d)
}
