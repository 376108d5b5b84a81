package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/krezhik/marketauth/internal/models"
)

// Fingerprint derives descriptive device metadata from the request signals.
// The hash is keyed with the server secret so fingerprints cannot be forged
// from public signals alone. It is audit data: validation never compares
// fingerprints, so a user whose IP changes between requests is not locked out.
func Fingerprint(reqCtx models.RequestContext, serverSecret []byte) models.DeviceInfo {
	mac := hmac.New(sha256.New, serverSecret)
	mac.Write([]byte(reqCtx.UserAgent))
	mac.Write([]byte(reqCtx.IPAddress))

	return models.DeviceInfo{
		Fingerprint: hex.EncodeToString(mac.Sum(nil)),
		UserAgent:   reqCtx.UserAgent,
		Browser:     detectBrowser(reqCtx.UserAgent),
		OS:          detectOS(reqCtx.UserAgent),
		DeviceClass: detectDeviceClass(reqCtx.UserAgent),
	}
}

// Edge and Opera ship "Chrome" in their user agents, so they are matched
// first.
func detectBrowser(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Edg"):
		return "Edge"
	case strings.Contains(userAgent, "OPR"), strings.Contains(userAgent, "Opera"):
		return "Opera"
	case strings.Contains(userAgent, "Chrome"):
		return "Chrome"
	case strings.Contains(userAgent, "Firefox"):
		return "Firefox"
	case strings.Contains(userAgent, "Safari"):
		return "Safari"
	default:
		return "Unknown"
	}
}

func detectOS(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Windows"):
		return "Windows"
	case strings.Contains(userAgent, "Android"):
		return "Android"
	case strings.Contains(userAgent, "iPhone"), strings.Contains(userAgent, "iPad"), strings.Contains(userAgent, "iOS"):
		return "iOS"
	case strings.Contains(userAgent, "Mac OS"), strings.Contains(userAgent, "Macintosh"):
		return "macOS"
	case strings.Contains(userAgent, "Linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

func detectDeviceClass(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "iPad"), strings.Contains(userAgent, "Tablet"):
		return "Tablet"
	case strings.Contains(userAgent, "Mobile"), strings.Contains(userAgent, "iPhone"), strings.Contains(userAgent, "Android"):
		return "Mobile"
	default:
		return "Desktop"
	}
}
