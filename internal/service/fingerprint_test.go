package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krezhik/marketauth/internal/models"
)

func TestFingerprintDerivesDeviceInfo(t *testing.T) {
	secret := []byte("test-server-secret")

	cases := []struct {
		name        string
		userAgent   string
		browser     string
		os          string
		deviceClass string
	}{
		{
			name:        "chrome on windows desktop",
			userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			browser:     "Chrome",
			os:          "Windows",
			deviceClass: "Desktop",
		},
		{
			name:        "firefox on linux",
			userAgent:   "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
			browser:     "Firefox",
			os:          "Linux",
			deviceClass: "Desktop",
		},
		{
			name:        "safari on iphone",
			userAgent:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			browser:     "Safari",
			os:          "iOS",
			deviceClass: "Mobile",
		},
		{
			name:        "safari on ipad",
			userAgent:   "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			browser:     "Safari",
			os:          "iOS",
			deviceClass: "Tablet",
		},
		{
			name:        "edge on windows",
			userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
			browser:     "Edge",
			os:          "Windows",
			deviceClass: "Desktop",
		},
		{
			name:        "opera on macos",
			userAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 OPR/111.0.0.0",
			browser:     "Opera",
			os:          "macOS",
			deviceClass: "Desktop",
		},
		{
			name:        "chrome on android phone",
			userAgent:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
			browser:     "Chrome",
			os:          "Android",
			deviceClass: "Mobile",
		},
		{
			name:        "unknown client",
			userAgent:   "curl/8.5.0",
			browser:     "Unknown",
			os:          "Unknown",
			deviceClass: "Desktop",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := Fingerprint(models.RequestContext{UserAgent: tc.userAgent, IPAddress: "203.0.113.10"}, secret)

			assert.Equal(t, tc.browser, info.Browser)
			assert.Equal(t, tc.os, info.OS)
			assert.Equal(t, tc.deviceClass, info.DeviceClass)
			assert.Equal(t, tc.userAgent, info.UserAgent)
			assert.Len(t, info.Fingerprint, 64)
		})
	}
}

func TestFingerprintHashIsKeyed(t *testing.T) {
	reqCtx := models.RequestContext{UserAgent: "curl/8.5.0", IPAddress: "203.0.113.10"}

	same := Fingerprint(reqCtx, []byte("key-1"))
	again := Fingerprint(reqCtx, []byte("key-1"))
	other := Fingerprint(reqCtx, []byte("key-2"))

	assert.Equal(t, same.Fingerprint, again.Fingerprint, "same signals and key produce a stable hash")
	assert.NotEqual(t, same.Fingerprint, other.Fingerprint, "hash depends on the server key")

	differentIP := Fingerprint(models.RequestContext{UserAgent: "curl/8.5.0", IPAddress: "203.0.113.11"}, []byte("key-1"))
	assert.NotEqual(t, same.Fingerprint, differentIP.Fingerprint)
}
