// Package clientctx turns raw client signals (user-agent strings, IP addresses) into the
// structured device and location metadata stored on sessions. Everything here is pure
// except GeoLocator, which may call an injected provider under a bounded timeout.
package clientctx

import (
	"strconv"
	"strings"
)

// Unknown is the value used for every DeviceInfo field that could not be recognized.
const Unknown = "Unknown"

// Device types reported in DeviceInfo.Device.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// DeviceInfo is the parsed form of a user-agent string. It is computed once when a session is
// created and doubles as the device dedup key (see Fingerprint).
type DeviceInfo struct {
	Browser  string `json:"browser"`
	OS       string `json:"os"`
	Device   string `json:"device"`
	IsMobile bool   `json:"is_mobile"`
}

// UnknownDevice returns the tuple used for unrecognized user agents.
func UnknownDevice() DeviceInfo {
	return DeviceInfo{Browser: Unknown, OS: Unknown, Device: Unknown, IsMobile: false}
}

// IsUnknown reports whether nothing about the device was recognized.
func (d DeviceInfo) IsUnknown() bool {
	return d == UnknownDevice()
}

// Fingerprint returns the concurrent-session dedup key: lowercased browser, OS, and device type
// plus the mobile flag. Two DeviceInfo values with the same fingerprint are treated as the same device.
func (d DeviceInfo) Fingerprint() string {
	parts := []string{
		normalizePart(d.Browser),
		normalizePart(d.OS),
		normalizePart(d.Device),
		strconv.FormatBool(d.IsMobile),
	}
	return strings.Join(parts, "|")
}

// String renders the device for audit metadata and CLI output (e.g. "Chrome on Windows (desktop)").
func (d DeviceInfo) String() string {
	return d.Browser + " on " + d.OS + " (" + d.Device + ")"
}

func normalizePart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return strings.ToLower(Unknown)
	}
	return s
}
