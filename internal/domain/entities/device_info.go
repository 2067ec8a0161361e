package entities

import "strings"

// DeviceInfo describes the browser a subscription was created from.
type DeviceInfo struct {
	UserAgent  string `json:"userAgent,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Language   string `json:"language,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	DeviceHash string `json:"deviceHash,omitempty"`
}

func (d *DeviceInfo) Clone() *DeviceInfo {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// DeviceInfoFromUserAgent derives device type, browser and OS from a
// User-Agent string.
func DeviceInfoFromUserAgent(userAgent string) *DeviceInfo {
	if userAgent == "" {
		return nil
	}
	return &DeviceInfo{
		UserAgent:  userAgent,
		DeviceType: detectDeviceType(userAgent),
		Browser:    detectBrowser(userAgent),
		OS:         detectOS(userAgent),
	}
}

// Merge fills empty fields of d from other and returns the result.
func (d *DeviceInfo) Merge(other *DeviceInfo) *DeviceInfo {
	if d == nil {
		return other.Clone()
	}
	out := d.Clone()
	if other == nil {
		return out
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&out.UserAgent, other.UserAgent)
	fill(&out.Platform, other.Platform)
	fill(&out.Language, other.Language)
	fill(&out.Timezone, other.Timezone)
	fill(&out.DeviceType, other.DeviceType)
	fill(&out.Browser, other.Browser)
	fill(&out.OS, other.OS)
	fill(&out.DeviceHash, other.DeviceHash)
	return out
}

func detectDeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)

	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return "tablet"
	}
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone") {
		return "mobile"
	}
	return "desktop"
}

func detectBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "edg"):
		return "edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "chrome") && !strings.Contains(ua, "chromium"):
		return "chrome"
	case strings.Contains(ua, "safari"):
		return "safari"
	}
	return "unknown"
}

func detectOS(userAgent string) string {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ipod"):
		return "ios"
	case strings.Contains(ua, "macintosh") || strings.Contains(ua, "mac os"):
		return "macos"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "linux"):
		return "linux"
	}
	return "unknown"
}
