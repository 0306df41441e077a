// Package anticheat scores client device fingerprints, detects open developer tools from
// client-reported samples, and invalidates cheating sessions.
//
// All signals are reported by the client and can be spoofed; they raise the cost of casual
// cheating and flag sessions for review, nothing more.
package anticheat

import (
	"fmt"
	"strings"
)

// MaxSuspicion is the upper bound of a suspicion score
const MaxSuspicion = 100

const (
	weightPlatformMismatch = 40
	weightNoTouch          = 30
	weightScreenWidth      = 20
	weightMemory           = 10
	weightAutomation       = 40
)

// Fingerprint is the device information collected by the game client
type Fingerprint struct {
	UserAgent      string  `json:"userAgent"`
	Platform       string  `json:"platform"`
	MaxTouchPoints int     `json:"maxTouchPoints"`
	ScreenWidth    int     `json:"screenWidth"`
	ScreenHeight   int     `json:"screenHeight"`
	DeviceMemory   float64 `json:"deviceMemory"`
	Webdriver      bool    `json:"webdriver"`
}

var desktopPlatforms = []string{"macintel", "win32", "win64", "linux x86_64"}

var automationMarkers = []string{"headlesschrome", "phantomjs", "selenium", "puppeteer"}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isDesktopPlatform(platform string) bool {
	p := strings.ToLower(strings.TrimSpace(platform))
	for _, d := range desktopPlatforms {
		if p == d {
			return true
		}
	}
	return false
}

// SuspicionScore rates how likely fp is spoofing its device identity, from 0 to 100,
// and returns the rules that matched.
func SuspicionScore(fp Fingerprint) (int, []string) {
	ua := strings.ToLower(fp.UserAgent)
	claimsIOS := containsAny(ua, "iphone", "ipad", "ipod")
	claimsMobile := claimsIOS || containsAny(ua, "android", "mobile")

	score := 0
	var reasons []string
	add := func(weight int, reason string) {
		score += weight
		reasons = append(reasons, reason)
	}

	if claimsIOS && isDesktopPlatform(fp.Platform) {
		add(weightPlatformMismatch, fmt.Sprintf("ios user agent on platform %q", fp.Platform))
	}
	if claimsMobile && fp.MaxTouchPoints == 0 {
		add(weightNoTouch, "mobile user agent without touch support")
	}
	if w := fp.ScreenWidth; w > 0 {
		if claimsMobile && (w < 240 || w > 1024) {
			add(weightScreenWidth, fmt.Sprintf("screen width %d unusual for mobile", w))
		} else if !claimsMobile && (w < 240 || w > 7680) {
			add(weightScreenWidth, fmt.Sprintf("screen width %d out of range", w))
		}
	}
	if claimsMobile && fp.DeviceMemory > 16 {
		add(weightMemory, fmt.Sprintf("device memory %.0fGB unusual for mobile", fp.DeviceMemory))
	}
	if fp.Webdriver || containsAny(ua, automationMarkers...) {
		add(weightAutomation, "automation markers present")
	}

	if score > MaxSuspicion {
		score = MaxSuspicion
	}
	return score, reasons
}
