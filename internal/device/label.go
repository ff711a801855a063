// Package device derives human-readable labels for browsers from their User-Agent.
package device

import (
	"fmt"
	"strings"

	ua "github.com/mileusna/useragent"
)

// Describe returns the browser name, OS name and device class for a User-Agent string.
func Describe(userAgent string) (browser, os, class string) {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Browser", "Unknown OS", "Desktop"
	}
	parsed := ua.Parse(userAgent)

	browser = parsed.Name
	if browser == "" {
		browser = "Unknown Browser"
	}
	os = parsed.OS
	if os == "" {
		os = "Unknown OS"
	}
	switch {
	case parsed.Tablet:
		class = "Tablet"
	case parsed.Mobile:
		class = "Mobile"
	case parsed.Bot:
		class = "Bot"
	default:
		class = "Desktop"
	}
	return browser, os, class
}

// Label returns a short label such as "Chrome on Windows" or "Safari on iOS (Mobile)".
func Label(userAgent string) string {
	browser, os, class := Describe(userAgent)
	if class == "Desktop" {
		return fmt.Sprintf("%s on %s", browser, os)
	}
	return fmt.Sprintf("%s on %s (%s)", browser, os, class)
}
