package clientctx

import (
	"strings"
	"testing"
)

const (
	uaSafariIOS     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaEdgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaSafariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
	uaChromeAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36"
	uaAndroidTablet = "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaSafariIPad    = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaChromeIOS     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/120.0.6099.119 Mobile/15E148 Safari/604.1"
	uaGooglebot     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	uaIE11          = "Mozilla/5.0 (Windows NT 6.1; Trident/7.0; rv:11.0) like Gecko"
	uaOperaLegacy   = "Opera/9.80 (Windows NT 6.1; WOW64) Presto/2.12.388 Version/12.18"
	uaFirefoxTablet = "Mozilla/5.0 (Android 13; Tablet; rv:121.0) Gecko/121.0 Firefox/121.0"
	uaBingbot       = "Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm) Chrome/116.0.1938.76 Safari/537.36"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want DeviceInfo
	}{
		{"safari on iOS", uaSafariIOS, DeviceInfo{Browser: "Safari", OS: "iOS", Device: DeviceMobile, IsMobile: true}},
		{"chrome on windows", uaChromeWindows, DeviceInfo{Browser: "Chrome", OS: "Windows", Device: DeviceDesktop, IsMobile: false}},
		{"edge before chrome", uaEdgeWindows, DeviceInfo{Browser: "Edge", OS: "Windows", Device: DeviceDesktop, IsMobile: false}},
		{"firefox on linux", uaFirefoxLinux, DeviceInfo{Browser: "Firefox", OS: "Linux", Device: DeviceDesktop, IsMobile: false}},
		{"safari on mac", uaSafariMac, DeviceInfo{Browser: "Safari", OS: "macOS", Device: DeviceDesktop, IsMobile: false}},
		{"chrome on android phone", uaChromeAndroid, DeviceInfo{Browser: "Chrome", OS: "Android", Device: DeviceMobile, IsMobile: true}},
		{"android tablet", uaAndroidTablet, DeviceInfo{Browser: "Chrome", OS: "Android", Device: DeviceTablet, IsMobile: true}},
		{"ipad", uaSafariIPad, DeviceInfo{Browser: "Safari", OS: "iOS", Device: DeviceTablet, IsMobile: true}},
		{"chrome on iOS", uaChromeIOS, DeviceInfo{Browser: "Chrome", OS: "iOS", Device: DeviceMobile, IsMobile: true}},
		{"internet explorer", uaIE11, DeviceInfo{Browser: "Internet Explorer", OS: "Windows", Device: DeviceDesktop, IsMobile: false}},
		{"opera presto", uaOperaLegacy, DeviceInfo{Browser: "Opera", OS: "Windows", Device: DeviceDesktop, IsMobile: false}},
		{"firefox android tablet", uaFirefoxTablet, DeviceInfo{Browser: "Firefox", OS: "Android", Device: DeviceTablet, IsMobile: true}},
		{"bot", uaGooglebot, DeviceInfo{Browser: Unknown, OS: Unknown, Device: DeviceBot, IsMobile: false}},
		{"bot with browser tokens", uaBingbot, DeviceInfo{Browser: "Chrome", OS: Unknown, Device: DeviceBot, IsMobile: false}},
		{"empty", "", UnknownDevice()},
		{"whitespace", "   \t ", UnknownDevice()},
		{"garbage", "not a user agent at all", UnknownDevice()},
		{"binary", "\x00\xff\xfe", UnknownDevice()},
		{"word containing opera", "operator-console", UnknownDevice()},
		{"word containing tablet", "tabletop sim", UnknownDevice()},
		{"bare mobile", "xyz mobile", UnknownDevice()},
		{"word containing bot", "my-robot-client", UnknownDevice()},
		{"windows without nt", "Windows Update Agent", UnknownDevice()},
		{"word containing linux", "linuxbrew/4.2", UnknownDevice()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseUserAgent(tc.ua)
			if got != tc.want {
				t.Errorf("ParseUserAgent(%q) = %+v, want %+v", tc.ua, got, tc.want)
			}
		})
	}
}

func TestParseUserAgent_Deterministic(t *testing.T) {
	for _, ua := range []string{uaSafariIOS, uaChromeWindows, "", "???"} {
		first := ParseUserAgent(ua)
		for i := 0; i < 50; i++ {
			if got := ParseUserAgent(ua); got != first {
				t.Fatalf("ParseUserAgent(%q) not deterministic: %+v vs %+v", ua, got, first)
			}
		}
	}
}

func TestParseUserAgent_OversizedInput(t *testing.T) {
	ua := uaChromeWindows + strings.Repeat("x", 10*maxUserAgentLen)
	got := ParseUserAgent(ua)
	if got.Browser != "Chrome" || got.OS != "Windows" {
		t.Errorf("oversized input = %+v, want Chrome on Windows", got)
	}
}

func TestDeviceInfo_Fingerprint(t *testing.T) {
	a := DeviceInfo{Browser: "Chrome", OS: "Windows", Device: "desktop", IsMobile: false}
	b := DeviceInfo{Browser: " chrome", OS: "WINDOWS ", Device: "Desktop", IsMobile: false}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprints differ: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
	if a.Fingerprint() != "chrome|windows|desktop|false" {
		t.Errorf("Fingerprint() = %q", a.Fingerprint())
	}
	c := a
	c.IsMobile = true
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("mobile flag should change the fingerprint")
	}
	empty := DeviceInfo{}
	if empty.Fingerprint() != "unknown|unknown|unknown|false" {
		t.Errorf("empty Fingerprint() = %q", empty.Fingerprint())
	}
}

func TestDeviceInfo_IsUnknown(t *testing.T) {
	if !UnknownDevice().IsUnknown() {
		t.Error("UnknownDevice().IsUnknown() = false")
	}
	if ParseUserAgent(uaChromeWindows).IsUnknown() {
		t.Error("chrome should not be unknown")
	}
}
