package clientctx

import "strings"

// maxUserAgentLen bounds how much of a user-agent header is inspected.
const maxUserAgentLen = 1024

type signature struct {
	name   string
	tokens []string // any token matches
}

// Tokens carry their delimiters ("/", "(", "; ") so that plain words inside arbitrary strings
// do not match. Order matters: Chromium-based browsers also advertise Chrome and Safari, and iOS
// agents advertise "like Mac OS X".
var browserSignatures = []signature{
	{"Edge", []string{"edg/", "edge/", "edga/", "edgios/"}},
	{"Opera", []string{"opr/", "opera/", "opios/", "opera mini/"}},
	{"Samsung Internet", []string{"samsungbrowser/"}},
	{"Firefox", []string{"firefox/", "fxios/"}},
	{"Internet Explorer", []string{"msie ", "trident/"}},
	{"Chromium", []string{"chromium/"}},
	{"Chrome", []string{"crios/", "chrome/"}},
	{"Safari", []string{"safari/", "applewebkit/"}},
}

var osSignatures = []signature{
	{"Windows Phone", []string{"windows phone os", "windows phone "}},
	{"Windows", []string{"windows nt"}},
	{"iOS", []string{"(iphone", "(ipad", "(ipod", "cpu iphone os"}},
	{"Android", []string{"; android ", "(android ", "; android;"}},
	{"Chrome OS", []string{"; cros ", "(cros "}},
	{"macOS", []string{"(macintosh", "mac os x"}},
	{"Linux", []string{"(x11", "; linux", "(linux"}},
}

var (
	botTokens    = []string{"bot/", "bot;", "spider/", "crawler/", "slurp", "headlesschrome/"}
	tabletTokens = []string{"(ipad", "; tablet;", "(tablet;"}
	mobileTokens = []string{"(iphone", "(ipod", "mobile/", "mobile safari/", "; mobile;", "(mobile;"}
)

// ParseUserAgent classifies a user-agent string. It never fails: anything it cannot
// recognize is reported as Unknown. A string with neither a browser nor an OS signature
// yields UnknownDevice(), unless it names a crawler.
func ParseUserAgent(ua string) DeviceInfo {
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}
	s := strings.ToLower(strings.TrimSpace(ua))
	if s == "" {
		return UnknownDevice()
	}

	info := DeviceInfo{
		Browser: match(s, browserSignatures),
		OS:      match(s, osSignatures),
	}
	if info.Browser == "Safari" && info.OS == Unknown {
		// Bare WebKit with no platform token is too weak a signal.
		info.Browser = Unknown
	}
	if containsAny(s, botTokens) {
		info.Device = DeviceBot
		return info
	}
	if info.Browser == Unknown && info.OS == Unknown {
		return UnknownDevice()
	}
	info.Device, info.IsMobile = classifyDevice(s, info.OS)
	return info
}

func match(s string, sigs []signature) string {
	for _, sig := range sigs {
		for _, tok := range sig.tokens {
			if strings.Contains(s, tok) {
				return sig.name
			}
		}
	}
	return Unknown
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func classifyDevice(s, os string) (device string, mobile bool) {
	switch {
	case containsAny(s, tabletTokens), os == "Android" && !containsAny(s, mobileTokens):
		return DeviceTablet, true
	case containsAny(s, mobileTokens), os == "Windows Phone":
		return DeviceMobile, true
	}
	switch os {
	case "Windows", "macOS", "Linux", "Chrome OS":
		return DeviceDesktop, false
	}
	return Unknown, false
}
