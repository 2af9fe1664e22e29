package reqsignal

import "strings"

// TableVersion identifies the user-agent rule table below. Bump it whenever
// rules change so stored families can be traced back to the table that
// produced them.
const TableVersion = "2025.1"

// uaRule matches when the lower-cased user agent contains any of the any
// substrings and none of the not substrings.
type uaRule struct {
	family string
	any    []string
	not    []string
}

func (r uaRule) matches(ua string) bool {
	for _, n := range r.not {
		if strings.Contains(ua, n) {
			return false
		}
	}
	for _, a := range r.any {
		if strings.Contains(ua, a) {
			return true
		}
	}
	return false
}

// match returns the family of the first rule matching ua. Order matters:
// more specific tokens precede the generic ones they embed.
func match(rules []uaRule, ua string) string {
	ua = strings.ToLower(ua)
	if ua == "" {
		return Unknown
	}
	for _, r := range rules {
		if r.matches(ua) {
			return r.family
		}
	}
	return Unknown
}

var deviceRules = []uaRule{
	{family: "bot", any: []string{"bot", "crawler", "spider", "curl/", "wget/", "python-requests", "go-http-client", "headlesschrome"}},
	{family: "tablet", any: []string{"ipad", "tablet", "kindle", "silk/"}},
	{family: "tablet", any: []string{"android"}, not: []string{"mobile"}},
	{family: "mobile", any: []string{"mobi", "iphone", "ipod", "android", "windows phone"}},
	{family: "desktop", any: []string{"windows nt", "macintosh", "x11", "cros "}},
}

var osRules = []uaRule{
	{family: "windows_phone", any: []string{"windows phone"}},
	{family: "windows", any: []string{"windows nt", "windows"}},
	{family: "ios", any: []string{"iphone", "ipad", "ipod"}},
	{family: "android", any: []string{"android"}},
	{family: "chromeos", any: []string{"cros "}},
	{family: "macos", any: []string{"mac os x", "macintosh"}},
	{family: "linux", any: []string{"linux", "x11"}},
}

var browserRules = []uaRule{
	{family: "edge", any: []string{"edg/", "edge/", "edga/", "edgios/"}},
	{family: "opera", any: []string{"opr/", "opera"}},
	{family: "samsung", any: []string{"samsungbrowser"}},
	{family: "firefox", any: []string{"firefox/", "fxios/"}},
	{family: "chrome", any: []string{"crios/", "chrome/", "chromium/"}},
	{family: "safari", any: []string{"safari/"}},
}
