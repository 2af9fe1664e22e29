package reqsignal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaEdgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"
	uaSafariIPad    = "Mozilla/5.0 (iPad; CPU OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaSafariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15"
	uaChromeAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36"
	uaAndroidTablet = "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaSamsung       = "Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/23.0 Chrome/115.0.0.0 Mobile Safari/537.36"
	uaOpera         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 OPR/106.0.0.0"
	uaCurl          = "curl/8.4.0"
)

func TestExtractFamilies(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		device  string
		os      string
		browser string
	}{
		{"chrome windows", uaChromeWindows, "desktop", "windows", "chrome"},
		{"edge windows", uaEdgeWindows, "desktop", "windows", "edge"},
		{"opera windows", uaOpera, "desktop", "windows", "opera"},
		{"safari iphone", uaSafariIPhone, "mobile", "ios", "safari"},
		{"safari ipad", uaSafariIPad, "tablet", "ios", "safari"},
		{"firefox linux", uaFirefoxLinux, "desktop", "linux", "firefox"},
		{"safari mac", uaSafariMac, "desktop", "macos", "safari"},
		{"chrome android", uaChromeAndroid, "mobile", "android", "chrome"},
		{"android tablet", uaAndroidTablet, "tablet", "android", "chrome"},
		{"samsung browser", uaSamsung, "mobile", "android", "samsung"},
		{"curl", uaCurl, "bot", Unknown, Unknown},
		{"empty", "", Unknown, Unknown, Unknown},
		{"garbage", "definitely not a browser", Unknown, Unknown, Unknown},
	}

	ext := NewExtractor(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.Header.Set("User-Agent", tt.ua)

			s := ext.Extract(r)
			assert.Equal(t, tt.device, s.UAFamily)
			assert.Equal(t, tt.os, s.OSFamily)
			assert.Equal(t, tt.browser, s.BrowserFamily)
		})
	}
}

func TestMaskIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.77", "203.0.113.0/24"},
		{"10.1.2.3", "10.1.2.0/24"},
		{"::ffff:198.51.100.9", "198.51.100.0/24"},
		{"2001:db8:abcd:12:1:2:3:4", "2001:db8:abcd:12::/64"},
		{"fe80::1%eth0", "fe80::/64"},
		{"not-an-ip", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskIP(tt.in))
		})
	}
}

func TestClientIPIgnoresProxyHeadersByDefault(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "192.0.2.10:51234"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	assert.Equal(t, "192.0.2.10", NewExtractor(false).ClientIP(r))
	assert.Equal(t, "192.0.2.0/24", NewExtractor(false).Extract(r).IPPrefix)
}

func TestClientIPTrustedProxy(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", NewExtractor(true).ClientIP(r))

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Real-IP", "198.51.100.20")
	assert.Equal(t, "198.51.100.0/24", NewExtractor(true).Extract(r).IPPrefix)
}
