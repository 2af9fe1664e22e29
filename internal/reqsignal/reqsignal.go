// Package reqsignal derives coarse, privacy-safe signals from an HTTP request:
// a masked IP prefix and a (device class, OS, browser) triple.
package reqsignal

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown is reported for anything that cannot be classified
const Unknown = "unknown"

const (
	ipv4PrefixBits = 24
	ipv6PrefixBits = 64
)

// Signals are the request-derived inputs to a risk evaluation
type Signals struct {
	IPPrefix      string
	UAFamily      string
	OSFamily      string
	BrowserFamily string
}

// Extractor derives Signals from requests
type Extractor struct {
	trustProxyHeaders bool
}

// NewExtractor creates an Extractor. When trustProxyHeaders is set the client
// address is taken from X-Forwarded-For / X-Real-IP.
func NewExtractor(trustProxyHeaders bool) *Extractor {
	return &Extractor{trustProxyHeaders: trustProxyHeaders}
}

// Extract derives Signals from r. It does no I/O and cannot fail.
func (e *Extractor) Extract(r *http.Request) Signals {
	ua := r.UserAgent()
	return Signals{
		IPPrefix:      MaskIP(e.ClientIP(r)),
		UAFamily:      match(deviceRules, ua),
		OSFamily:      match(osRules, ua),
		BrowserFamily: match(browserRules, ua),
	}
}

// ClientIP returns the best-effort client address for r
func (e *Extractor) ClientIP(r *http.Request) string {
	if e.trustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// MaskIP drops the host-identifying bits of addr: the last octet of an IPv4
// address or the last 64 bits of an IPv6 address.
func MaskIP(addr string) string {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return Unknown
	}
	ip = ip.Unmap().WithZone("")

	bits := ipv6PrefixBits
	if ip.Is4() {
		bits = ipv4PrefixBits
	}
	prefix, err := ip.Prefix(bits)
	if err != nil {
		return Unknown
	}
	return prefix.String()
}
