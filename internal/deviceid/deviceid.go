// Package deviceid issues and reads the first-party device token cookie.
//
// The token is random and voluntarily stored by the client. Nothing about the
// request (headers, address, browser traits) is used to derive it.
package deviceid

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/riskguard/riskguard/internal/config"
)

// tokenBytes is the amount of entropy in a device token (256 bits)
const tokenBytes = 32

// Identity is the device token resolved for one request
type Identity struct {
	Token string
	// Minted is true when the request carried no usable token and a new one
	// was generated; the caller must send it back with SetCookie.
	Minted bool
}

// Issuer reads and mints device tokens
type Issuer struct {
	name     string
	maxAge   time.Duration
	domain   string
	secure   bool
	sameSite http.SameSite
}

// NewIssuer creates an Issuer from cookie configuration
func NewIssuer(cfg config.CookieConfig) *Issuer {
	sameSite := http.SameSiteLaxMode
	if strings.EqualFold(cfg.SameSite, "strict") {
		sameSite = http.SameSiteStrictMode
	}

	return &Issuer{
		name:     cfg.DeviceName,
		maxAge:   cfg.DeviceMaxAge,
		domain:   cfg.Domain,
		secure:   cfg.Secure,
		sameSite: sameSite,
	}
}

// Resolve returns the request's device token, minting a new one if the cookie
// is missing or malformed. It never fails.
func (i *Issuer) Resolve(r *http.Request) Identity {
	if c, err := r.Cookie(i.name); err == nil && Valid(c.Value) {
		return Identity{Token: c.Value}
	}
	return Identity{Token: NewToken(), Minted: true}
}

// SetCookie writes the device token cookie
func (i *Issuer) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     i.name,
		Value:    token,
		Path:     "/",
		Domain:   i.domain,
		MaxAge:   int(i.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: i.sameSite,
	})
}

// NewToken generates a fresh random device token
func NewToken() string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Valid reports whether s has the shape of a token produced by NewToken
func Valid(s string) bool {
	if len(s) != tokenBytes*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
