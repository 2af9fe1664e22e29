// Package auth verifies the session tokens issued by the external identity
// provider. The service never issues tokens of its own.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/riskguard/riskguard/internal/auth/hybrid"
	"github.com/riskguard/riskguard/internal/config"
)

// ErrInvalidToken is returned for every token that fails verification
var ErrInvalidToken = errors.New("invalid session token")

// Claims are the session token claims the service relies on
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// Verifier validates session tokens and extracts the user they belong to
type Verifier struct {
	hmacSecret  []byte
	ed25519Keys map[string]ed25519.PublicKey
	hybridKeys  map[string]*hybrid.PublicKey
	parser      *jwt.Parser
}

// NewVerifier builds a Verifier from the token configuration. Keys that do not
// decode fail construction rather than every request.
func NewVerifier(cfg config.TokenConfig) (*Verifier, error) {
	v := &Verifier{
		ed25519Keys: make(map[string]ed25519.PublicKey, len(cfg.Ed25519PublicKeys)),
		hybridKeys:  make(map[string]*hybrid.PublicKey, len(cfg.HybridPublicKeys)),
	}

	var methods []string
	if cfg.HMACSecret != "" {
		v.hmacSecret = []byte(cfg.HMACSecret)
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}

	for kid, encoded := range cfg.Ed25519PublicKeys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("ed25519 key %q: %w", kid, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("ed25519 key %q: want %d bytes, got %d", kid, ed25519.PublicKeySize, len(raw))
		}
		v.ed25519Keys[kid] = ed25519.PublicKey(raw)
	}

	for kid, kc := range cfg.HybridPublicKeys {
		classical, err := base64.StdEncoding.DecodeString(kc.Ed25519)
		if err != nil {
			return nil, fmt.Errorf("hybrid key %q: %w", kid, err)
		}
		pq, err := base64.StdEncoding.DecodeString(kc.MLDSA65)
		if err != nil {
			return nil, fmt.Errorf("hybrid key %q: %w", kid, err)
		}
		pk, err := hybrid.ParsePublicKey(classical, pq)
		if err != nil {
			return nil, fmt.Errorf("hybrid key %q: %w", kid, err)
		}
		v.hybridKeys[kid] = pk
	}

	if len(v.ed25519Keys) > 0 || len(v.hybridKeys) > 0 {
		methods = append(methods, jwt.SigningMethodEdDSA.Alg())
	}
	if len(v.hybridKeys) > 0 {
		methods = append(methods, hybrid.AlgName)
	}
	if len(methods) == 0 {
		return nil, errors.New("no token verification keys configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

// Verify checks the signature, issuer and lifetime of tokenString and
// returns its claims. Subject is the user ID and is never empty on success.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &Claims{}, v.keyFor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

func (v *Verifier) keyFor(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)

	switch token.Method.Alg() {
	case jwt.SigningMethodHS256.Alg():
		return v.hmacSecret, nil
	case jwt.SigningMethodEdDSA.Alg():
		if pk, ok := v.ed25519Keys[kid]; ok {
			return pk, nil
		}
		// A hybrid key also verifies plain EdDSA tokens with its classical half.
		if hk, ok := v.hybridKeys[kid]; ok {
			return hk.Classical, nil
		}
		return nil, fmt.Errorf("unknown key id %q", kid)
	case hybrid.AlgName:
		if hk, ok := v.hybridKeys[kid]; ok {
			return hk, nil
		}
		return nil, fmt.Errorf("unknown key id %q", kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
	}
}
