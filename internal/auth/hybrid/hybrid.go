// Package hybrid registers the "EdDSA+ML-DSA-65" JWT signing method used by
// the identity provider for post-quantum hybrid session tokens.
//
// A hybrid signature is laid out as
//
//	[2-byte big-endian Ed25519 signature length] || Ed25519 sig || ML-DSA-65 sig
//
// and only verifies when both halves do.
package hybrid

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/golang-jwt/jwt/v5"
)

// AlgName is the JWT "alg" header value of the hybrid scheme
const AlgName = "EdDSA+ML-DSA-65"

var (
	errShortSignature     = errors.New("hybrid: signature too short")
	errMalformedSignature = errors.New("hybrid: malformed signature")
	errClassicalInvalid   = errors.New("hybrid: Ed25519 signature invalid")
	errPQInvalid          = errors.New("hybrid: ML-DSA-65 signature invalid")
)

type signingMethod struct{}

// SigningMethod is the jwt.SigningMethod for AlgName
var SigningMethod jwt.SigningMethod = signingMethod{}

func init() {
	jwt.RegisterSigningMethod(AlgName, func() jwt.SigningMethod { return SigningMethod })
}

func (signingMethod) Alg() string { return AlgName }

// PublicKey is the verification half of a hybrid key
type PublicKey struct {
	Classical ed25519.PublicKey
	PQ        *mldsa65.PublicKey
}

// PrivateKey signs hybrid tokens. The service itself never issues tokens;
// this exists for tooling and tests that need to mint them.
type PrivateKey struct {
	Classical ed25519.PrivateKey
	PQ        *mldsa65.PrivateKey
}

// Public returns the verification key of k
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{
		Classical: k.Classical.Public().(ed25519.PublicKey),
		PQ:        k.PQ.Public().(*mldsa65.PublicKey),
	}
}

// GenerateKey creates a fresh hybrid key
func GenerateKey() (*PrivateKey, error) {
	_, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ed25519 keygen: %w", err)
	}
	_, pqPriv, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ml-dsa-65 keygen: %w", err)
	}
	return &PrivateKey{Classical: edPriv, PQ: pqPriv}, nil
}

// ParsePublicKey builds a PublicKey from the raw Ed25519 and packed ML-DSA-65
// public keys
func ParsePublicKey(classical, pq []byte) (*PublicKey, error) {
	if len(classical) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("hybrid: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(classical))
	}
	var pk mldsa65.PublicKey
	if err := pk.UnmarshalBinary(pq); err != nil {
		return nil, fmt.Errorf("hybrid: ml-dsa-65 public key: %w", err)
	}
	return &PublicKey{Classical: ed25519.PublicKey(classical), PQ: &pk}, nil
}

// Sign implements jwt.SigningMethod. key must be *PrivateKey.
func (signingMethod) Sign(signingString string, key any) ([]byte, error) {
	k, ok := key.(*PrivateKey)
	if !ok {
		return nil, fmt.Errorf("hybrid sign: expected *PrivateKey, got %T", key)
	}
	msg := []byte(signingString)

	classical := ed25519.Sign(k.Classical, msg)
	pq, err := k.PQ.Sign(rand.Reader, msg, crypto.Hash(0))
	if err != nil {
		return nil, fmt.Errorf("ml-dsa-65 sign: %w", err)
	}

	sig := make([]byte, 2, 2+len(classical)+len(pq))
	binary.BigEndian.PutUint16(sig, uint16(len(classical)))
	sig = append(sig, classical...)
	return append(sig, pq...), nil
}

// Verify implements jwt.SigningMethod. key must be *PublicKey.
func (signingMethod) Verify(signingString string, sig []byte, key any) error {
	pk, ok := key.(*PublicKey)
	if !ok {
		return fmt.Errorf("hybrid verify: expected *PublicKey, got %T", key)
	}
	if len(sig) < 4 {
		return errShortSignature
	}

	n := int(binary.BigEndian.Uint16(sig[:2]))
	if 2+n > len(sig) {
		return errMalformedSignature
	}
	msg := []byte(signingString)

	if !ed25519.Verify(pk.Classical, msg, sig[2:2+n]) {
		return errClassicalInvalid
	}
	if !mldsa65.Verify(pk.PQ, msg, nil, sig[2+n:]) {
		return errPQInvalid
	}
	return nil
}
