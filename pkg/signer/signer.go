// Package signer issues and verifies the EdDSA tokens that prove a principal
// signed a registry call. The token subject is the signer's account address,
// which is itself the ed25519 public key that verifies the token. Each
// token is bound to one request by its "req" claim (see RequestDigest) and
// carries a unique ID so servers can refuse a second use.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"wasmregistry/internal/registry/models"
	dErrors "wasmregistry/pkg/domain-errors"
)

// DefaultAudience is the audience registry servers expect.
const DefaultAudience = "wasm-registry"

// DefaultTTL bounds how long a signature may be replayed.
const DefaultTTL = 5 * time.Minute

// GenerateKey creates a new signing key and its account address.
func GenerateKey() (ed25519.PrivateKey, models.Address, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", err
	}
	return priv, models.AccountAddress(pub), nil
}

// AddressOf returns the account address of priv.
func AddressOf(priv ed25519.PrivateKey) models.Address {
	return models.AccountAddress(priv.Public().(ed25519.PublicKey))
}

// EncodeKey renders the key seed as hex.
func EncodeKey(priv ed25519.PrivateKey) string {
	return hex.EncodeToString(priv.Seed())
}

// DecodeKey parses a hex seed written by EncodeKey.
func DecodeKey(s string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("decode key: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Claims are the token claims: the registered set plus the request digest.
type Claims struct {
	jwt.RegisteredClaims
	Request string `json:"req"`
}

// RequestDigest binds a token to one request. requestURI is the path and
// raw query as the server sees them.
func RequestDigest(method, requestURI string, body []byte) string {
	bodySum := sha256.Sum256(body)
	d := sha256.New()
	d.Write([]byte(method))
	d.Write([]byte("\n"))
	d.Write([]byte(requestURI))
	d.Write([]byte("\n"))
	d.Write([]byte(hex.EncodeToString(bodySum[:])))
	return hex.EncodeToString(d.Sum(nil))
}

// Sign issues a token for the holder of priv, valid only for the request
// whose RequestDigest is digest.
func Sign(priv ed25519.PrivateKey, audience string, ttl time.Duration, digest string) (string, error) {
	if audience == "" {
		audience = DefaultAudience
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   AddressOf(priv).String(),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Request: digest,
	})
	return token.SignedString(priv)
}

// Verifier checks signer tokens.
type Verifier struct {
	audience string
	leeway   time.Duration
}

type Option func(*Verifier)

// WithLeeway tolerates clock skew between signer and server.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) { v.leeway = d }
}

func NewVerifier(audience string, opts ...Option) *Verifier {
	if audience == "" {
		audience = DefaultAudience
	}
	v := &Verifier{audience: audience, leeway: 30 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Leeway is the clock skew the verifier tolerates.
func (v *Verifier) Leeway() time.Duration { return v.leeway }

// Verify checks token's signature, audience and lifetime and returns its
// claims. Tokens without an ID or a request digest are rejected; matching
// the digest and refusing reused IDs is the caller's job.
func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		sub, err := t.Claims.GetSubject()
		if err != nil {
			return nil, err
		}
		addr, err := models.ParseAddress(sub)
		if err != nil || !addr.IsAccount() {
			return nil, errors.New("subject is not an account address")
		}
		return addr.PublicKey()
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "signer token has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid signer token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid signer token")
	}
	if claims.ID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "signer token has no id")
	}
	if claims.Request == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "signer token is not bound to a request")
	}
	return claims, nil
}

// Signer is the account that signed the token.
func (c *Claims) Signer() models.Address { return models.Address(c.Subject) }
