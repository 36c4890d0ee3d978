package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmregistry/internal/registry/models"
	dErrors "wasmregistry/pkg/domain-errors"
)

func TestSignAndVerify(t *testing.T) {
	priv, addr, err := GenerateKey()
	require.NoError(t, err)
	assert.True(t, addr.IsAccount())
	assert.Equal(t, addr, AddressOf(priv))

	digest := RequestDigest("POST", "/v1/wasm/hello/publish", []byte(`{"version":"0.0.1"}`))
	token, err := Sign(priv, "", 0, digest)
	require.NoError(t, err)

	got, err := NewVerifier("").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, addr, got.Signer())
	assert.Equal(t, digest, got.Request)
	assert.NotEmpty(t, got.ID)

	again, err := Sign(priv, "", 0, digest)
	require.NoError(t, err)
	second, err := NewVerifier("").Verify(again)
	require.NoError(t, err)
	assert.NotEqual(t, got.ID, second.ID, "every token gets its own id")
}

func TestRequestDigest(t *testing.T) {
	base := RequestDigest("POST", "/v1/wasm/hello/publish", []byte("body"))
	assert.Equal(t, base, RequestDigest("POST", "/v1/wasm/hello/publish", []byte("body")))
	assert.Len(t, base, 64)

	for name, other := range map[string]string{
		"method": RequestDigest("PUT", "/v1/wasm/hello/publish", []byte("body")),
		"path":   RequestDigest("POST", "/v1/wasm/other/publish", []byte("body")),
		"query":  RequestDigest("POST", "/v1/wasm/hello/publish?x=1", []byte("body")),
		"body":   RequestDigest("POST", "/v1/wasm/hello/publish", []byte("body2")),
	} {
		assert.NotEqual(t, base, other, name)
	}
}

func TestKeyEncoding(t *testing.T) {
	priv, _, err := GenerateKey()
	require.NoError(t, err)

	decoded, err := DecodeKey(EncodeKey(priv))
	require.NoError(t, err)
	assert.True(t, priv.Equal(decoded))

	_, err = DecodeKey("zz")
	assert.Error(t, err)
	_, err = DecodeKey("abcd")
	assert.Error(t, err)
}

func TestVerifyRejects(t *testing.T) {
	priv, _, err := GenerateKey()
	require.NoError(t, err)
	v := NewVerifier(DefaultAudience, WithLeeway(0))

	t.Run("wrong audience", func(t *testing.T) {
		token, err := Sign(priv, "elsewhere", time.Minute, "digest")
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("expired", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
			Subject:   AddressOf(priv).String(),
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})
		signed, err := token.SignedString(priv)
		require.NoError(t, err)
		_, err = v.Verify(signed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("subject is someone else", func(t *testing.T) {
		otherPub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
			Subject:   models.AccountAddress(otherPub).String(),
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signed, err := token.SignedString(priv)
		require.NoError(t, err)
		_, err = v.Verify(signed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("contract subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
			Subject:   models.ContractAddress(models.HashOf([]byte("c"))).String(),
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signed, err := token.SignedString(priv)
		require.NoError(t, err)
		_, err = v.Verify(signed)
		assert.Error(t, err)
	})

	t.Run("hmac token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   AddressOf(priv).String(),
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signed, err := token.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = v.Verify(signed)
		assert.Error(t, err)
	})

	t.Run("not bound to a request", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
			Subject:   AddressOf(priv).String(),
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			ID:        "id-1",
		})
		signed, err := token.SignedString(priv)
		require.NoError(t, err)
		_, err = v.Verify(signed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "not bound")
	})

	t.Run("no id", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   AddressOf(priv).String(),
				Audience:  jwt.ClaimStrings{DefaultAudience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			Request: "digest",
		})
		signed, err := token.SignedString(priv)
		require.NoError(t, err)
		_, err = v.Verify(signed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(strings.Repeat("x", 20))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
