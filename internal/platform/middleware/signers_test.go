package middleware

import (
	"bytes"
	"crypto/ed25519"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmregistry/internal/platform/logger"
	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/models"
	"wasmregistry/pkg/signer"
)

func signedRequest(t *testing.T, method, target, body string, keys ...ed25519.PrivateKey) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	digest := signer.RequestDigest(method, r.URL.RequestURI(), []byte(body))
	for _, key := range keys {
		token, err := signer.Sign(key, "", 0, digest)
		require.NoError(t, err)
		r.Header.Add(SignerHeader, token)
	}
	return r
}

func TestSigners(t *testing.T) {
	alice, aliceAddr, err := signer.GenerateKey()
	require.NoError(t, err)
	bob, bobAddr, err := signer.GenerateKey()
	require.NoError(t, err)

	var (
		seen []models.Address
		got  []byte
	)
	h := Signers(signer.NewVerifier(""), logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = host.Signers(r.Context())
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("unsigned passes through", func(t *testing.T) {
		seen = nil
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, seen)
	})

	t.Run("every signer is recorded and the body survives", func(t *testing.T) {
		r := signedRequest(t, http.MethodPost, "/v1/wasm/hello/publish", `{"a":1}`, alice, bob)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []models.Address{aliceAddr, bobAddr}, seen)
		assert.Equal(t, `{"a":1}`, string(got))
	})

	t.Run("bad token rejects", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Add(SignerHeader, "nope")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"unauthorized"`)
	})

	t.Run("token for another body rejects", func(t *testing.T) {
		r := signedRequest(t, http.MethodPost, "/v1/wasm/hello/publish", `{"a":1}`, alice)
		r.Body = io.NopCloser(strings.NewReader(`{"a":2}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "another request")
	})

	t.Run("token for another path rejects", func(t *testing.T) {
		r := signedRequest(t, http.MethodPost, "/v1/wasm/hello/publish", `{}`, alice)
		moved := httptest.NewRequest(http.MethodPost, "/v1/wasm/other/publish", strings.NewReader(`{}`))
		moved.Header = r.Header
		w := httptest.NewRecorder()
		h.ServeHTTP(w, moved)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("replayed token rejects", func(t *testing.T) {
		r := signedRequest(t, http.MethodDelete, "/v1/admin/manager", "", alice)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		require.Equal(t, http.StatusNoContent, w.Code)

		replay := httptest.NewRequest(http.MethodDelete, "/v1/admin/manager", nil)
		replay.Header = r.Header
		w = httptest.NewRecorder()
		h.ServeHTTP(w, replay)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "already used")
	})
}

func TestSignersLogsClient(t *testing.T) {
	var buf bytes.Buffer
	h := Signers(signer.NewVerifier(""), slog.New(slog.NewTextHandler(&buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	r.Header.Add(SignerHeader, "nope")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Contains(t, buf.String(), "client=Firefox/115.0")
}

func TestClientLabel(t *testing.T) {
	assert.Equal(t, "unknown", ClientLabel(""))
	assert.Equal(t, "bot", ClientLabel("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"))
	assert.Equal(t, "Firefox/115.0", ClientLabel("Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"))
}
