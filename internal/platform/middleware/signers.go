// Package middleware holds the HTTP middleware shared by registry routes.
package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mssola/useragent"
	"github.com/patrickmn/go-cache"

	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/models"
	dErrors "wasmregistry/pkg/domain-errors"
	"wasmregistry/pkg/platform/httputil"
	"wasmregistry/pkg/signer"
)

// SignerHeader carries one signer token per header value.
const SignerHeader = "X-Signer"

// SignerVerifier validates a signer token and returns its claims.
type SignerVerifier interface {
	Verify(token string) (*signer.Claims, error)
	Leeway() time.Duration
}

// Signers verifies every X-Signer header and records the signing accounts
// in the request context. Requests without signers pass through unsigned.
// A token must carry the digest of this request's method, URI and body,
// and its ID is accepted once until the token expires. A single bad token
// rejects the request.
func Signers(verifier SignerVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	seen := cache.New(signer.DefaultTTL, time.Minute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokens := r.Header.Values(SignerHeader)
			if len(tokens) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			reject := func(err error) {
				logger.WarnContext(ctx, "rejected signer token",
					"error", err,
					"client", ClientLabel(r.UserAgent()),
					"request_id", chimw.GetReqID(ctx),
				)
				httputil.WriteError(w, err)
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					reject(dErrors.New(dErrors.CodeBadRequest, "request body too large"))
					return
				}
				reject(dErrors.Wrap(err, dErrors.CodeBadRequest, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			digest := signer.RequestDigest(r.Method, r.URL.RequestURI(), body)

			signers := make([]models.Address, 0, len(tokens))
			for _, token := range tokens {
				claims, err := verifier.Verify(strings.TrimSpace(token))
				if err != nil {
					reject(err)
					return
				}
				if claims.Request != digest {
					reject(dErrors.New(dErrors.CodeUnauthorized, "signer token was issued for another request"))
					return
				}
				ttl := verifier.Leeway()
				if claims.ExpiresAt != nil {
					ttl += time.Until(claims.ExpiresAt.Time)
				}
				if err := seen.Add(claims.Subject+"/"+claims.ID, struct{}{}, max(ttl, time.Second)); err != nil {
					reject(dErrors.New(dErrors.CodeUnauthorized, "signer token was already used"))
					return
				}
				signers = append(signers, claims.Signer())
			}
			next.ServeHTTP(w, r.WithContext(host.WithSigners(ctx, signers...)))
		})
	}
}

// ClientLabel names the calling client for logs: the product of its
// User-Agent, "bot" for crawlers, or "unknown".
func ClientLabel(ua string) string {
	if ua == "" {
		return "unknown"
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return "bot"
	}
	name, version := parsed.Browser()
	if name == "" {
		return "unknown"
	}
	if version == "" {
		return name
	}
	return name + "/" + version
}

// MaxBodySize caps request bodies at n bytes.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
