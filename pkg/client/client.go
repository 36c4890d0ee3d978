// Package client calls a registry server over HTTP.
package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/models"
	dErrors "wasmregistry/pkg/domain-errors"
	"wasmregistry/pkg/platform/httputil"
	api "wasmregistry/pkg/registryapi"
	"wasmregistry/pkg/signer"
)

// signerHeader matches the header the server's signer middleware reads.
const signerHeader = "X-Signer"

// DefaultUserAgent identifies the client in server logs.
const DefaultUserAgent = "wasmregistry-client/1.0"

type Client struct {
	baseURL   *url.URL
	http      *http.Client
	keys      []ed25519.PrivateKey
	audience  string
	ttl       time.Duration
	userAgent string
	// channel scopes every call to a sub-registry; empty is the root.
	channel string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSigners signs every request with keys.
func WithSigners(keys ...ed25519.PrivateKey) Option {
	return func(c *Client) { c.keys = append(c.keys, keys...) }
}

func WithAudience(aud string) Option {
	return func(c *Client) { c.audience = aud }
}

func WithTokenTTL(d time.Duration) Option {
	return func(c *Client) { c.ttl = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q needs a scheme and host", baseURL)
	}
	c := &Client{
		baseURL:   u,
		http:      &http.Client{Timeout: 30 * time.Second},
		audience:  signer.DefaultAudience,
		ttl:       signer.DefaultTTL,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Signed returns a copy of c that signs with keys instead.
func (c *Client) Signed(keys ...ed25519.PrivateKey) *Client {
	cp := *c
	cp.keys = slices.Clone(keys)
	return &cp
}

// Channel returns a copy of c whose calls go to the named sub-registry,
// e.g. "unverified". Names passed as "channel/name" pick their channel
// per call instead.
func (c *Client) Channel(channel string) *Client {
	cp := *c
	cp.channel = channel
	return &cp
}

// SplitName splits a "channel/name" reference. A bare name has no channel.
func SplitName(ref string) (channel, name string) {
	if ch, n, ok := strings.Cut(ref, "/"); ok {
		return ch, n
	}
	return "", ref
}

// APIError is a failed response. It unwraps to the typed registry error,
// or to a host abort, so callers can match with dErrors.HasCode and
// host.IsAbort.
type APIError struct {
	Status int
	Body   httputil.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Description != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Body.Error, e.Body.Description)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Body.Error)
}

func (e *APIError) Unwrap() error {
	if e.Body.Error == httputil.AbortError {
		return &host.AbortError{Reason: "rejected by server"}
	}
	if e.Body.Code != 0 {
		return dErrors.New(dErrors.Code(e.Body.Code), e.Body.Description)
	}
	return nil
}

// DeployError is a deploy whose constructor failed. The instance exists.
type DeployError struct {
	*APIError
	ContractID models.Address
}

func (e *DeployError) Unwrap() error { return e.APIError }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	raw, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send performs one request, signing it with every key, and returns the
// raw response body of a successful call.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := *c.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	digest := signer.RequestDigest(method, req.URL.RequestURI(), payload)
	for _, key := range c.keys {
		token, err := signer.Sign(key, c.audience, c.ttl, digest)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Add(signerHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var withAddr struct {
			httputil.ErrorResponse
			ContractID models.Address `json:"contract_id"`
		}
		if err := json.Unmarshal(raw, &withAddr); err != nil {
			apiErr.Body = httputil.ErrorResponse{Error: http.StatusText(resp.StatusCode), Description: strings.TrimSpace(string(raw))}
			return nil, apiErr
		}
		apiErr.Body = withAddr.ErrorResponse
		if withAddr.ContractID != "" {
			return nil, &DeployError{APIError: apiErr, ContractID: withAddr.ContractID}
		}
		return nil, apiErr
	}
	return raw, nil
}

// root is the /v1 prefix of channel, or of the client's own channel when
// channel is empty.
func (c *Client) root(channel string) string {
	if channel == "" {
		channel = c.channel
	}
	if channel == "" {
		return "/v1"
	}
	return "/v1/" + url.PathEscape(channel)
}

func (c *Client) wasmPath(ref, suffix string) string {
	channel, name := SplitName(ref)
	return c.root(channel) + "/wasm/" + url.PathEscape(name) + suffix
}

func (c *Client) contractPath(ref, suffix string) string {
	channel, name := SplitName(ref)
	return c.root(channel) + "/contracts/" + url.PathEscape(name) + suffix
}

// deployRoot picks the registry a deploy goes to from the wasm reference
// and strips the channel from both names. A contract name in another
// channel is rejected.
func (c *Client) deployRoot(wasmName, contractName *string) (string, error) {
	channel, bare := SplitName(*wasmName)
	*wasmName = bare
	if contractName != nil {
		cch, cname := SplitName(*contractName)
		if cch != "" && cch != channel {
			return "", fmt.Errorf("contract %q and wasm %q are in different channels", *contractName, channel+"/"+bare)
		}
		*contractName = cname
	}
	return c.root(channel), nil
}

func (c *Client) Publish(ctx context.Context, name string, author models.Address, wasm []byte, version string) error {
	return c.do(ctx, http.MethodPost, c.wasmPath(name, "/publish"), nil,
		api.PublishRequest{Author: author.String(), Version: version, Wasm: wasm}, nil)
}

func (c *Client) PublishHash(ctx context.Context, name string, author models.Address, hash models.Hash, version string) error {
	return c.do(ctx, http.MethodPost, c.wasmPath(name, "/publish-hash"), nil,
		api.PublishHashRequest{Author: author.String(), Version: version, Hash: hash}, nil)
}

// FetchHash resolves name at version, or at its current version when
// version is nil.
func (c *Client) FetchHash(ctx context.Context, name string, version *string) (models.Hash, error) {
	var q url.Values
	if version != nil {
		q = url.Values{"version": {*version}}
	}
	var resp api.HashResponse
	err := c.do(ctx, http.MethodGet, c.wasmPath(name, "/hash"), q, nil, &resp)
	return resp.Hash, err
}

// FetchWasm downloads the artifact published as name at version, or at
// its current version when version is nil.
func (c *Client) FetchWasm(ctx context.Context, name string, version *string) ([]byte, error) {
	var q url.Values
	if version != nil {
		q = url.Values{"version": {*version}}
	}
	return c.send(ctx, http.MethodGet, c.wasmPath(name, "/wasm"), q, nil)
}

func (c *Client) CurrentVersion(ctx context.Context, name string) (string, error) {
	var resp api.VersionResponse
	err := c.do(ctx, http.MethodGet, c.wasmPath(name, "/version"), nil, nil, &resp)
	return resp.Version, err
}

func (c *Client) Versions(ctx context.Context, name string) ([]models.VersionedHash, error) {
	var resp api.VersionsResponse
	err := c.do(ctx, http.MethodGet, c.wasmPath(name, "/versions"), nil, nil, &resp)
	return resp.Versions, err
}

// Deploy deploys req.WasmName. A "channel/name" wasm reference sends the
// deploy to that channel's registry.
func (c *Client) Deploy(ctx context.Context, req api.DeployRequest) (models.Address, error) {
	root, err := c.deployRoot(&req.WasmName, &req.ContractName)
	if err != nil {
		return "", err
	}
	var resp api.DeployResponse
	err = c.do(ctx, http.MethodPost, root+"/contracts/deploy", nil, req, &resp)
	return resp.ContractID, err
}

func (c *Client) DeployWithoutClaiming(ctx context.Context, req api.UnnamedDeployRequest) (models.Address, error) {
	root, err := c.deployRoot(&req.WasmName, nil)
	if err != nil {
		return "", err
	}
	var resp api.DeployResponse
	err = c.do(ctx, http.MethodPost, root+"/contracts/deploy-unnamed", nil, req, &resp)
	return resp.ContractID, err
}

func (c *Client) ClaimContractID(ctx context.Context, name string, addr, owner models.Address) error {
	return c.do(ctx, http.MethodPost, c.contractPath(name, "/claim"), nil,
		api.ClaimRequest{ContractID: addr.String(), Owner: owner.String()}, nil)
}

func (c *Client) RegisterContract(ctx context.Context, name string, addr, owner models.Address) error {
	return c.do(ctx, http.MethodPost, c.contractPath(name, "/register"), nil,
		api.ClaimRequest{ContractID: addr.String(), Owner: owner.String()}, nil)
}

func (c *Client) FetchContractID(ctx context.Context, name string) (models.Address, error) {
	var resp api.ContractResponse
	err := c.do(ctx, http.MethodGet, c.contractPath(name, ""), nil, nil, &resp)
	return resp.ContractID, err
}

func (c *Client) FetchContractOwner(ctx context.Context, name string) (models.Address, error) {
	var resp api.OwnerResponse
	err := c.do(ctx, http.MethodGet, c.contractPath(name, "/owner"), nil, nil, &resp)
	return resp.Owner, err
}

func (c *Client) DevDeploy(ctx context.Context, name string, req api.DevDeployRequest) (models.Address, error) {
	var resp api.DeployResponse
	err := c.do(ctx, http.MethodPost, c.contractPath(name, "/dev-deploy"), nil, req, &resp)
	return resp.ContractID, err
}

// UpgradeContract upgrades the instance claimed as name. The wasm may carry
// the instance's own channel prefix.
func (c *Client) UpgradeContract(ctx context.Context, name string, req api.UpgradeRequest) (models.Address, error) {
	if wch, wasm := SplitName(req.WasmName); wch != "" {
		if ch, _ := SplitName(name); ch != wch {
			return "", fmt.Errorf("wasm %q is not in the channel of %q", req.WasmName, name)
		}
		req.WasmName = wasm
	}
	var resp api.DeployResponse
	err := c.do(ctx, http.MethodPost, c.contractPath(name, "/upgrade"), nil, req, &resp)
	return resp.ContractID, err
}

func (c *Client) Roles(ctx context.Context) (api.RolesResponse, error) {
	var resp api.RolesResponse
	err := c.do(ctx, http.MethodGet, c.root("")+"/admin/manager", nil, nil, &resp)
	return resp, err
}

func (c *Client) SetManager(ctx context.Context, manager models.Address) error {
	return c.do(ctx, http.MethodPut, c.root("")+"/admin/manager", nil, api.ManagerRequest{Manager: manager.String()}, nil)
}

func (c *Client) RemoveManager(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, c.root("")+"/admin/manager", nil, nil, nil)
}

// Events lists recent events, newest first. An empty topic matches all and
// a zero limit uses the server default.
func (c *Client) Events(ctx context.Context, topic string, limit int) (api.EventsResponse, error) {
	q := url.Values{}
	if topic != "" {
		q.Set("topic", topic)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp api.EventsResponse
	err := c.do(ctx, http.MethodGet, c.root("")+"/events", q, nil, &resp)
	return resp, err
}

// IsNotFound reports whether err is one of the registry's not-found codes.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
