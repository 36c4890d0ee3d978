package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"wasmregistry/internal/platform/middleware"
	"wasmregistry/internal/registry"
	"wasmregistry/internal/registry/contract"
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/name"
	"wasmregistry/internal/registry/version"
	dErrors "wasmregistry/pkg/domain-errors"
	"wasmregistry/pkg/platform/httputil"
	api "wasmregistry/pkg/registryapi"
)

const (
	// MaxBodyBytes bounds request bodies, artifact uploads included.
	MaxBodyBytes = 8 << 20

	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Service is the registry as seen by the transport.
type Service interface {
	Publish(ctx context.Context, rawName string, author models.Address, wasm []byte, rawVersion string) error
	PublishHash(ctx context.Context, rawName string, author models.Address, hash models.Hash, rawVersion string) error
	FetchHash(ctx context.Context, rawName string, rawVersion *string) (models.Hash, error)
	FetchWasm(ctx context.Context, rawName string, rawVersion *string) ([]byte, error)
	CurrentVersion(ctx context.Context, rawName string) (version.Version, error)
	Versions(ctx context.Context, rawName string) ([]models.VersionedHash, error)
	Deploy(ctx context.Context, req contract.DeployRequest) (contract.DeployResult, error)
	DeployWithoutClaiming(ctx context.Context, req contract.UnnamedDeployRequest) (contract.DeployResult, error)
	ClaimContractID(ctx context.Context, rawName string, addr, owner models.Address) error
	RegisterContract(ctx context.Context, rawName string, addr, owner models.Address) error
	FetchContractID(ctx context.Context, rawName string) (models.Address, error)
	FetchContractOwner(ctx context.Context, rawName string) (models.Address, error)
	DevDeploy(ctx context.Context, req contract.DevDeployRequest) (contract.DeployResult, error)
	UpgradeContract(ctx context.Context, rawName, wasmName string, rawVersion, upgradeFn *string) (models.Address, error)
	Admin(ctx context.Context) (models.Address, error)
	Manager(ctx context.Context) (*models.Address, error)
	SetManager(ctx context.Context, manager models.Address) error
	RemoveManager(ctx context.Context) error
	Events(ctx context.Context, topic string, limit int) ([]events.Record, error)
}

var _ Service = (*registry.Registry)(nil)

// Handler serves the registry entry points over HTTP.
type Handler struct {
	svc      Service
	logger   *slog.Logger
	verifier middleware.SignerVerifier
	channels map[string]Service
}

type Option func(*Handler)

// WithChannel serves svc under /v1/{channel}, e.g. the unverified
// sub-registry at /v1/unverified/wasm/{name}/hash.
func WithChannel(channel string, svc Service) Option {
	return func(h *Handler) {
		if svc != nil {
			h.channels[channel] = svc
		}
	}
}

func New(svc Service, verifier middleware.SignerVerifier, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: logger, verifier: verifier, channels: make(map[string]Service)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the /v1 routes on r.
func (h *Handler) Register(r chi.Router) {
	v1 := chi.NewRouter()
	v1.Use(chimw.RequestID)
	v1.Use(chimw.Recoverer)
	v1.Use(middleware.MaxBodySize(MaxBodyBytes))
	v1.Use(middleware.Signers(h.verifier, h.logger))

	h.routes(v1)
	for channel, svc := range h.channels {
		sub := &Handler{svc: svc, logger: h.logger.With("channel", channel), verifier: h.verifier}
		v1.Route("/"+channel, sub.routes)
	}

	r.Mount("/v1", v1)
}

func (h *Handler) routes(v1 chi.Router) {
	v1.Route("/wasm/{name}", func(r chi.Router) {
		r.Post("/publish", h.handlePublish)
		r.Post("/publish-hash", h.handlePublishHash)
		r.Get("/hash", h.handleFetchHash)
		r.Get("/wasm", h.handleFetchWasm)
		r.Get("/version", h.handleCurrentVersion)
		r.Get("/versions", h.handleVersions)
	})

	v1.Post("/contracts/deploy", h.handleDeploy)
	v1.Post("/contracts/deploy-unnamed", h.handleDeployUnnamed)
	v1.Route("/contracts/{name}", func(r chi.Router) {
		r.Get("/", h.handleFetchContractID)
		r.Get("/owner", h.handleFetchContractOwner)
		r.Post("/claim", h.handleClaim(false))
		r.Post("/register", h.handleClaim(true))
		r.Post("/dev-deploy", h.handleDevDeploy)
		r.Post("/upgrade", h.handleUpgrade)
	})

	v1.Get("/admin/manager", h.handleGetRoles)
	v1.Put("/admin/manager", h.handleSetManager)
	v1.Delete("/admin/manager", h.handleRemoveManager)

	v1.Get("/events", h.handleEvents)
}

// fail writes err, logging anything that is not a caller mistake.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := httputil.Describe(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err,
		)
	}
	httputil.WriteJSON(w, status, body)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return dErrors.New(dErrors.CodeBadRequest, "request body too large")
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

func parseAddress(field, raw string) (models.Address, error) {
	if raw == "" {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "%s is required", field)
	}
	addr, err := models.ParseAddress(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, field)
	}
	return addr, nil
}

func parseOptionalAddress(field string, raw *string) (*models.Address, error) {
	if raw == nil {
		return nil, nil
	}
	addr, err := parseAddress(field, *raw)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// canonical echoes the canonical form of a name the service accepted.
func canonical(raw string) string {
	if n, err := name.Canonicalize(raw); err == nil {
		return n.String()
	}
	return raw
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req api.PublishRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	author, err := parseAddress("author", req.Author)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(req.Wasm) == 0 {
		h.fail(w, r, dErrors.New(dErrors.CodeBadRequest, "wasm is required"))
		return
	}
	if err := h.svc.Publish(r.Context(), chi.URLParam(r, "name"), author, req.Wasm, req.Version); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePublishHash(w http.ResponseWriter, r *http.Request) {
	var req api.PublishHashRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	author, err := parseAddress("author", req.Author)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.PublishHash(r.Context(), chi.URLParam(r, "name"), author, req.Hash, req.Version); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func versionQuery(r *http.Request) *string {
	q := r.URL.Query()
	if !q.Has("version") {
		return nil
	}
	v := q.Get("version")
	return &v
}

func (h *Handler) handleFetchHash(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "name")
	v := versionQuery(r)
	hash, err := h.svc.FetchHash(r.Context(), raw, v)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := api.HashResponse{Name: canonical(raw), Hash: hash}
	if v != nil {
		resp.Version = *v
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleFetchWasm streams the artifact bytes.
func (h *Handler) handleFetchWasm(w http.ResponseWriter, r *http.Request) {
	wasm, err := h.svc.FetchWasm(r.Context(), chi.URLParam(r, "name"), versionQuery(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/wasm")
	w.Header().Set("Content-Length", strconv.Itoa(len(wasm)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wasm)
}

func (h *Handler) handleCurrentVersion(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "name")
	v, err := h.svc.CurrentVersion(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, api.VersionResponse{Name: canonical(raw), Version: v.String()})
}

func (h *Handler) handleVersions(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "name")
	vs, err := h.svc.Versions(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, api.VersionsResponse{Name: canonical(raw), Versions: vs})
}

// deployed writes a deploy outcome. A constructor failure still reports
// the instance address.
func (h *Handler) deployed(w http.ResponseWriter, r *http.Request, status int, res contract.DeployResult, err error) {
	if err != nil {
		if res.Address == "" {
			h.fail(w, r, err)
			return
		}
		code, body := httputil.Describe(err)
		httputil.WriteJSON(w, code, struct {
			httputil.ErrorResponse
			ContractID models.Address `json:"contract_id"`
		}{body, res.Address})
		return
	}
	httputil.WriteJSON(w, status, api.DeployResponse{ContractID: res.Address})
}

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req api.DeployRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	deployer, err := parseOptionalAddress("deployer", req.Deployer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.Deploy(r.Context(), contract.DeployRequest{
		WasmName:     req.WasmName,
		Version:      req.Version,
		ContractName: req.ContractName,
		Owner:        owner,
		Deployer:     deployer,
		Salt:         req.Salt,
		InitArgs:     req.InitArgs,
	})
	h.deployed(w, r, http.StatusCreated, res, err)
}

func (h *Handler) handleDeployUnnamed(w http.ResponseWriter, r *http.Request) {
	var req api.UnnamedDeployRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	deployer, err := parseAddress("deployer", req.Deployer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.DeployWithoutClaiming(r.Context(), contract.UnnamedDeployRequest{
		WasmName: req.WasmName,
		Version:  req.Version,
		Deployer: deployer,
		Salt:     req.Salt,
		InitArgs: req.InitArgs,
	})
	h.deployed(w, r, http.StatusCreated, res, err)
}

// handleClaim serves claim_contract_id, or register_contract when legacy is
// set.
func (h *Handler) handleClaim(legacy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.ClaimRequest
		if err := decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		addr, err := parseAddress("contract_id", req.ContractID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		owner, err := parseAddress("owner", req.Owner)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		claim := h.svc.ClaimContractID
		if legacy {
			claim = h.svc.RegisterContract
		}
		if err := claim(r.Context(), chi.URLParam(r, "name"), addr, owner); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleFetchContractID(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "name")
	addr, err := h.svc.FetchContractID(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, api.ContractResponse{Name: canonical(raw), ContractID: addr})
}

func (h *Handler) handleFetchContractOwner(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "name")
	owner, err := h.svc.FetchContractOwner(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, api.OwnerResponse{Name: canonical(raw), Owner: owner})
}

func (h *Handler) handleDevDeploy(w http.ResponseWriter, r *http.Request) {
	var req api.DevDeployRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(req.Wasm) == 0 {
		h.fail(w, r, dErrors.New(dErrors.CodeBadRequest, "wasm is required"))
		return
	}
	owner, err := parseOptionalAddress("owner", req.Owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.DevDeploy(r.Context(), contract.DevDeployRequest{
		ContractName: chi.URLParam(r, "name"),
		Wasm:         req.Wasm,
		Owner:        owner,
		UpgradeFn:    req.UpgradeFn,
	})
	h.deployed(w, r, http.StatusOK, res, err)
}

func (h *Handler) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	var req api.UpgradeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	addr, err := h.svc.UpgradeContract(r.Context(), chi.URLParam(r, "name"), req.WasmName, req.Version, req.UpgradeFn)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, api.DeployResponse{ContractID: addr})
}

func (h *Handler) handleGetRoles(w http.ResponseWriter, r *http.Request) {
	admin, err := h.svc.Admin(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	manager, err := h.svc.Manager(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, api.RolesResponse{Admin: admin, Manager: manager})
}

func (h *Handler) handleSetManager(w http.ResponseWriter, r *http.Request) {
	var req api.ManagerRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	manager, err := parseAddress("manager", req.Manager)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.SetManager(r.Context(), manager); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveManager(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveManager(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(w, r, dErrors.Newf(dErrors.CodeBadRequest, "invalid limit %q", raw))
			return
		}
		limit = min(n, maxEventLimit)
	}
	topic := q.Get("topic")
	if topic != "" && !validTopic(topic) {
		h.fail(w, r, dErrors.Newf(dErrors.CodeBadRequest, "unknown topic %q", topic))
		return
	}
	records, err := h.svc.Events(r.Context(), topic, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if records == nil {
		records = []events.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, api.EventsResponse{Events: records})
}

func validTopic(topic string) bool { return slices.Contains(events.Topics, topic) }
