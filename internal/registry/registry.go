// Package registry runs each registry entry point as one atomic invocation:
// a storage transaction, an invocation env, the ledgers, and event
// publication after commit.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"wasmregistry/internal/registry/auth"
	"wasmregistry/internal/registry/contract"
	"wasmregistry/internal/registry/env"
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/metrics"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/name"
	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/version"
	"wasmregistry/internal/registry/wasm"
	dErrors "wasmregistry/pkg/domain-errors"
)

// Invocation outcomes that are not typed codes.
const (
	OutcomeOK       = "ok"
	OutcomeAbort    = "abort"
	OutcomeInternal = "internal"
)

type Registry struct {
	backend storage.Backend
	host    host.Host
	self    models.Address
	// channel is empty for the root registry.
	channel    string
	unverified *Registry

	seq       storage.Sequencer
	now       func() time.Time
	gate      *auth.Gate
	wasm      *wasm.Ledger
	contracts *contract.Ledger

	outbox    events.Outbox
	publisher events.Publisher
	log       events.Log
	hashes    *cache.Cache
	hashTTL   time.Duration

	contractOpts []contract.Option

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithOutbox appends records inside the storage transaction. The outbox
// must join the transaction the backend places in ctx.
func WithOutbox(o events.Outbox) Option {
	return func(r *Registry) { r.outbox = o }
}

// WithPublisher delivers records after commit.
func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

// WithEventLog serves the events listing.
func WithEventLog(l events.Log) Option {
	return func(r *Registry) { r.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithHashCache caches pinned-version hash lookups for ttl. Zero disables.
// A cached hash is never served past the ledger its artifact record
// expires at, whatever ttl says.
func WithHashCache(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.hashTTL = ttl
			r.hashes = cache.New(ttl, 2*ttl)
		}
	}
}

type cachedHash struct {
	hash      models.Hash
	liveUntil uint32
}

// WithRandom sets the salt source for unnamed deploys.
func WithRandom(rnd io.Reader) Option {
	return func(r *Registry) { r.contractOpts = append(r.contractOpts, contract.WithRandom(rnd)) }
}

// New wires the ledgers over backend. seq must be the sequencer the backend
// evaluates lifetimes with.
func New(backend storage.Backend, h host.Host, self models.Address, seq storage.Sequencer, opts ...Option) (*Registry, error) {
	if backend == nil {
		return nil, errors.New("storage backend is required")
	}
	if h == nil {
		return nil, errors.New("host is required")
	}
	if seq == nil {
		return nil, errors.New("sequencer is required")
	}
	if _, err := models.ParseAddress(self.String()); err != nil {
		return nil, fmt.Errorf("registry address: %w", err)
	}

	r := &Registry{
		backend: backend,
		host:    h,
		self:    self,
		seq:     seq,
		now:     time.Now,
		gate:    auth.New(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("wasmregistry/registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	if r.wasm, err = wasm.New(r.gate); err != nil {
		return nil, err
	}
	if r.contracts, err = contract.New(r.wasm, r.gate, r.contractOpts...); err != nil {
		return nil, err
	}

	// The unverified sub-registry shares the host, sinks and transactions
	// but keeps its names in its own key scope and never has a manager.
	child := *r
	child.backend = storage.Scoped(backend, name.Unverified.String())
	child.self = host.DeriveAddress(self, models.HashOf([]byte(name.Unverified)))
	child.channel = name.Unverified.String()
	child.logger = r.logger.With("channel", child.channel)
	if r.hashes != nil {
		child.hashes = cache.New(r.hashTTL, 2*r.hashTTL)
	}
	r.unverified = &child
	return r, nil
}

// Unverified is the manager-less sub-registry addressed as
// "unverified/<name>". It is nil on the sub-registry itself.
func (r *Registry) Unverified() *Registry { return r.unverified }

// Channel names the sub-registry; empty for the root.
func (r *Registry) Channel() string { return r.channel }

// Self is the registry's own address.
func (r *Registry) Self() models.Address { return r.self }

// invoke runs fn in one storage transaction. Buffered events go to the
// outbox inside the transaction and to the publisher after commit.
func (r *Registry) invoke(ctx context.Context, entryPoint string, fn func(e *env.Env) error) error {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "registry."+entryPoint,
		trace.WithAttributes(
			attribute.String("registry.entry_point", entryPoint),
			attribute.String("registry.channel", r.channel),
		))
	defer span.End()

	var records []events.Record
	err := r.backend.RunInTx(ctx, func(ctx context.Context, kv storage.KV) error {
		e := env.New(ctx, kv, r.host, r.self, r.seq.Sequence(), r.now())
		if err := fn(e); err != nil {
			return err
		}
		recs, err := e.Records()
		if err != nil {
			return err
		}
		for i := range recs {
			recs[i].Channel = r.channel
		}
		if r.outbox != nil && len(recs) > 0 {
			if err := r.outbox.Append(ctx, recs); err != nil {
				return fmt.Errorf("append outbox: %w", err)
			}
		}
		records = recs
		return nil
	})

	outcome := Outcome(err)
	r.metrics.ObserveInvocation(entryPoint, outcome, time.Since(start))
	span.SetAttributes(attribute.String("registry.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if outcome == OutcomeInternal {
			r.logger.ErrorContext(ctx, "invocation failed", "entry_point", entryPoint, "error", err)
		}
		return err
	}

	r.deliver(ctx, records)
	return nil
}

// deliver hands committed records to the publisher. Failures are logged;
// the state change already stands.
func (r *Registry) deliver(ctx context.Context, records []events.Record) {
	if r.publisher == nil || len(records) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, records); err != nil {
		r.metrics.IncrementPublishFailure("direct")
		r.logger.WarnContext(ctx, "event delivery failed", "records", len(records), "error", err)
		return
	}
	for _, rec := range records {
		r.metrics.IncrementPublished(rec.Topic, "direct")
	}
}

// Outcome labels err for metrics and spans.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case host.IsAbort(err):
		return OutcomeAbort
	}
	if code, ok := dErrors.CodeOf(err); ok {
		return code.String()
	}
	return OutcomeInternal
}

// Init records admin and claims the registry's own address under the
// self-name. The root also claims name.Unverified for its sub-registry and
// initializes it with the same admin. Repeating it with the same admin is
// a no-op.
func (r *Registry) Init(ctx context.Context, admin models.Address) error {
	err := r.invoke(ctx, "init", func(e *env.Env) error {
		if err := r.gate.Init(e, admin); err != nil {
			return err
		}
		if err := r.contracts.RegisterSelf(e, admin); err != nil {
			return err
		}
		if r.unverified == nil {
			return nil
		}
		return r.contracts.RegisterChannel(e, name.Unverified, r.unverified.self, admin)
	})
	if err != nil || r.unverified == nil {
		return err
	}
	if err := r.unverified.Init(ctx, admin); err != nil {
		return fmt.Errorf("init %s registry: %w", name.Unverified, err)
	}
	return nil
}

func (r *Registry) Publish(ctx context.Context, rawName string, author models.Address, wasmBytes []byte, rawVersion string) error {
	return r.invoke(ctx, "publish", func(e *env.Env) error {
		return r.wasm.Publish(e, rawName, author, wasmBytes, rawVersion)
	})
}

func (r *Registry) PublishHash(ctx context.Context, rawName string, author models.Address, hash models.Hash, rawVersion string) error {
	return r.invoke(ctx, "publish_hash", func(e *env.Env) error {
		return r.wasm.PublishHash(e, rawName, author, hash, rawVersion)
	})
}

// FetchHash resolves rawName at rawVersion, or at its current version when
// rawVersion is nil. Pinned lookups are cached.
func (r *Registry) FetchHash(ctx context.Context, rawName string, rawVersion *string) (models.Hash, error) {
	key := ""
	if r.hashes != nil && rawVersion != nil {
		if n, err := name.Canonicalize(rawName); err == nil {
			key = n.String() + "@" + *rawVersion
			if v, ok := r.hashes.Get(key); ok {
				if c := v.(cachedHash); r.seq.Sequence() <= c.liveUntil {
					r.metrics.IncrementHashCache(true)
					return c.hash, nil
				}
				r.hashes.Delete(key)
			}
			r.metrics.IncrementHashCache(false)
		}
	}

	var (
		hash models.Hash
		live uint32
	)
	err := r.invoke(ctx, "fetch_hash", func(e *env.Env) error {
		var err error
		hash, live, err = r.wasm.FetchHashUntil(e, rawName, rawVersion)
		return err
	})
	if err != nil {
		return models.Hash{}, err
	}
	if key != "" {
		r.hashes.SetDefault(key, cachedHash{hash: hash, liveUntil: live})
	}
	return hash, nil
}

// FetchWasm returns the artifact bytes published as rawName at rawVersion,
// or at its current version when rawVersion is nil.
func (r *Registry) FetchWasm(ctx context.Context, rawName string, rawVersion *string) ([]byte, error) {
	var wasmBytes []byte
	err := r.invoke(ctx, "fetch_wasm", func(e *env.Env) error {
		var err error
		wasmBytes, err = r.wasm.FetchWasm(e, rawName, rawVersion)
		return err
	})
	return wasmBytes, err
}

func (r *Registry) CurrentVersion(ctx context.Context, rawName string) (version.Version, error) {
	var v version.Version
	err := r.invoke(ctx, "current_version", func(e *env.Env) error {
		var err error
		v, err = r.wasm.CurrentVersion(e, rawName)
		return err
	})
	return v, err
}

func (r *Registry) Versions(ctx context.Context, rawName string) ([]models.VersionedHash, error) {
	var vs []models.VersionedHash
	err := r.invoke(ctx, "versions", func(e *env.Env) error {
		var err error
		vs, err = r.wasm.Versions(e, rawName)
		return err
	})
	return vs, err
}

// Deploy creates and claims an instance. A constructor failure commits the
// deploy and is returned alongside the result.
func (r *Registry) Deploy(ctx context.Context, req contract.DeployRequest) (contract.DeployResult, error) {
	var res contract.DeployResult
	err := r.invoke(ctx, "deploy", func(e *env.Env) error {
		var err error
		res, err = r.contracts.Deploy(e, req)
		return err
	})
	if err != nil {
		return contract.DeployResult{}, err
	}
	return res, res.InitErr
}

func (r *Registry) DeployWithoutClaiming(ctx context.Context, req contract.UnnamedDeployRequest) (contract.DeployResult, error) {
	var res contract.DeployResult
	err := r.invoke(ctx, "deploy_without_claiming", func(e *env.Env) error {
		var err error
		res, err = r.contracts.DeployWithoutClaiming(e, req)
		return err
	})
	if err != nil {
		return contract.DeployResult{}, err
	}
	return res, res.InitErr
}

func (r *Registry) ClaimContractID(ctx context.Context, rawName string, addr, owner models.Address) error {
	return r.invoke(ctx, "claim_contract_id", func(e *env.Env) error {
		return r.contracts.ClaimContractID(e, rawName, addr, owner)
	})
}

func (r *Registry) RegisterContract(ctx context.Context, rawName string, addr, owner models.Address) error {
	return r.invoke(ctx, "register_contract", func(e *env.Env) error {
		return r.contracts.RegisterContract(e, rawName, addr, owner)
	})
}

func (r *Registry) FetchContractID(ctx context.Context, rawName string) (models.Address, error) {
	var addr models.Address
	err := r.invoke(ctx, "fetch_contract_id", func(e *env.Env) error {
		var err error
		addr, err = r.contracts.FetchContractID(e, rawName)
		return err
	})
	return addr, err
}

func (r *Registry) FetchContractOwner(ctx context.Context, rawName string) (models.Address, error) {
	var owner models.Address
	err := r.invoke(ctx, "fetch_contract_owner", func(e *env.Env) error {
		var err error
		owner, err = r.contracts.FetchContractOwner(e, rawName)
		return err
	})
	return owner, err
}

func (r *Registry) DevDeploy(ctx context.Context, req contract.DevDeployRequest) (contract.DeployResult, error) {
	var res contract.DeployResult
	err := r.invoke(ctx, "dev_deploy", func(e *env.Env) error {
		var err error
		res, err = r.contracts.DevDeploy(e, req)
		return err
	})
	if err != nil {
		return contract.DeployResult{}, err
	}
	return res, res.InitErr
}

func (r *Registry) UpgradeContract(ctx context.Context, rawName, wasmName string, rawVersion, upgradeFn *string) (models.Address, error) {
	var addr models.Address
	err := r.invoke(ctx, "upgrade_contract", func(e *env.Env) error {
		var err error
		addr, err = r.contracts.UpgradeContract(e, rawName, wasmName, rawVersion, upgradeFn)
		return err
	})
	return addr, err
}

func (r *Registry) Admin(ctx context.Context) (models.Address, error) {
	var admin models.Address
	err := r.invoke(ctx, "admin", func(e *env.Env) error {
		var err error
		admin, err = r.gate.Admin(e)
		return err
	})
	return admin, err
}

func (r *Registry) Manager(ctx context.Context) (*models.Address, error) {
	var manager *models.Address
	err := r.invoke(ctx, "manager", func(e *env.Env) error {
		var err error
		manager, err = r.gate.Manager(e)
		return err
	})
	return manager, err
}

func (r *Registry) SetManager(ctx context.Context, manager models.Address) error {
	return r.invoke(ctx, "set_manager", func(e *env.Env) error {
		return r.gate.SetManager(e, manager)
	})
}

func (r *Registry) RemoveManager(ctx context.Context) error {
	return r.invoke(ctx, "remove_manager", func(e *env.Env) error {
		return r.gate.RemoveManager(e)
	})
}

// Events lists recent records, newest first. Without an event log the
// list is empty.
func (r *Registry) Events(ctx context.Context, topic string, limit int) ([]events.Record, error) {
	if r.log == nil {
		return nil, nil
	}
	return r.log.List(ctx, topic, limit)
}
