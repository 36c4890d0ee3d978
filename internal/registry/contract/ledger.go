// Package contract binds names to deployed instances and drives deploys and
// upgrades through the host.
package contract

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"wasmregistry/internal/registry/env"
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/name"
	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/version"
	dErrors "wasmregistry/pkg/domain-errors"
)

// WasmResolver resolves published artifacts.
type WasmResolver interface {
	FetchHashAndBump(e *env.Env, rawName string, rawVersion *string) (models.Hash, version.Version, error)
}

// Gate is the slice of the authorization gate the ledger needs.
type Gate interface {
	AuthorizeDeploy(e *env.Env, owner models.Address, deployer *models.Address) error
	AuthorizeClaim(e *env.Env, owner models.Address) error
	AuthorizeDeployer(e *env.Env, deployer models.Address) error
}

type Ledger struct {
	wasm   WasmResolver
	gate   Gate
	random io.Reader
}

type Option func(*Ledger)

// WithRandom sets the source of salts for unnamed deploys.
func WithRandom(r io.Reader) Option {
	return func(l *Ledger) { l.random = r }
}

func New(wasm WasmResolver, gate Gate, opts ...Option) (*Ledger, error) {
	if wasm == nil {
		return nil, errors.New("wasm resolver is required")
	}
	if gate == nil {
		return nil, errors.New("authorization gate is required")
	}
	l := &Ledger{wasm: wasm, gate: gate, random: rand.Reader}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// DeployRequest names a published artifact and the instance to create.
type DeployRequest struct {
	WasmName     string
	Version      *string
	ContractName string
	Owner        models.Address
	// Deployer defaults to the registry itself and must sign when set.
	Deployer *models.Address
	// Salt defaults to the hash of the canonical contract name.
	Salt *models.Hash
	// InitArgs are passed to the constructor; nil skips the call.
	InitArgs []any
}

// UnnamedDeployRequest creates an instance without claiming a name.
type UnnamedDeployRequest struct {
	WasmName string
	Version  *string
	Deployer models.Address
	// Salt defaults to random bytes.
	Salt     *models.Hash
	InitArgs []any
}

// DevDeployRequest uploads Wasm and deploys or upgrades ContractName.
type DevDeployRequest struct {
	ContractName string
	Wasm         []byte
	// Owner is required the first time a name is dev-deployed.
	Owner     *models.Address
	UpgradeFn *string
}

// DeployResult is the created instance. InitErr carries a constructor
// failure: the instance exists and any name claim stands.
type DeployResult struct {
	Address models.Address
	InitErr error
}

// SaltFor is the default deploy salt for a canonical name.
func SaltFor(n name.Name) models.Hash { return models.HashOf([]byte(n)) }

func (l *Ledger) instance(e *env.Env, n name.Name) (models.InstanceRecord, error) {
	rec, ok, err := storage.Contracts.Get(e.Context(), e.Storage(), n)
	if err != nil {
		return models.InstanceRecord{}, fmt.Errorf("load contract %s: %w", n, err)
	}
	if !ok {
		return models.InstanceRecord{}, dErrors.Newf(dErrors.CodeNoSuchContractDeployed, "no contract registered as %s", n)
	}
	return rec, nil
}

func (l *Ledger) requireUnclaimed(e *env.Env, n name.Name) error {
	taken, err := storage.Contracts.Has(e.Context(), e.Storage(), n)
	if err != nil {
		return fmt.Errorf("check contract %s: %w", n, err)
	}
	if taken {
		return dErrors.Newf(dErrors.CodeAlreadyDeployed, "%s is already registered", n)
	}
	return nil
}

func (l *Ledger) register(e *env.Env, n name.Name, addr, owner models.Address) error {
	rec := models.InstanceRecord{Address: addr, Owner: owner}
	if err := storage.Contracts.Set(e.Context(), e.Storage(), n, rec); err != nil {
		return err
	}
	if err := storage.Contracts.Bump(e.Context(), e.Storage(), n); err != nil {
		return err
	}
	e.Emit(events.Register{ContractName: n.String(), ContractID: addr})
	return nil
}

func (l *Ledger) instantiate(e *env.Env, deployer models.Address, salt, hash models.Hash, initArgs []any) (DeployResult, error) {
	addr, err := e.Host().Deploy(e.Context(), deployer, salt, hash)
	if err != nil {
		return DeployResult{}, fmt.Errorf("instantiate %s: %w", hash, err)
	}
	res := DeployResult{Address: addr}
	if initArgs != nil {
		if _, err := e.Host().Invoke(e.Context(), addr, host.FnConstructor, initArgs); err != nil {
			res.InitErr = dErrors.Wrap(err, dErrors.CodeInitInvokeFailed, "constructor of "+addr.String())
		}
	}
	return res, nil
}

// FetchContractID returns the address registered under rawName.
func (l *Ledger) FetchContractID(e *env.Env, rawName string) (models.Address, error) {
	n, err := name.Canonicalize(rawName)
	if err != nil {
		return "", err
	}
	rec, err := l.instance(e, n)
	return rec.Address, err
}

// FetchContractOwner returns the owner registered under rawName.
func (l *Ledger) FetchContractOwner(e *env.Env, rawName string) (models.Address, error) {
	n, err := name.Canonicalize(rawName)
	if err != nil {
		return "", err
	}
	rec, err := l.instance(e, n)
	return rec.Owner, err
}

// ClaimContractID binds rawName to an existing instance owned by owner.
func (l *Ledger) ClaimContractID(e *env.Env, rawName string, addr, owner models.Address) error {
	n, err := name.Canonicalize(rawName)
	if err != nil {
		return err
	}
	if err := l.requireUnclaimed(e, n); err != nil {
		return err
	}
	if err := l.gate.AuthorizeClaim(e, owner); err != nil {
		return err
	}
	return l.register(e, n, addr, owner)
}

// RegisterSelf claims the registry's own address under name.Registry for
// admin. It does nothing once the self-name is taken.
func (l *Ledger) RegisterSelf(e *env.Env, admin models.Address) error {
	return l.claimOnce(e, name.Registry, e.Self(), admin)
}

// RegisterChannel claims n for the sub-registry at addr, owned by admin.
// Like RegisterSelf it does nothing once n is taken.
func (l *Ledger) RegisterChannel(e *env.Env, n name.Name, addr, admin models.Address) error {
	return l.claimOnce(e, n, addr, admin)
}

func (l *Ledger) claimOnce(e *env.Env, n name.Name, addr, owner models.Address) error {
	taken, err := storage.Contracts.Has(e.Context(), e.Storage(), n)
	if err != nil || taken {
		return err
	}
	return l.register(e, n, addr, owner)
}

// RegisterContract is ClaimContractID under its older name.
func (l *Ledger) RegisterContract(e *env.Env, rawName string, addr, owner models.Address) error {
	return l.ClaimContractID(e, rawName, addr, owner)
}

// Deploy instantiates a published artifact and claims req.ContractName for
// it. A constructor failure is reported in DeployResult.InitErr and does
// not undo the deploy or the claim.
func (l *Ledger) Deploy(e *env.Env, req DeployRequest) (DeployResult, error) {
	n, err := name.Canonicalize(req.ContractName)
	if err != nil {
		return DeployResult{}, err
	}
	if err := l.requireUnclaimed(e, n); err != nil {
		return DeployResult{}, err
	}
	if err := l.gate.AuthorizeDeploy(e, req.Owner, req.Deployer); err != nil {
		return DeployResult{}, err
	}

	wasmName, err := name.Canonicalize(req.WasmName)
	if err != nil {
		return DeployResult{}, err
	}
	hash, v, err := l.wasm.FetchHashAndBump(e, wasmName.String(), req.Version)
	if err != nil {
		return DeployResult{}, err
	}

	salt := SaltFor(n)
	if req.Salt != nil {
		salt = *req.Salt
	}
	deployer := e.Self()
	if req.Deployer != nil {
		deployer = *req.Deployer
	}

	res, err := l.instantiate(e, deployer, salt, hash, req.InitArgs)
	if err != nil {
		return DeployResult{}, err
	}
	e.Emit(events.Deploy{
		WasmName:     wasmName.String(),
		ContractName: n.String(),
		Version:      v.String(),
		Deployer:     deployer,
		ContractID:   res.Address,
	})
	if err := l.register(e, n, res.Address, req.Owner); err != nil {
		return DeployResult{}, err
	}
	return res, nil
}

// DeployWithoutClaiming instantiates a published artifact without binding
// a name.
func (l *Ledger) DeployWithoutClaiming(e *env.Env, req UnnamedDeployRequest) (DeployResult, error) {
	if err := l.gate.AuthorizeDeployer(e, req.Deployer); err != nil {
		return DeployResult{}, err
	}
	wasmName, err := name.Canonicalize(req.WasmName)
	if err != nil {
		return DeployResult{}, err
	}
	hash, v, err := l.wasm.FetchHashAndBump(e, wasmName.String(), req.Version)
	if err != nil {
		return DeployResult{}, err
	}

	var salt models.Hash
	if req.Salt != nil {
		salt = *req.Salt
	} else if _, err := io.ReadFull(l.random, salt[:]); err != nil {
		return DeployResult{}, fmt.Errorf("generate salt: %w", err)
	}

	res, err := l.instantiate(e, req.Deployer, salt, hash, req.InitArgs)
	if err != nil {
		return DeployResult{}, err
	}
	e.Emit(events.Deploy{
		WasmName:   wasmName.String(),
		Version:    v.String(),
		Deployer:   req.Deployer,
		ContractID: res.Address,
	})
	return res, nil
}

// DevDeploy uploads req.Wasm and either upgrades the instance registered
// under req.ContractName or, the first time, deploys and claims it for
// req.Owner, who becomes the instance admin.
func (l *Ledger) DevDeploy(e *env.Env, req DevDeployRequest) (DeployResult, error) {
	n, err := name.Canonicalize(req.ContractName)
	if err != nil {
		return DeployResult{}, err
	}
	hash, err := e.Host().UploadWasm(e.Context(), req.Wasm)
	if err != nil {
		return DeployResult{}, fmt.Errorf("upload artifact: %w", err)
	}

	rec, ok, err := storage.Contracts.Get(e.Context(), e.Storage(), n)
	if err != nil {
		return DeployResult{}, fmt.Errorf("load contract %s: %w", n, err)
	}
	if ok {
		addr, err := l.upgrade(e, n, rec, hash, req.UpgradeFn)
		return DeployResult{Address: addr}, err
	}

	if req.Owner == nil {
		return DeployResult{}, dErrors.Newf(dErrors.CodeNoSuchContractDeployed, "%s is not deployed and no owner was given", n)
	}
	owner := *req.Owner
	if err := l.gate.AuthorizeDeploy(e, owner, nil); err != nil {
		return DeployResult{}, err
	}
	res, err := l.instantiate(e, e.Self(), SaltFor(n), hash, []any{owner})
	if err != nil {
		return DeployResult{}, err
	}
	if err := l.register(e, n, res.Address, owner); err != nil {
		return DeployResult{}, err
	}
	return res, nil
}

// UpgradeContract points the instance registered under rawName at a
// published artifact version.
func (l *Ledger) UpgradeContract(e *env.Env, rawName, wasmName string, rawVersion, upgradeFn *string) (models.Address, error) {
	n, err := name.Canonicalize(rawName)
	if err != nil {
		return "", err
	}
	rec, err := l.instance(e, n)
	if err != nil {
		return "", err
	}
	hash, _, err := l.wasm.FetchHashAndBump(e, wasmName, rawVersion)
	if err != nil {
		return "", err
	}
	return l.upgrade(e, n, rec, hash, upgradeFn)
}

// upgrade asks the instance for its admin and, when it answers, requires
// that admin's signature before calling the upgrade entry point. The
// instance may enforce further checks of its own.
func (l *Ledger) upgrade(e *env.Env, n name.Name, rec models.InstanceRecord, hash models.Hash, upgradeFn *string) (models.Address, error) {
	if err := storage.Contracts.Bump(e.Context(), e.Storage(), n); err != nil {
		return "", err
	}

	if out, err := e.Host().Invoke(e.Context(), rec.Address, host.FnAdmin, nil); err == nil {
		if admin, ok := asAddress(out); ok {
			if err := e.RequireAuth(admin); err != nil {
				return "", err
			}
		}
	}

	fn := host.FnUpgrade
	if upgradeFn != nil && *upgradeFn != "" {
		fn = *upgradeFn
	}
	if _, err := e.Host().Invoke(e.Context(), rec.Address, fn, []any{hash}); err != nil {
		if host.IsAbort(err) {
			return "", err
		}
		return "", dErrors.Wrap(err, dErrors.CodeUpgradeInvokeFailed, fmt.Sprintf("%s(%s) on %s", fn, hash, n))
	}
	return rec.Address, nil
}

func asAddress(v any) (models.Address, bool) {
	switch a := v.(type) {
	case models.Address:
		return a, true
	case string:
		addr, err := models.ParseAddress(a)
		return addr, err == nil
	}
	return "", false
}
