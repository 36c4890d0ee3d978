package contract

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"wasmregistry/internal/registry/auth"
	"wasmregistry/internal/registry/env"
	"wasmregistry/internal/registry/env/envtest"
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/host/mocks"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/wasm"
	dErrors "wasmregistry/pkg/domain-errors"
)

// =============================================================================
// Contract Ledger Test Suite
// =============================================================================
// Justification: name claims, deploy salts, partial deploys on constructor
// failure and the upgrade authorization handshake are observable only
// through a real invocation against a host.

type LedgerSuite struct {
	suite.Suite
	h      *envtest.Harness
	local  *host.Local
	gate   *auth.Gate
	wasm   *wasm.Ledger
	ledger *Ledger
	admin  models.Address
	author models.Address
	owner  models.Address
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.local = host.NewLocal()
	s.h = envtest.New(s.local)
	s.gate = auth.New()
	var err error
	s.wasm, err = wasm.New(s.gate)
	s.Require().NoError(err)
	s.ledger, err = New(s.wasm, s.gate, WithRandom(bytes.NewReader(bytes.Repeat([]byte{7}, 64))))
	s.Require().NoError(err)

	s.admin, s.author, s.owner = envtest.Account(), envtest.Account(), envtest.Account()
	_, err = s.h.Run(nil, func(e *env.Env) error { return s.gate.Init(e, s.admin) })
	s.Require().NoError(err)
	s.publish("hello_world", "hello-v1", "0.0.1")
}

func (s *LedgerSuite) publish(rawName, blob, rawVersion string) {
	_, err := s.h.Run(envtest.Signed(s.author), func(e *env.Env) error {
		return s.wasm.Publish(e, rawName, s.author, []byte(blob), rawVersion)
	})
	s.Require().NoError(err)
}

func (s *LedgerSuite) deploy(signers []models.Address, req DeployRequest) (DeployResult, []events.Event, error) {
	var res DeployResult
	evs, err := s.h.Run(signers, func(e *env.Env) error {
		var err error
		res, err = s.ledger.Deploy(e, req)
		return err
	})
	return res, evs, err
}

func (s *LedgerSuite) contractID(rawName string) (models.Address, error) {
	var addr models.Address
	_, err := s.h.Run(nil, func(e *env.Env) error {
		var err error
		addr, err = s.ledger.FetchContractID(e, rawName)
		return err
	})
	return addr, err
}

func (s *LedgerSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "want %s, got %v", code, err)
}

func ptr(s string) *string { return &s }

func (s *LedgerSuite) TestNew() {
	_, err := New(nil, s.gate)
	s.Error(err)
	_, err = New(s.wasm, nil)
	s.Error(err)
}

func (s *LedgerSuite) TestDeployClaimsName() {
	res, evs, err := s.deploy(envtest.Signed(s.owner), DeployRequest{
		WasmName:     "Hello-World",
		ContractName: "Greeter",
		Owner:        s.owner,
		InitArgs:     []any{s.owner},
	})
	s.Require().NoError(err)
	s.NoError(res.InitErr)

	want := host.DeriveAddress(s.h.Self, SaltFor("greeter"))
	s.Equal(want, res.Address)
	s.Require().Len(evs, 2)
	s.Equal(events.Deploy{
		WasmName:     "hello-world",
		ContractName: "greeter",
		Version:      "0.0.1",
		Deployer:     s.h.Self,
		ContractID:   want,
	}, evs[0])
	s.Equal(events.Register{ContractName: "greeter", ContractID: want}, evs[1])

	addr, err := s.contractID("GREETER")
	s.Require().NoError(err)
	s.Equal(want, addr)

	_, err = s.h.Run(nil, func(e *env.Env) error {
		owner, err := s.ledger.FetchContractOwner(e, "greeter")
		s.Equal(s.owner, owner)
		return err
	})
	s.NoError(err)

	hash, ok := s.local.InstanceWasm(want)
	s.True(ok)
	s.Equal(models.HashOf([]byte("hello-v1")), hash)
}

func (s *LedgerSuite) TestDeployFailures() {
	_, _, err := s.deploy(envtest.Signed(s.owner), DeployRequest{WasmName: "hello-world", ContractName: "taken", Owner: s.owner})
	s.Require().NoError(err)

	s.Run("name taken", func() {
		_, _, err := s.deploy(envtest.Signed(s.owner), DeployRequest{WasmName: "hello-world", ContractName: "Taken", Owner: s.owner})
		s.requireCode(err, dErrors.CodeAlreadyDeployed)
	})
	s.Run("owner must sign", func() {
		_, _, err := s.deploy(nil, DeployRequest{WasmName: "hello-world", ContractName: "fresh", Owner: s.owner})
		s.True(host.IsAbort(err))
	})
	s.Run("explicit deployer must sign", func() {
		deployer := envtest.Account()
		_, _, err := s.deploy(envtest.Signed(s.owner), DeployRequest{
			WasmName: "hello-world", ContractName: "fresh", Owner: s.owner, Deployer: &deployer,
		})
		s.True(host.IsAbort(err))
	})
	s.Run("unknown artifact", func() {
		_, _, err := s.deploy(envtest.Signed(s.owner), DeployRequest{WasmName: "nope", ContractName: "fresh", Owner: s.owner})
		s.requireCode(err, dErrors.CodeNoSuchWasmPublished)
	})
	s.Run("unknown version", func() {
		_, _, err := s.deploy(envtest.Signed(s.owner), DeployRequest{
			WasmName: "hello-world", Version: ptr("9.9.9"), ContractName: "fresh", Owner: s.owner,
		})
		s.requireCode(err, dErrors.CodeNoSuchVersion)
	})
	s.Run("bad name", func() {
		_, _, err := s.deploy(envtest.Signed(s.owner), DeployRequest{WasmName: "hello-world", ContractName: "9lives", Owner: s.owner})
		s.requireCode(err, dErrors.CodeInvalidName)
	})

	_, err = s.contractID("fresh")
	s.requireCode(err, dErrors.CodeNoSuchContractDeployed)
}

func (s *LedgerSuite) TestDeployWithExplicitDeployerAndSalt() {
	deployer := envtest.Account()
	salt := models.HashOf([]byte("salt"))
	res, _, err := s.deploy(envtest.Signed(s.owner, deployer), DeployRequest{
		WasmName: "hello-world", ContractName: "salted", Owner: s.owner, Deployer: &deployer, Salt: &salt,
	})
	s.Require().NoError(err)
	s.Equal(host.DeriveAddress(deployer, salt), res.Address)
}

func (s *LedgerSuite) TestConstructorFailureKeepsClaim() {
	res, evs, err := s.deploy(envtest.Signed(s.owner), DeployRequest{
		WasmName: "hello-world", ContractName: "broken", Owner: s.owner, InitArgs: []any{"a", "b"},
	})
	s.Require().NoError(err)
	s.requireCode(res.InitErr, dErrors.CodeInitInvokeFailed)
	s.Len(evs, 2)

	addr, err := s.contractID("broken")
	s.Require().NoError(err)
	s.Equal(res.Address, addr)
}

func (s *LedgerSuite) TestDeployWithoutClaiming() {
	deployer := envtest.Account()
	var res DeployResult
	evs, err := s.h.Run(envtest.Signed(deployer), func(e *env.Env) error {
		var err error
		res, err = s.ledger.DeployWithoutClaiming(e, UnnamedDeployRequest{WasmName: "hello-world", Deployer: deployer})
		return err
	})
	s.Require().NoError(err)

	var salt models.Hash
	copy(salt[:], bytes.Repeat([]byte{7}, 32))
	s.Equal(host.DeriveAddress(deployer, salt), res.Address)
	s.Require().Len(evs, 1)
	s.Equal(events.Deploy{WasmName: "hello-world", Version: "0.0.1", Deployer: deployer, ContractID: res.Address}, evs[0])

	_, err = s.h.Run(nil, func(e *env.Env) error {
		_, err := s.ledger.DeployWithoutClaiming(e, UnnamedDeployRequest{WasmName: "hello-world", Deployer: deployer})
		return err
	})
	s.True(host.IsAbort(err))
}

func (s *LedgerSuite) TestClaimContractID() {
	addr := models.ContractAddress(models.HashOf([]byte("elsewhere")))
	evs, err := s.h.Run(envtest.Signed(s.owner), func(e *env.Env) error {
		return s.ledger.ClaimContractID(e, "Claimed", addr, s.owner)
	})
	s.Require().NoError(err)
	s.Equal([]events.Event{events.Register{ContractName: "claimed", ContractID: addr}}, evs)

	_, err = s.h.Run(envtest.Signed(s.owner), func(e *env.Env) error {
		return s.ledger.RegisterContract(e, "claimed", addr, s.owner)
	})
	s.requireCode(err, dErrors.CodeAlreadyDeployed)

	_, err = s.h.Run(nil, func(e *env.Env) error {
		return s.ledger.ClaimContractID(e, "unsigned", addr, s.owner)
	})
	s.True(host.IsAbort(err))
}

func (s *LedgerSuite) TestUpgradeContract() {
	res, _, err := s.deploy(envtest.Signed(s.owner), DeployRequest{
		WasmName: "hello-world", ContractName: "greeter", Owner: s.owner, InitArgs: []any{s.owner},
	})
	s.Require().NoError(err)
	s.publish("hello-world", "hello-v2", "0.0.2")

	upgrade := func(signers []models.Address, rawVersion *string) (models.Address, error) {
		var addr models.Address
		_, err := s.h.Run(signers, func(e *env.Env) error {
			var err error
			addr, err = s.ledger.UpgradeContract(e, "greeter", "hello-world", rawVersion, nil)
			return err
		})
		return addr, err
	}

	s.Run("instance admin must sign", func() {
		_, err := upgrade(nil, nil)
		s.True(host.IsAbort(err))
		hash, _ := s.local.InstanceWasm(res.Address)
		s.Equal(models.HashOf([]byte("hello-v1")), hash)
	})

	s.Run("latest", func() {
		addr, err := upgrade(envtest.Signed(s.owner), nil)
		s.Require().NoError(err)
		s.Equal(res.Address, addr)
		hash, _ := s.local.InstanceWasm(res.Address)
		s.Equal(models.HashOf([]byte("hello-v2")), hash)
	})

	s.Run("pinned", func() {
		_, err := upgrade(envtest.Signed(s.owner), ptr("0.0.1"))
		s.Require().NoError(err)
		hash, _ := s.local.InstanceWasm(res.Address)
		s.Equal(models.HashOf([]byte("hello-v1")), hash)
	})

	s.Run("unknown contract", func() {
		_, err := s.h.Run(nil, func(e *env.Env) error {
			_, err := s.ledger.UpgradeContract(e, "nobody", "hello-world", nil, nil)
			return err
		})
		s.requireCode(err, dErrors.CodeNoSuchContractDeployed)
	})

	s.Run("missing entry point", func() {
		_, err := s.h.Run(envtest.Signed(s.owner), func(e *env.Env) error {
			_, err := s.ledger.UpgradeContract(e, "greeter", "hello-world", nil, ptr("migrate"))
			return err
		})
		s.requireCode(err, dErrors.CodeUpgradeInvokeFailed)
		s.ErrorIs(err, host.ErrNoSuchEntryPoint)
	})
}

func (s *LedgerSuite) TestDevDeploy() {
	dev := func(signers []models.Address, blob string, owner *models.Address) (DeployResult, []events.Event, error) {
		var res DeployResult
		evs, err := s.h.Run(signers, func(e *env.Env) error {
			var err error
			res, err = s.ledger.DevDeploy(e, DevDeployRequest{ContractName: "scratch", Wasm: []byte(blob), Owner: owner})
			return err
		})
		return res, evs, err
	}

	_, _, err := dev(envtest.Signed(s.owner), "dev-1", nil)
	s.requireCode(err, dErrors.CodeNoSuchContractDeployed)

	first, evs, err := dev(envtest.Signed(s.owner), "dev-1", &s.owner)
	s.Require().NoError(err)
	s.NoError(first.InitErr)
	s.Equal([]events.Event{events.Register{ContractName: "scratch", ContractID: first.Address}}, evs)

	second, evs, err := dev(envtest.Signed(s.owner), "dev-2", nil)
	s.Require().NoError(err)
	s.Equal(first.Address, second.Address)
	s.Empty(evs)
	hash, _ := s.local.InstanceWasm(first.Address)
	s.Equal(models.HashOf([]byte("dev-2")), hash)

	_, _, err = dev(nil, "dev-3", nil)
	s.True(host.IsAbort(err))
}

// =============================================================================
// Host Failure Tests
// =============================================================================
// Justification: host errors other than aborts must surface as typed
// upgrade and init failures.

func TestHostFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := mocks.NewMockHost(ctrl)
	h := envtest.New(mock)
	gate := auth.New()
	wasmLedger, _ := wasm.New(gate)
	ledger, _ := New(wasmLedger, gate)
	admin, author, owner := envtest.Account(), envtest.Account(), envtest.Account()
	blob := []byte("blob")
	hash := models.HashOf(blob)
	addr := host.DeriveAddress(h.Self, SaltFor("target"))
	boom := errors.New("trap")

	mock.EXPECT().UploadWasm(gomock.Any(), blob).Return(hash, nil)
	mock.EXPECT().Deploy(gomock.Any(), h.Self, SaltFor("target"), hash).Return(addr, nil)
	mock.EXPECT().Invoke(gomock.Any(), addr, host.FnConstructor, []any{owner}).Return(nil, boom)

	_, err := h.Run(nil, func(e *env.Env) error { return gate.Init(e, admin) })
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.Run(envtest.Signed(author), func(e *env.Env) error {
		return wasmLedger.Publish(e, "blob", author, blob, "1.0.0")
	})
	if err != nil {
		t.Fatal(err)
	}

	var res DeployResult
	_, err = h.Run(envtest.Signed(owner), func(e *env.Env) error {
		var err error
		res, err = ledger.Deploy(e, DeployRequest{WasmName: "blob", ContractName: "target", Owner: owner, InitArgs: []any{owner}})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dErrors.HasCode(res.InitErr, dErrors.CodeInitInvokeFailed) || !errors.Is(res.InitErr, boom) {
		t.Fatalf("init error = %v", res.InitErr)
	}

	gomock.InOrder(
		mock.EXPECT().Invoke(gomock.Any(), addr, host.FnAdmin, gomock.Nil()).Return(owner, nil),
		mock.EXPECT().Invoke(gomock.Any(), addr, host.FnUpgrade, []any{hash}).Return(nil, boom),
	)
	_, err = h.Run(envtest.Signed(owner), func(e *env.Env) error {
		_, err := ledger.UpgradeContract(e, "target", "blob", nil, nil)
		return err
	})
	if !dErrors.HasCode(err, dErrors.CodeUpgradeInvokeFailed) {
		t.Fatalf("upgrade error = %v", err)
	}

	mock.EXPECT().Invoke(gomock.Any(), addr, host.FnAdmin, gomock.Nil()).Return(owner, nil)
	_, err = h.Run(nil, func(e *env.Env) error {
		_, err := ledger.UpgradeContract(e, "target", "blob", nil, nil)
		return err
	})
	if !host.IsAbort(err) {
		t.Fatalf("unsigned upgrade error = %v", err)
	}
}

func (s *LedgerSuite) TestRegisterSelf() {
	evs, err := s.h.Run(nil, func(e *env.Env) error { return s.ledger.RegisterSelf(e, s.admin) })
	s.Require().NoError(err)
	s.Equal([]events.Event{events.Register{ContractName: "registry", ContractID: s.h.Self}}, evs)

	evs, err = s.h.Run(nil, func(e *env.Env) error { return s.ledger.RegisterSelf(e, s.admin) })
	s.Require().NoError(err)
	s.Empty(evs)

	addr, err := s.contractID("Registry")
	s.Require().NoError(err)
	s.Equal(s.h.Self, addr)
}
