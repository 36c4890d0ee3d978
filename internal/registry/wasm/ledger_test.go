package wasm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"

	"wasmregistry/internal/registry/auth"
	"wasmregistry/internal/registry/env"
	"wasmregistry/internal/registry/env/envtest"
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/host"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/storage"
	"wasmregistry/internal/registry/version"
	dErrors "wasmregistry/pkg/domain-errors"
)

// =============================================================================
// Wasm Ledger Test Suite
// =============================================================================
// Justification: publication rules (author lock-in, reserved self-name,
// hash reuse, strictly increasing versions) and their check order are the
// ledger's contract.

type LedgerSuite struct {
	suite.Suite
	h      *envtest.Harness
	gate   *auth.Gate
	ledger *Ledger
	admin  models.Address
	author models.Address
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.h = envtest.New(nil)
	s.gate = auth.New()
	var err error
	s.ledger, err = New(s.gate)
	s.Require().NoError(err)
	s.admin = envtest.Account()
	s.author = envtest.Account()
	_, err = s.h.Run(nil, func(e *env.Env) error { return s.gate.Init(e, s.admin) })
	s.Require().NoError(err)
}

func (s *LedgerSuite) publish(signers []models.Address, rawName string, author models.Address, wasm, rawVersion string) ([]events.Event, error) {
	return s.h.Run(signers, func(e *env.Env) error {
		return s.ledger.Publish(e, rawName, author, []byte(wasm), rawVersion)
	})
}

func (s *LedgerSuite) mustPublish(rawName, wasm, rawVersion string) {
	_, err := s.publish(envtest.Signed(s.author), rawName, s.author, wasm, rawVersion)
	s.Require().NoError(err)
}

func (s *LedgerSuite) fetch(rawName string, rawVersion *string) (models.Hash, error) {
	var h models.Hash
	_, err := s.h.Run(nil, func(e *env.Env) error {
		var err error
		h, err = s.ledger.FetchHash(e, rawName, rawVersion)
		return err
	})
	return h, err
}

func (s *LedgerSuite) current(rawName string) (version.Version, error) {
	var v version.Version
	_, err := s.h.Run(nil, func(e *env.Env) error {
		var err error
		v, err = s.ledger.CurrentVersion(e, rawName)
		return err
	})
	return v, err
}

func (s *LedgerSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "want %s, got %v", code, err)
}

func ptr(s string) *string { return &s }

func (s *LedgerSuite) versions(rawName string) ([]models.VersionedHash, error) {
	var out []models.VersionedHash
	_, err := s.h.Run(nil, func(e *env.Env) error {
		var err error
		out, err = s.ledger.Versions(e, rawName)
		return err
	})
	return out, err
}

func (s *LedgerSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)
}

func (s *LedgerSuite) TestPublishAndFetch() {
	evs, err := s.publish(envtest.Signed(s.author), "Hello_World", s.author, "wasm-v0", "0.0.0")
	s.Require().NoError(err)
	s.Require().Len(evs, 1)
	s.Equal(events.Publish{
		WasmName: "hello-world",
		WasmHash: models.HashOf([]byte("wasm-v0")),
		Version:  "0.0.0",
		Author:   s.author,
	}, evs[0])

	s.mustPublish("hello-world", "wasm-v1", "0.0.1")

	s.Run("current version", func() {
		v, err := s.current("HELLO-world")
		s.Require().NoError(err)
		s.Equal("0.0.1", v.String())
	})

	s.Run("latest hash", func() {
		h, err := s.fetch("hello_world", nil)
		s.Require().NoError(err)
		s.Equal(models.HashOf([]byte("wasm-v1")), h)
	})

	s.Run("pinned hash survives later publications", func() {
		h, err := s.fetch("hello-world", ptr("0.0.0"))
		s.Require().NoError(err)
		s.Equal(models.HashOf([]byte("wasm-v0")), h)
	})

	s.Run("ordered history", func() {
		_, err := s.h.Run(nil, func(e *env.Env) error {
			vs, err := s.ledger.Versions(e, "hello-world")
			s.Require().NoError(err)
			s.Require().Len(vs, 2)
			s.Equal("0.0.0", vs[0].Version)
			s.Equal("0.0.1", vs[1].Version)
			return err
		})
		s.Require().NoError(err)
	})
}

func (s *LedgerSuite) TestFetchFailures() {
	s.mustPublish("hello", "w", "0.0.1")

	_, err := s.fetch("missing", nil)
	s.requireCode(err, dErrors.CodeNoSuchWasmPublished)

	_, err = s.fetch("hello", ptr("0.0.2"))
	s.requireCode(err, dErrors.CodeNoSuchVersion)

	_, err = s.fetch("hello world", nil)
	s.requireCode(err, dErrors.CodeInvalidName)

	_, err = s.fetch("hello", ptr("latest"))
	s.requireCode(err, dErrors.CodeInvalidVersion)

	_, err = s.current("missing")
	s.requireCode(err, dErrors.CodeNoSuchWasmPublished)
}

func (s *LedgerSuite) TestNumericVersionOrdering() {
	s.mustPublish("ordered", "nine", "0.0.9")
	s.mustPublish("ordered", "ten", "0.0.10")

	v, err := s.current("ordered")
	s.Require().NoError(err)
	s.Equal("0.0.10", v.String())

	_, err = s.publish(envtest.Signed(s.author), "ordered", s.author, "eleven", "0.0.9")
	s.requireCode(err, dErrors.CodeVersionMustBeGreaterThanCurrent)
	_, err = s.publish(envtest.Signed(s.author), "ordered", s.author, "eleven", "0.0.10")
	s.requireCode(err, dErrors.CodeVersionMustBeGreaterThanCurrent)
}

func (s *LedgerSuite) TestAuthorLockIn() {
	s.mustPublish("owned", "a", "0.0.1")
	other := envtest.Account()

	_, err := s.publish(envtest.Signed(other), "owned", other, "b", "0.0.2")
	s.requireCode(err, dErrors.CodeWasmNameAlreadyTaken)

	_, err = s.publish(envtest.Signed(other), "Owned", other, "b", "0.0.2")
	s.requireCode(err, dErrors.CodeWasmNameAlreadyTaken)
}

func (s *LedgerSuite) TestMissingSignatureAborts() {
	evs, err := s.publish(nil, "hello", s.author, "w", "0.0.1")
	s.True(host.IsAbort(err))
	s.Empty(evs)
	_, err = s.fetch("hello", nil)
	s.requireCode(err, dErrors.CodeNoSuchWasmPublished)
}

func (s *LedgerSuite) TestManagerMustCoSign() {
	manager := envtest.Account()
	_, err := s.h.Run(envtest.Signed(s.admin), func(e *env.Env) error { return s.gate.SetManager(e, manager) })
	s.Require().NoError(err)

	_, err = s.publish(envtest.Signed(s.author), "managed", s.author, "w", "0.0.1")
	s.True(host.IsAbort(err))

	_, err = s.publish(envtest.Signed(s.author, manager), "managed", s.author, "w", "0.0.1")
	s.NoError(err)
}

func (s *LedgerSuite) TestSelfNameIsAdminOnly() {
	_, err := s.publish(envtest.Signed(s.author), "registry", s.author, "w", "0.0.1")
	s.requireCode(err, dErrors.CodeAdminOnly)

	_, err = s.publish(envtest.Signed(s.admin), "Registry", s.admin, "w", "0.0.1")
	s.NoError(err)
}

func (s *LedgerSuite) TestHashReuse() {
	s.mustPublish("first", "same-bytes", "0.0.0")

	_, err := s.publish(envtest.Signed(s.author), "first", s.author, "same-bytes", "0.0.1")
	s.requireCode(err, dErrors.CodeHashAlreadyPublished)

	_, err = s.publish(envtest.Signed(s.author), "second", s.author, "same-bytes", "0.0.1")
	s.requireCode(err, dErrors.CodeHashAlreadyPublished)

	h, err := s.fetch("first", ptr("0.0.0"))
	s.Require().NoError(err)
	s.Equal(models.HashOf([]byte("same-bytes")), h)
}

func (s *LedgerSuite) TestRepeatedPublishIsRejected() {
	hash := models.HashOf([]byte("hello-v1"))
	publishHash := func() error {
		_, err := s.h.Run(envtest.Signed(s.author), func(e *env.Env) error {
			return s.ledger.PublishHash(e, "hello", s.author, hash, "0.0.1")
		})
		return err
	}

	s.Require().NoError(publishHash())
	s.requireCode(publishHash(), dErrors.CodeHashAlreadyPublished)

	versions, err := s.versions("hello")
	s.Require().NoError(err)
	s.Len(versions, 1)
}

func (s *LedgerSuite) TestCheckOrder() {
	s.mustPublish("taken", "a", "0.0.1")
	other := envtest.Account()

	// Invalid version and reused hash, but the author check runs first.
	_, err := s.h.Run(envtest.Signed(other), func(e *env.Env) error {
		return s.ledger.PublishHash(e, "taken", other, models.HashOf([]byte("a")), "bogus")
	})
	s.requireCode(err, dErrors.CodeWasmNameAlreadyTaken)

	// Reused hash and a lower version: the hash check runs first.
	_, err = s.h.Run(envtest.Signed(s.author), func(e *env.Env) error {
		return s.ledger.PublishHash(e, "taken", s.author, models.HashOf([]byte("a")), "0.0.0")
	})
	s.requireCode(err, dErrors.CodeHashAlreadyPublished)

	// Bad name beats a missing signature.
	_, err = s.h.Run(nil, func(e *env.Env) error {
		return s.ledger.PublishHash(e, "1bad", other, models.HashOf([]byte("z")), "0.0.1")
	})
	s.requireCode(err, dErrors.CodeInvalidName)
}

func (s *LedgerSuite) TestLifetimeExtension() {
	s.mustPublish("bumped", "w", "0.0.1")

	s.h.Seq.Advance(storage.MaxBump / 2)
	_, err := s.h.Run(nil, func(e *env.Env) error {
		_, v, err := s.ledger.FetchHashAndBump(e, "bumped", nil)
		s.Equal("0.0.1", v.String())
		return err
	})
	s.Require().NoError(err)

	s.h.Seq.Advance(storage.MaxBump/2 + 10)
	_, err = s.fetch("bumped", nil)
	s.NoError(err, "bump pushed the record past its original lifetime")

	s.h.Seq.Advance(storage.MaxBump)
	_, err = s.fetch("bumped", nil)
	s.requireCode(err, dErrors.CodeNoSuchWasmPublished)
}

func TestPublishedVersionsStayOrdered(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := envtest.New(nil)
		gate := auth.New()
		ledger, _ := New(gate)
		admin, author := envtest.Account(), envtest.Account()
		if _, err := h.Run(nil, func(e *env.Env) error { return gate.Init(e, admin) }); err != nil {
			rt.Fatal(err)
		}

		attempts := rapid.SliceOfN(rapid.IntRange(0, 30), 1, 20).Draw(rt, "patches")
		for i, patch := range attempts {
			raw := fmt.Sprintf("0.0.%d", patch)
			_, _ = h.Run(envtest.Signed(author), func(e *env.Env) error {
				return ledger.Publish(e, "prop", author, []byte(fmt.Sprintf("blob-%d", i)), raw)
			})
		}

		_, err := h.Run(nil, func(e *env.Env) error {
			vs, err := ledger.Versions(e, "prop")
			if err != nil {
				return err
			}
			for i := 1; i < len(vs); i++ {
				if !version.MustParse(vs[i-1].Version).Less(version.MustParse(vs[i].Version)) {
					rt.Fatalf("history out of order: %v", vs)
				}
			}
			cur, _ := ledger.CurrentVersion(e, "prop")
			if cur.String() != vs[len(vs)-1].Version {
				rt.Fatalf("current %s is not the last entry", cur)
			}
			return nil
		})
		if err != nil {
			rt.Fatal(err)
		}
	})
}
