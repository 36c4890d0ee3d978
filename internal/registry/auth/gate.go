// Package auth decides which signatures each registry operation requires.
//
//	operation                 required signers
//	publish                   author, and the manager when one is set
//	deploy                    owner, the manager when set, an explicit deployer
//	claim                     owner
//	deploy without claiming   deployer
//	set / remove manager      admin
//
// Upgrades are authorized by the instance itself. A missing signature
// aborts the invocation; it never produces a typed code.
package auth

import (
	"fmt"

	"wasmregistry/internal/registry/env"
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/storage"
	"wasmregistry/pkg/platform/sentinel"
)

type Gate struct{}

func New() *Gate { return &Gate{} }

// Init records admin as the registry administrator. Re-initializing with
// the same admin is a no-op.
func (g *Gate) Init(e *env.Env, admin models.Address) error {
	roles, ok, err := storage.Config.Get(e.Context(), e.Storage(), storage.RolesKey)
	if err != nil {
		return err
	}
	if ok {
		if roles.Admin != admin {
			return fmt.Errorf("registry already administered by %s: %w", roles.Admin, sentinel.ErrInvalidState)
		}
		return nil
	}
	return g.save(e, models.RoleState{Admin: admin})
}

// Roles returns the current role state.
func (g *Gate) Roles(e *env.Env) (models.RoleState, error) {
	roles, ok, err := storage.Config.Get(e.Context(), e.Storage(), storage.RolesKey)
	if err != nil {
		return models.RoleState{}, err
	}
	if !ok {
		return models.RoleState{}, fmt.Errorf("registry not initialized: %w", sentinel.ErrInvalidState)
	}
	return roles, nil
}

func (g *Gate) Admin(e *env.Env) (models.Address, error) {
	roles, err := g.Roles(e)
	return roles.Admin, err
}

func (g *Gate) Manager(e *env.Env) (*models.Address, error) {
	roles, err := g.Roles(e)
	return roles.Manager, err
}

func (g *Gate) RequireAdmin(e *env.Env) error {
	admin, err := g.Admin(e)
	if err != nil {
		return err
	}
	return e.RequireAuth(admin)
}

func (g *Gate) SetManager(e *env.Env, manager models.Address) error {
	roles, err := g.Roles(e)
	if err != nil {
		return err
	}
	if err := e.RequireAuth(roles.Admin); err != nil {
		return err
	}
	roles.Manager = &manager
	return g.save(e, roles)
}

func (g *Gate) RemoveManager(e *env.Env) error {
	roles, err := g.Roles(e)
	if err != nil {
		return err
	}
	if err := e.RequireAuth(roles.Admin); err != nil {
		return err
	}
	roles.Manager = nil
	return g.save(e, roles)
}

func (g *Gate) AuthorizePublish(e *env.Env, author models.Address) error {
	if err := e.RequireAuth(author); err != nil {
		return err
	}
	return g.requireManager(e)
}

// AuthorizeDeploy requires owner, the manager when set, and deployer when
// the caller supplied one.
func (g *Gate) AuthorizeDeploy(e *env.Env, owner models.Address, deployer *models.Address) error {
	if err := e.RequireAuth(owner); err != nil {
		return err
	}
	if err := g.requireManager(e); err != nil {
		return err
	}
	if deployer != nil {
		return e.RequireAuth(*deployer)
	}
	return nil
}

func (g *Gate) AuthorizeClaim(e *env.Env, owner models.Address) error {
	return e.RequireAuth(owner)
}

func (g *Gate) AuthorizeDeployer(e *env.Env, deployer models.Address) error {
	return e.RequireAuth(deployer)
}

func (g *Gate) requireManager(e *env.Env) error {
	manager, err := g.Manager(e)
	if err != nil || manager == nil {
		return err
	}
	return e.RequireAuth(*manager)
}

func (g *Gate) save(e *env.Env, roles models.RoleState) error {
	if err := storage.Config.Set(e.Context(), e.Storage(), storage.RolesKey, roles); err != nil {
		return err
	}
	return storage.Config.Bump(e.Context(), e.Storage(), storage.RolesKey)
}
