package storage

import (
	"wasmregistry/internal/registry/models"
	"wasmregistry/internal/registry/name"
)

// RolesKey is the single key of the config namespace.
const RolesKey = "roles"

// The registry's namespaces.
var (
	Wasm      = NewMap[name.Name, models.ArtifactRecord](NamespaceWasm, nameKey)
	Contracts = NewMap[name.Name, models.InstanceRecord](NamespaceContract, nameKey)
	Hashes    = NewMap[models.Hash, bool](NamespaceHash, hashKey)
	Config    = NewMap[string, models.RoleState](NamespaceConfig, stringKey)
)

func nameKey(n name.Name) []byte { return []byte(n) }

func hashKey(h models.Hash) []byte { return h[:] }

func stringKey(s string) []byte { return []byte(s) }
