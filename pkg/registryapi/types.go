// Package registryapi holds the JSON bodies exchanged with the registry
// HTTP surface.
package registryapi

import (
	"wasmregistry/internal/registry/events"
	"wasmregistry/internal/registry/models"
)

type PublishRequest struct {
	Author  string `json:"author"`
	Version string `json:"version"`
	// Wasm is base64 in JSON.
	Wasm []byte `json:"wasm"`
}

type PublishHashRequest struct {
	Author  string      `json:"author"`
	Version string      `json:"version"`
	Hash    models.Hash `json:"hash"`
}

type HashResponse struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Hash    models.Hash `json:"hash"`
}

type VersionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type VersionsResponse struct {
	Name     string                 `json:"name"`
	Versions []models.VersionedHash `json:"versions"`
}

// DeployRequest deploys a published artifact under a claimed name. A
// missing init_args skips the constructor; an empty list calls it with no
// arguments.
type DeployRequest struct {
	WasmName     string       `json:"wasm_name"`
	Version      *string      `json:"version,omitempty"`
	ContractName string       `json:"contract_name"`
	Owner        string       `json:"owner"`
	Deployer     *string      `json:"deployer,omitempty"`
	Salt         *models.Hash `json:"salt,omitempty"`
	InitArgs     []any        `json:"init_args,omitempty"`
}

type UnnamedDeployRequest struct {
	WasmName string       `json:"wasm_name"`
	Version  *string      `json:"version,omitempty"`
	Deployer string       `json:"deployer"`
	Salt     *models.Hash `json:"salt,omitempty"`
	InitArgs []any        `json:"init_args,omitempty"`
}

type DeployResponse struct {
	ContractID models.Address `json:"contract_id"`
}

type ClaimRequest struct {
	ContractID string `json:"contract_id"`
	Owner      string `json:"owner"`
}

type ContractResponse struct {
	Name       string         `json:"name"`
	ContractID models.Address `json:"contract_id"`
}

type OwnerResponse struct {
	Name  string         `json:"name"`
	Owner models.Address `json:"owner"`
}

type DevDeployRequest struct {
	Wasm      []byte  `json:"wasm"`
	Owner     *string `json:"owner,omitempty"`
	UpgradeFn *string `json:"upgrade_fn,omitempty"`
}

type UpgradeRequest struct {
	WasmName  string  `json:"wasm_name"`
	Version   *string `json:"version,omitempty"`
	UpgradeFn *string `json:"upgrade_fn,omitempty"`
}

type ManagerRequest struct {
	Manager string `json:"manager"`
}

type RolesResponse struct {
	Admin   models.Address  `json:"admin"`
	Manager *models.Address `json:"manager,omitempty"`
}

type EventsResponse struct {
	Events []events.Record `json:"events"`
}
