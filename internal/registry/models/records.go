// Package models holds the records persisted by the registry ledgers.
package models

import (
	"sort"

	"wasmregistry/internal/registry/version"
)

// VersionedHash pairs a version string with the artifact published under it.
type VersionedHash struct {
	Version string `json:"version" msgpack:"v"`
	Hash    Hash   `json:"hash" msgpack:"h"`
}

// ArtifactRecord is the publication history of one artifact name.
//
// Invariants:
//   - Author is fixed by the first publication.
//   - Versions is sorted ascending by version order and never shrinks.
type ArtifactRecord struct {
	Author   Address         `json:"author" msgpack:"a"`
	Versions []VersionedHash `json:"versions" msgpack:"vs"`
}

// Current returns the highest published version.
func (r *ArtifactRecord) Current() (VersionedHash, bool) {
	if len(r.Versions) == 0 {
		return VersionedHash{}, false
	}
	return r.Versions[len(r.Versions)-1], true
}

// Lookup finds the hash published under v by binary search.
func (r *ArtifactRecord) Lookup(v version.Version) (Hash, bool) {
	i := sort.Search(len(r.Versions), func(i int) bool {
		stored, err := version.Parse(r.Versions[i].Version)
		return err != nil || !stored.Less(v)
	})
	if i < len(r.Versions) && r.Versions[i].Version == v.String() {
		return r.Versions[i].Hash, true
	}
	return Hash{}, false
}

// Append records v at the end of the history. The caller has already checked
// that v is greater than the current version.
func (r *ArtifactRecord) Append(v version.Version, h Hash) {
	r.Versions = append(r.Versions, VersionedHash{Version: v.String(), Hash: h})
}

// InstanceRecord binds an instance name to its address and owner.
type InstanceRecord struct {
	Address Address `json:"address" msgpack:"addr"`
	Owner   Address `json:"owner" msgpack:"owner"`
}

// RoleState holds the registry-wide roles.
type RoleState struct {
	Admin   Address  `json:"admin" msgpack:"admin"`
	Manager *Address `json:"manager,omitempty" msgpack:"manager,omitempty"`
}
