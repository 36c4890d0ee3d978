package models

import (
	"crypto/ed25519"
	"encoding/base32"
	"fmt"

	dErrors "wasmregistry/pkg/domain-errors"
)

// Address prefixes.
const (
	AccountPrefix  = 'G'
	ContractPrefix = 'C'
)

const addressLen = 1 + 52

var addrEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Address identifies a principal. Account addresses (G...) encode an ed25519
// public key; contract addresses (C...) encode an instance id.
type Address string

// AccountAddress returns the address of an ed25519 public key.
func AccountAddress(pub ed25519.PublicKey) Address {
	return Address(string(rune(AccountPrefix)) + addrEncoding.EncodeToString(pub))
}

// ContractAddress returns the address of a 32-byte instance id.
func ContractAddress(id [32]byte) Address {
	return Address(string(rune(ContractPrefix)) + addrEncoding.EncodeToString(id[:]))
}

// ParseAddress validates s. Only the canonical encoding is accepted: the
// four unused trailing bits must be zero, so each key has one address.
func ParseAddress(s string) (Address, error) {
	if len(s) != addressLen || (s[0] != AccountPrefix && s[0] != ContractPrefix) {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "malformed address %q", s)
	}
	raw, err := addrEncoding.DecodeString(s[1:])
	if err != nil || len(raw) != 32 || addrEncoding.EncodeToString(raw) != s[1:] {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "malformed address %q", s)
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

func (a Address) IsAccount() bool { return len(a) == addressLen && a[0] == AccountPrefix }

func (a Address) IsContract() bool { return len(a) == addressLen && a[0] == ContractPrefix }

// Bytes returns the 32-byte payload.
func (a Address) Bytes() ([]byte, error) {
	if len(a) != addressLen {
		return nil, fmt.Errorf("address %q: bad length", a)
	}
	return addrEncoding.DecodeString(string(a[1:]))
}

// PublicKey returns the ed25519 key behind an account address.
func (a Address) PublicKey() (ed25519.PublicKey, error) {
	if !a.IsAccount() {
		return nil, fmt.Errorf("address %q is not an account", a)
	}
	raw, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw), nil
}
