// Package name canonicalizes artifact and instance names.
package name

import (
	dErrors "wasmregistry/pkg/domain-errors"
)

// MaxLength is the longest accepted name in bytes.
const MaxLength = 64

// Registry is the name the registry claims for its own address.
const Registry Name = "registry"

// Unverified is the channel of the manager-less sub-registry, and the name
// the root registry claims for it.
const Unverified Name = "unverified"

// Name is a canonical name: lowercase ASCII letters, digits and hyphens,
// starting with a letter, at most MaxLength bytes, not reserved.
// Canonicalize(n.String()) == n for every Name.
type Name string

func (n Name) String() string { return string(n) }

// Canonicalize validates raw and rewrites it to canonical form:
// underscores become hyphens and letters are lower-cased.
func Canonicalize(raw string) (Name, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidName, "name is empty")
	}
	if len(raw) > MaxLength {
		return "", dErrors.Newf(dErrors.CodeInvalidName, "name longer than %d bytes", MaxLength)
	}
	if !isLetter(raw[0]) {
		return "", dErrors.Newf(dErrors.CodeInvalidName, "%q must start with a letter", raw)
	}

	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out[i] = c + ('a' - 'A')
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			out[i] = c
		case c == '_':
			out[i] = '-'
		default:
			return "", dErrors.Newf(dErrors.CodeInvalidName, "%q contains invalid character %q", raw, c)
		}
	}

	n := string(out)
	if IsReserved(n) {
		return "", dErrors.Newf(dErrors.CodeInvalidName, "%q is a reserved word", raw)
	}
	return Name(n), nil
}

// IsReserved reports whether s is on the reserved list. Matching is exact;
// callers compare the canonical form.
func IsReserved(s string) bool {
	_, ok := reserved[s]
	return ok
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// reserved is a compatibility deny-list kept verbatim. Entries containing
// characters outside the canonical alphabet can never match.
var reserved = func() map[string]struct{} {
	words := []string{
		"as", "break", "const", "continue", "crate", "else", "enum", "extern",
		"false", "fn", "for", "if", "impl", "in", "let", "loop", "match", "mod",
		"move", "mut", "pub", "ref", "return", "self", "Self", "static",
		"struct", "super", "trait", "true", "type", "unsafe", "use", "where",
		"while", "async", "await", "dyn", "abstract", "become", "box", "do",
		"final", "macro", "override", "priv", "typeof", "unsized", "virtual",
		"yield", "try", "gen", "macro_rules", "union", "'static", "nul",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
