// Package version validates artifact version strings and orders them.
//
// A version is a strict MAJOR.MINOR.PATCH triple with optional -prerelease
// and +build suffixes. Precedence follows semantic versioning; ties are
// broken by build metadata so that the order is total and two versions
// compare equal only when their strings are equal.
package version

import (
	"strings"

	"golang.org/x/mod/semver"

	dErrors "wasmregistry/pkg/domain-errors"
)

// MaxLength is the longest accepted version string in bytes.
const MaxLength = 200

// Version is a validated version string.
type Version struct {
	raw   string
	build string
}

// Parse validates raw and returns the parsed version.
func Parse(raw string) (Version, error) {
	if raw == "" {
		return Version{}, dErrors.New(dErrors.CodeInvalidVersion, "version is empty")
	}
	if len(raw) > MaxLength {
		return Version{}, dErrors.Newf(dErrors.CodeInvalidVersion, "version longer than %d bytes", MaxLength)
	}
	// x/mod accepts "v1" and "v1.2" shorthands; require the full triple.
	core := raw
	if i := strings.IndexAny(raw, "-+"); i >= 0 {
		core = raw[:i]
	}
	if strings.Count(core, ".") != 2 {
		return Version{}, dErrors.Newf(dErrors.CodeInvalidVersion, "%q is not MAJOR.MINOR.PATCH", raw)
	}
	if !semver.IsValid("v" + raw) {
		return Version{}, dErrors.Newf(dErrors.CodeInvalidVersion, "%q is not a semantic version", raw)
	}
	v := Version{raw: raw}
	if i := strings.IndexByte(raw, '+'); i >= 0 {
		v.build = raw[i+1:]
	}
	return v, nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string { return v.raw }

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool { return v.raw == "" }

// Compare returns -1, 0 or +1.
func (v Version) Compare(o Version) int {
	if c := semver.Compare("v"+v.raw, "v"+o.raw); c != 0 {
		return c
	}
	return compareBuild(v.build, o.build)
}

func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

func (v Version) Equal(o Version) bool { return v.raw == o.raw }

// ValidateIncrease requires next to be strictly greater than current.
// A nil current means nothing is published yet.
func ValidateIncrease(next Version, current *Version) error {
	if current == nil || current.Less(next) {
		return nil
	}
	return dErrors.Newf(dErrors.CodeVersionMustBeGreaterThanCurrent,
		"%s must be greater than current %s", next, current)
}

// compareBuild orders build metadata: absent sorts first, identifiers are
// compared pairwise (numeric numerically, numeric before alphanumeric), and
// a shorter list that is a prefix of a longer one sorts first.
func compareBuild(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareIdent(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareIdent(a, b string) int {
	an, bn := isNumeric(a), isNumeric(b)
	switch {
	case an && bn:
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			return cmpInt(len(ta), len(tb))
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
		// Same value: more leading zeros sorts later.
		return cmpInt(len(a), len(b))
	case an:
		return -1
	case bn:
		return 1
	}
	return strings.Compare(a, b)
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
