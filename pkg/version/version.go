// Package version packs a semantic version plus a flush code into a single
// ordinal so the on-disk schema version can be compared with one integer.
package version

import (
	"fmt"
	"math"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// App is the running program's version. Override with
// -ldflags "-X flexchat/pkg/version.App=x.y.z".
var App = "0.3.0"

// FlushCode forces a migration/re-stamp without bumping App.
const FlushCode uint16 = 0

type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// Parse reads a "major.minor.patch" string. Each segment must fit in 16 bits.
func Parse(s string) (Version, error) {
	if strings.Count(s, ".") != 2 {
		return Version{}, fmt.Errorf("parse version %q: want major.minor.patch", s)
	}
	v, err := goversion.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", s, err)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return Version{}, fmt.Errorf("parse version %q: pre-release and metadata are not supported", s)
	}
	segments := v.Segments64()
	if len(segments) != 3 {
		return Version{}, fmt.Errorf("parse version %q: want 3 segments, got %d", s, len(segments))
	}
	for _, seg := range segments {
		if seg < 0 || seg > math.MaxUint16 {
			return Version{}, fmt.Errorf("parse version %q: segment %d out of range", s, seg)
		}
	}
	return Version{
		Major: uint16(segments[0]),
		Minor: uint16(segments[1]),
		Patch: uint16(segments[2]),
	}, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	a, b := Encode(v, 0), Encode(o, 0)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Encode lays the fields out as major|minor|patch|flush, 16 bits each, most
// significant first.
func Encode(v Version, flush uint16) uint64 {
	return uint64(v.Major)<<48 |
		uint64(v.Minor)<<32 |
		uint64(v.Patch)<<16 |
		uint64(flush)
}

// Decode is the exact inverse of Encode.
func Decode(code uint64) (Version, uint16) {
	const mask = 0xFFFF
	return Version{
		Major: uint16(code >> 48 & mask),
		Minor: uint16(code >> 32 & mask),
		Patch: uint16(code >> 16 & mask),
	}, uint16(code & mask)
}

// Current returns the encoded version of the running program.
func Current() (uint64, error) {
	v, err := Parse(App)
	if err != nil {
		return 0, err
	}
	return Encode(v, FlushCode), nil
}

// Describe renders a version code for logs, e.g. "0.3.0+flush.0".
func Describe(code uint64) string {
	v, flush := Decode(code)
	return fmt.Sprintf("%s+flush.%d", v, flush)
}
