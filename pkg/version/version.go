// Package version provides LoRaWAN MAC version parsing, comparison and the
// per-version behavior profiles the device needs at join time.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the default LoRaWAN MAC version implemented by the device.
const Current = "1.0.4"

// MACVersion represents a parsed LoRaWAN MAC version such as "1.0.4" or "1.1".
type MACVersion struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// counterDevNonce is the first version that requires a monotonically
// increasing DevNonce.
var counterDevNonce = MACVersion{Major: 1, Minor: 0, Patch: 4}

// Parse parses a "major.minor" or "major.minor.patch" version string.
func Parse(s string) (MACVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return MACVersion{}, fmt.Errorf("invalid version %q: expected major.minor[.patch]", s)
	}

	var nums [3]uint16
	names := [3]string{"major", "minor", "patch"}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || p == "" {
			return MACVersion{}, fmt.Errorf("invalid version %q: bad %s component", s, names[i])
		}
		nums[i] = uint16(n)
	}

	return MACVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) MACVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version in its conventional form. The patch component
// is omitted when zero, so 1.1.0 prints as "1.1".
func (v MACVersion) String() string {
	if v.Patch == 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 as v is older than, equal to, or newer than other.
func (v MACVersion) Compare(other MACVersion) int {
	switch {
	case v.Major != other.Major:
		return cmp(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmp(v.Minor, other.Minor)
	default:
		return cmp(v.Patch, other.Patch)
	}
}

// AtLeast reports whether v is other or newer.
func (v MACVersion) AtLeast(other MACVersion) bool {
	return v.Compare(other) >= 0
}

// Compatible returns true if the other version has the same major version.
func (v MACVersion) Compatible(other MACVersion) bool {
	return v.Major == other.Major
}

// CounterDevNonce reports whether JoinRequests must carry a persisted,
// strictly increasing DevNonce rather than a random one.
func (v MACVersion) CounterDevNonce() bool {
	return v.AtLeast(counterDevNonce)
}

func cmp(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
