package module

import (
	"fmt"
	"strconv"
	"strings"
)

// InterfaceVersion identifies a revision of the host/module contract.
// Major changes break the ABI, minor changes add to it, patch changes are
// informational.
type InterfaceVersion struct {
	Major int
	Minor int
	Patch int
}

// Current is the contract version this host binary was compiled against.
// Module libraries report the version they were built with through their
// VersionSymbol export, and the host refuses the pair when Accepts says no.
//
// The check guards against contract skew, not against binary drift: a module
// that lies about its version, or that was built with a different toolchain,
// can still crash the process. Running modules compiled against the same
// contract sources is the operator's responsibility.
func Current() InterfaceVersion {
	return InterfaceVersion{Major: 1, Minor: 0, Patch: 0}
}

// Accepts reports whether a module built against mod may be loaded by a host
// at version v. The major versions must match exactly and the module's minor
// must not exceed the host's; a newer-minor module may reference contract
// surface the host does not have. Patch never participates.
func (v InterfaceVersion) Accepts(mod InterfaceVersion) bool {
	return mod.Major == v.Major && mod.Minor <= v.Minor
}

// String renders the version as MAJOR.MINOR.PATCH.
func (v InterfaceVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses MAJOR.MINOR.PATCH with an optional leading "v". Each
// part must be a non-negative decimal integer.
func ParseVersion(s string) (InterfaceVersion, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "v")
	parts := strings.Split(trimmed, ".")
	if len(parts) != 3 {
		return InterfaceVersion{}, fmt.Errorf("version %q: want MAJOR.MINOR.PATCH", s)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return InterfaceVersion{}, fmt.Errorf("version %q: invalid component %q", s, part)
		}
		nums[i] = n
	}

	return InterfaceVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
