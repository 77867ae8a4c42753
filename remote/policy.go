package remote

import (
	"strings"

	"github.com/blang/semver"
)

// VersionPolicy decides whether a release's minimum client version makes the
// release eligible for this client. The store historically required an exact
// match; PolicyMinimum accepts any release whose minimum is at or below the
// compiled client version.
type VersionPolicy int

const (
	PolicyExact VersionPolicy = iota
	PolicyMinimum
)

// ParsePolicy maps a config string to a policy, defaulting to exact.
func ParsePolicy(s string) VersionPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "minimum") {
		return PolicyMinimum
	}
	return PolicyExact
}

func (p VersionPolicy) String() string {
	if p == PolicyMinimum {
		return "minimum"
	}
	return "exact"
}

// Eligible reports whether a release requiring minClient may be used by a
// client running clientVersion.
func (p VersionPolicy) Eligible(minClient, clientVersion string) bool {
	if p == PolicyExact {
		return normalizeVersion(minClient) == normalizeVersion(clientVersion)
	}
	minV, err := parseVersion(minClient)
	if err != nil {
		return normalizeVersion(minClient) == normalizeVersion(clientVersion)
	}
	curV, err := parseVersion(clientVersion)
	if err != nil {
		return false
	}
	return curV.GTE(minV)
}

// parseVersion tolerates v/V prefixes and missing components.
func parseVersion(ver string) (semver.Version, error) {
	ver = strings.TrimPrefix(strings.TrimSpace(ver), "v")
	ver = strings.TrimPrefix(ver, "V")
	return semver.ParseTolerant(ver)
}

func normalizeVersion(ver string) string {
	v, err := parseVersion(ver)
	if err != nil {
		return strings.TrimSpace(ver)
	}
	return v.String()
}
