package registry

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// parseVersion parses a version in strict MAJOR.MINOR.PATCH form with
// optional prerelease and build metadata. A single leading "v" is
// tolerated, and so are leading zeros in numeric prerelease identifiers
// (1.0.0-01 orders like 1.0.0-1). Looser shapes (missing components,
// leading zeros in the numeric triple, arbitrary text) return an error.
func parseVersion(raw string) (*semver.Version, error) {
	s := strings.TrimPrefix(raw, "v")
	v, err := semver.StrictNewVersion(s)
	if err == nil {
		return v, nil
	}
	norm, changed := normalizePrerelease(s)
	if !changed {
		return nil, err
	}
	return semver.StrictNewVersion(norm)
}

// normalizePrerelease strips leading zeros from purely numeric prerelease
// identifiers, which semver.StrictNewVersion rejects but this registry
// accepts and compares numerically. The rewrite preserves ordering: a
// numeric identifier compares by value, so 01 and 1 rank the same.
// Returns changed=false when there is nothing to rewrite.
func normalizePrerelease(s string) (string, bool) {
	core, rest, ok := strings.Cut(s, "-")
	if !ok {
		return s, false
	}
	pre := rest
	build := ""
	if i := strings.IndexByte(rest, '+'); i >= 0 {
		pre, build = rest[:i], rest[i:]
	}

	ids := strings.Split(pre, ".")
	changed := false
	for i, id := range ids {
		if len(id) < 2 || id[0] != '0' || !isNumericIdentifier(id) {
			continue
		}
		trimmed := strings.TrimLeft(id, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		ids[i] = trimmed
		changed = true
	}
	if !changed {
		return s, false
	}
	return core + "-" + strings.Join(ids, ".") + build, true
}

func isNumericIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// latestVersion picks the latest entry of a non-empty version list.
//
// Entries that parse as semver always beat entries that do not, and are
// ordered by semver precedence: prereleases sort below their release,
// numeric prerelease identifiers sort below alphanumeric ones, and build
// metadata carries no weight. When no entry parses, the list falls back to
// plain string ordering. Ties keep the earliest-published entry.
func latestVersion(versions []string) string {
	var (
		bestRaw    string
		bestParsed *semver.Version
	)
	for _, raw := range versions {
		parsed, err := parseVersion(raw)
		if err != nil {
			continue
		}
		if bestParsed == nil || parsed.GreaterThan(bestParsed) {
			bestRaw = raw
			bestParsed = parsed
		}
	}
	if bestParsed != nil {
		return bestRaw
	}

	best := versions[0]
	for _, raw := range versions[1:] {
		if raw > best {
			best = raw
		}
	}
	return best
}
