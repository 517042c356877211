// Package params turns raw test requests into the canonical form used for
// identity hashing and delegation classification. Everything downstream of
// this package operates on the typed canonical form only.
package params

import (
	"strings"

	"github.com/huguei/zonemaster-backend/internal/domain/model"
	"github.com/huguei/zonemaster-backend/internal/errors"
)

// Defaults holds the configured values applied to optional fields during
// canonicalization.
type Defaults struct {
	// Profile is the profile name applied when a request names none.
	Profile string
}

// Canonicalize normalizes a raw test request into its canonical form.
//
// The mapping is total on well-typed input and only fails when the required
// domain is missing. Two requests differing solely in omitted-vs-default
// values, caller identity, or all-empty list entries canonicalize
// identically; order and values of surviving nameserver/DS entries are
// preserved because they change engine behavior.
func Canonicalize(raw model.TestParams, defaults Defaults) (model.CanonicalParams, error) {
	domain := normalizeDomain(raw.Domain)
	if domain == "" {
		return model.CanonicalParams{}, errors.ValidationField("domain", "domain is required")
	}

	canonical := model.CanonicalParams{
		Domain:  domain,
		IPv4:    boolOrFalse(raw.IPv4),
		IPv6:    boolOrFalse(raw.IPv6),
		Profile: normalizeProfile(raw.Profile, defaults.Profile),
	}

	for _, ns := range raw.Nameservers {
		if ns.Empty() {
			continue
		}
		canonical.Nameservers = append(canonical.Nameservers, model.Nameserver{
			Name: strings.ToLower(strings.TrimSpace(ns.Name)),
			IP:   strings.TrimSpace(ns.IP),
		})
	}

	for _, ds := range raw.DSInfo {
		if ds.Empty() {
			continue
		}
		canonical.DSInfo = append(canonical.DSInfo, model.DSRecord{
			KeyTag:     ds.KeyTag,
			Algorithm:  ds.Algorithm,
			DigestType: ds.DigestType,
			Digest:     strings.ToLower(strings.TrimSpace(ds.Digest)),
		})
	}

	return canonical, nil
}

// normalizeDomain lowercases and trims a domain name and drops a single
// trailing dot. The root zone "." is kept as-is.
func normalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "." {
		return d
	}
	return strings.TrimSuffix(d, ".")
}

func normalizeProfile(profile, fallback string) string {
	p := strings.TrimSpace(profile)
	if p == "" {
		return fallback
	}
	return p
}

func boolOrFalse(b *bool) bool {
	return b != nil && *b
}
