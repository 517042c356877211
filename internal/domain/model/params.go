// Package model defines the core data types for the delegation test backend.
package model

import "strings"

// Nameserver is a caller-supplied nameserver override. The address is
// optional; a name with no address means the engine resolves it itself.
type Nameserver struct {
	Name string `json:"ns"`
	IP   string `json:"ip,omitempty"`
}

// Empty reports whether every field of the entry is empty. Empty entries
// are semantically absent and never affect identity or classification.
func (n Nameserver) Empty() bool {
	return strings.TrimSpace(n.Name) == "" && strings.TrimSpace(n.IP) == ""
}

// FieldCount returns the number of non-empty fields in the entry.
func (n Nameserver) FieldCount() int {
	count := 0
	if strings.TrimSpace(n.Name) != "" {
		count++
	}
	if strings.TrimSpace(n.IP) != "" {
		count++
	}
	return count
}

// DSRecord is a caller-supplied DS record override used for undelegated
// DNSSEC testing.
type DSRecord struct {
	KeyTag     int    `json:"keytag"`
	Algorithm  int    `json:"algorithm"`
	DigestType int    `json:"digtype"`
	Digest     string `json:"digest"`
}

// Empty reports whether every field of the record is zero-valued.
func (d DSRecord) Empty() bool {
	return d.KeyTag == 0 && d.Algorithm == 0 && d.DigestType == 0 &&
		strings.TrimSpace(d.Digest) == ""
}

// FieldCount returns the number of non-zero fields in the record.
func (d DSRecord) FieldCount() int {
	count := 0
	if d.KeyTag != 0 {
		count++
	}
	if d.Algorithm != 0 {
		count++
	}
	if d.DigestType != 0 {
		count++
	}
	if strings.TrimSpace(d.Digest) != "" {
		count++
	}
	return count
}

// TestParams is the raw, semi-structured test request as submitted by a
// client. It is preserved verbatim on the test row so get_test_params can
// round-trip it back to the caller.
type TestParams struct {
	Domain        string       `json:"domain"`
	ClientID      string       `json:"client_id,omitempty"`
	ClientVersion string       `json:"client_version,omitempty"`
	IPv4          *bool        `json:"ipv4,omitempty"`
	IPv6          *bool        `json:"ipv6,omitempty"`
	Profile       string       `json:"profile,omitempty"`
	Nameservers   []Nameserver `json:"nameservers,omitempty"`
	DSInfo        []DSRecord   `json:"ds_info,omitempty"`
}

// CanonicalParams is TestParams after canonicalization: defaults applied,
// empty list entries removed, client identity stripped. Field order is the
// canonical encoding order; two requests a human would consider "the same
// test" produce byte-identical encodings of this struct.
type CanonicalParams struct {
	Domain      string       `json:"domain"`
	IPv4        bool         `json:"ipv4"`
	IPv6        bool         `json:"ipv6"`
	Profile     string       `json:"profile"`
	Nameservers []Nameserver `json:"nameservers,omitempty"`
	DSInfo      []DSRecord   `json:"ds_info,omitempty"`
}

// OverrideFieldCount returns the number of non-empty override field values
// across all nameserver and DS entries. This is the single definition of
// "non-empty override" shared by the classifier and the backfill routine.
func (c CanonicalParams) OverrideFieldCount() int {
	count := 0
	for _, ns := range c.Nameservers {
		count += ns.FieldCount()
	}
	for _, ds := range c.DSInfo {
		count += ds.FieldCount()
	}
	return count
}

// DelegationClass says whether a test runs against the live delegation or
// against caller-supplied overrides.
type DelegationClass string

const (
	// ClassDelegated queries the domain's live, authoritative delegation.
	ClassDelegated DelegationClass = "delegated"
	// ClassUndelegated uses caller-supplied nameserver or DS overrides.
	ClassUndelegated DelegationClass = "undelegated"
)

// Valid returns true if the DelegationClass is valid.
func (c DelegationClass) Valid() bool {
	return c == ClassDelegated || c == ClassUndelegated
}

// Undelegated reports whether the class is ClassUndelegated.
func (c DelegationClass) Undelegated() bool {
	return c == ClassUndelegated
}

// ClassFromUndelegated converts the stored boolean column value to a class.
func ClassFromUndelegated(undelegated bool) DelegationClass {
	if undelegated {
		return ClassUndelegated
	}
	return ClassDelegated
}
