package config

import (
	"strings"
	"time"
)

// BackendConfig contains configuration for the test registry itself:
// profile names, the reuse window, and submission limits.
type BackendConfig struct {
	// DefaultProfile is the profile applied when a request names none.
	DefaultProfile string `env:"ZM_DEFAULT_PROFILE" envDefault:"default"`

	// Profiles is the list of accepted profile names.
	Profiles []string `env:"ZM_PROFILES" envDefault:"default"`

	// ReuseWindow is how long a finished test may satisfy a new, identical
	// submission instead of creating new work. Non-terminal tests are always
	// reused regardless of age.
	ReuseWindow time.Duration `env:"ZM_AGE_REUSE_PREVIOUS_TEST" envDefault:"10m"`

	// BatchMaxSize caps the number of domains accepted in one batch.
	BatchMaxSize int `env:"ZM_BATCH_MAX_SIZE" envDefault:"10000"`

	// HistoryDefaultLimit is the page size applied when a history query
	// names none.
	HistoryDefaultLimit int `env:"ZM_HISTORY_DEFAULT_LIMIT" envDefault:"200"`

	// HistoryMaxLimit caps the history page size.
	HistoryMaxLimit int `env:"ZM_HISTORY_MAX_LIMIT" envDefault:"1000"`
}

// Sanitize applies guardrails to backend configuration values.
func (b *BackendConfig) Sanitize() {
	b.DefaultProfile = strings.TrimSpace(b.DefaultProfile)
	if b.DefaultProfile == "" {
		b.DefaultProfile = "default"
	}

	profiles := make([]string, 0, len(b.Profiles))
	seen := make(map[string]bool, len(b.Profiles))
	for _, p := range b.Profiles {
		name := strings.TrimSpace(p)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		profiles = append(profiles, name)
	}
	if !seen[b.DefaultProfile] {
		profiles = append(profiles, b.DefaultProfile)
	}
	b.Profiles = profiles

	if b.ReuseWindow < 0 {
		b.ReuseWindow = 0
	}
	if b.BatchMaxSize < 1 {
		b.BatchMaxSize = 1
	}
	if b.HistoryDefaultLimit < 1 {
		b.HistoryDefaultLimit = 1
	}
	if b.HistoryMaxLimit < b.HistoryDefaultLimit {
		b.HistoryMaxLimit = b.HistoryDefaultLimit
	}
}

// HasProfile reports whether name is an accepted profile.
func (b *BackendConfig) HasProfile(name string) bool {
	for _, p := range b.Profiles {
		if p == name {
			return true
		}
	}
	return false
}
