package credibility

import (
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// Tier is the authority classification used to seed new domains
type Tier int

const (
	TierUnknown   Tier = 0 // No seed; credibility stays unknown
	TierPrimary   Tier = 1 // Listed in primary_domains
	TierSecondary Tier = 2 // Listed in secondary_domains
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Classifier assigns authority tiers to domain names
type Classifier struct {
	primary   map[string]bool
	secondary map[string]bool
}

// NewClassifier builds a classifier from the configured lists. With both
// lists empty every domain is TierUnknown. An entry matches itself and its
// subdomains, so "gov" covers every .gov host.
func NewClassifier(cfg model.CredibilityConfig) *Classifier {
	primary, secondary := cfg.PrimaryDomains, cfg.SecondaryDomains
	c := &Classifier{
		primary:   make(map[string]bool, len(primary)),
		secondary: make(map[string]bool, len(secondary)),
	}
	for _, d := range primary {
		if e := normalizeEntry(d); e != "" {
			c.primary[e] = true
		}
	}
	for _, d := range secondary {
		if e := normalizeEntry(d); e != "" {
			c.secondary[e] = true
		}
	}
	return c
}

// Classify returns the tier of a normalized domain name
func (c *Classifier) Classify(host string) Tier {
	if matchSuffix(host, c.primary) {
		return TierPrimary
	}
	if matchSuffix(host, c.secondary) {
		return TierSecondary
	}
	return TierUnknown
}

func normalizeEntry(d string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
}

// matchSuffix matches host or any parent domain of host (fr.wikipedia.org → wikipedia.org)
func matchSuffix(host string, set map[string]bool) bool {
	for h := host; h != ""; {
		if set[h] {
			return true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			return false
		}
		h = h[i+1:]
	}
	return false
}
