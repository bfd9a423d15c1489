package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// Source is one search result retained as evidence for an analysis
type Source struct {
	ID               uuid.UUID `json:"id"`
	AnalysisID       uuid.UUID `json:"analysis_id"`
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Snippet          string    `json:"snippet"`
	PublishedDate    *string   `json:"published_date,omitempty"` // nil: not requested, "": not found
	DomainID         uuid.UUID `json:"domain_id"`
	Domain           *Domain   `json:"domain,omitempty"`
	CredibilityScore *float64  `json:"credibility_score"` // Domain credibility at fetch time
	Position         int       `json:"position"`          // Rank within the analysis
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// URLHash identifies the source URL within an analysis
func (s *Source) URLHash() string {
	return HashURL(s.URL)
}

// HashURL returns the hex sha256 of a URL
func HashURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])
}

// Domain is a website with its (possibly unknown) credibility
type Domain struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	CredibilityScore *float64  `json:"credibility_score"` // nil means unknown, distinct from 0
	IsReliable       bool      `json:"is_reliable"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NormalizeDomainName reduces a URL or host to a lowercase host without port or "www."
func NormalizeDomainName(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", Validationf("empty domain")
	}

	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", Validationf("invalid URL %q: %v", raw, err)
		}
		host = u.Host
	} else if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	host = strings.TrimPrefix(host, "www.")

	if host == "" {
		return "", Validationf("no host in %q", raw)
	}
	if net.ParseIP(host) != nil || host == "localhost" {
		return host, nil
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return "", Validationf("invalid domain %q: %v", host, err)
	}
	return host, nil
}
