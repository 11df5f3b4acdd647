// Package validate provides input validation utilities for untrusted request
// data.
package validate

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// URL validation errors
var (
	ErrEmpty            = errors.New("URL is empty")
	ErrURLTooLong       = errors.New("URL is too long")
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
	ErrDisallowedDomain = errors.New("URL domain not allowed")
	ErrSSRFRisk         = errors.New("URL poses SSRF risk")
)

// URLConstraints defines validation constraints for URLs.
type URLConstraints struct {
	AllowedSchemes []string // empty allows any scheme
	AllowedDomains []string // empty allows any public domain
	BlockPrivate   bool     // reject hosts resolving to private or loopback IPs
	MaxLength      int      // 0 means no limit
}

// DefaultURLConstraints is the policy for caller-supplied URLs: HTTPS only,
// any public domain, private address ranges blocked.
var DefaultURLConstraints = URLConstraints{
	AllowedSchemes: []string{"https"},
	BlockPrivate:   true,
	MaxLength:      2048,
}

func (c URLConstraints) allowsScheme(scheme string) bool {
	return len(c.AllowedSchemes) == 0 || slices.Contains(c.AllowedSchemes, scheme)
}

func (c URLConstraints) allowsDomain(hostname string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}
	for _, domain := range c.AllowedDomains {
		if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
			return true
		}
	}
	return false
}

// URL validates a URL against the given constraints and returns the trimmed
// URL string on success.
func URL(raw string, c URLConstraints) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	if c.MaxLength > 0 && len(raw) > c.MaxLength {
		return "", fmt.Errorf("%w: URL exceeds %d characters", ErrURLTooLong, c.MaxLength)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !c.allowsScheme(parsed.Scheme) {
		return "", fmt.Errorf("%w: got %q, allowed: %v", ErrDisallowedScheme, parsed.Scheme, c.AllowedSchemes)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}
	if !c.allowsDomain(hostname) {
		return "", fmt.Errorf("%w: %q not in allowlist", ErrDisallowedDomain, hostname)
	}

	if c.BlockPrivate {
		if err := checkSSRF(hostname); err != nil {
			return "", err
		}
	}

	return raw, nil
}

// checkSSRF rejects hostnames that resolve into private address space, so a
// crafted evidence reference cannot point the vision fetcher at internal
// services or cloud metadata endpoints.
func checkSSRF(hostname string) error {
	lower := strings.ToLower(hostname)
	if lower == "localhost" || lower == "localhost.localdomain" {
		return fmt.Errorf("%w: localhost not allowed", ErrSSRFRisk)
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// Unresolvable hosts pass here; the fetch itself will fail with a
		// clearer error than a validation rejection would give.
		return nil
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: private IP address %s", ErrSSRFRisk, ip.String())
		}
	}
	return nil
}

// isPrivateIP reports whether an IP belongs to loopback, RFC 1918 / ULA
// private space, link-local space, or is unspecified.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// EvidenceURL validates an evidence reference submitted for analysis.
// Evidence is fetched by the external vision service, so references must be
// public HTTPS URLs.
func EvidenceURL(raw string) (string, error) {
	return URL(raw, DefaultURLConstraints)
}
