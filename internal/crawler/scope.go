package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/alvmarrod/domain-crawler/internal/config"
)

// BaseDomain derives the scope anchor from the seed URL. In registrable
// mode the seed host is widened to its eTLD+1; IP addresses and hosts
// without a known suffix keep the plain host.
func BaseDomain(seedURL, scopeMode string) (string, error) {
	host, err := ExtractHost(seedURL)
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", fmt.Errorf("seed URL %q has no host", seedURL)
	}

	if scopeMode == config.ScopeRegistrable && net.ParseIP(host) == nil {
		if root, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			return root, nil
		}
	}
	return host, nil
}

// ExtractHost returns the lowercase hostname of a URL, port stripped
func ExtractHost(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Hostname()), nil
}

// InScope reports whether the URL's host is the base domain or one of its subdomains
func InScope(rawURL, baseDomain string) bool {
	host, err := ExtractHost(rawURL)
	if err != nil || host == "" || baseDomain == "" {
		return false
	}

	base := strings.ToLower(baseDomain)
	return host == base || strings.HasSuffix(host, "."+base)
}

// NormalizeURL produces the visited-set key of an absolute URL: scheme and
// host are lowercased, the fragment is dropped and an empty path becomes "/".
// Query strings and trailing slashes are kept as they are.
func NormalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	if parsed.Path == "" {
		parsed.Path = "/"
		parsed.RawPath = ""
	}

	return parsed.String(), nil
}

// ResolveLink resolves an href against the page it was found on and
// normalizes the result. Only http and https targets are returned.
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := base.ResolveReference(ref)
	switch strings.ToLower(abs.Scheme) {
	case "http", "https":
	default:
		return "", false
	}

	normalized, err := NormalizeURL(abs.String())
	if err != nil {
		return "", false
	}
	return normalized, true
}
