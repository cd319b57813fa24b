package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// normalizeFlags standardize URLs to avoid frontier duplicates: lowercase
// scheme/host, strip default ports and fragments, sort query parameters.
const normalizeFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery |
	purell.FlagRemoveDuplicateSlashes

// NormalizeURL returns the canonical form of rawURL used as its identity.
func NormalizeURL(rawURL string) (string, error) {
	normalized, err := purell.NormalizeURLString(rawURL, normalizeFlags)
	if err != nil {
		return "", fmt.Errorf("normalize url %q: %w", rawURL, err)
	}
	return normalized, nil
}

// SameHost reports whether link belongs to the seed's host. Links with an
// empty host (relative before resolution) count as same-host.
func SameHost(seed *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Host == "" || strings.EqualFold(u.Host, seed.Host)
}

// HasExcludedSegment reports whether any path segment of link appears in
// excluded.
func HasExcludedSegment(link string, excluded []string) bool {
	if len(excluded) == 0 {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	for _, segment := range strings.Split(u.Path, "/") {
		for _, ex := range excluded {
			if segment == ex {
				return true
			}
		}
	}
	return false
}
