// Package identity derives stable locator identities for externally-sourced
// spectra records and resolves them to product IDs through the locator alias
// index.
//
// Identity precedence is strict: a provider-native identifier always wins;
// otherwise the record's URL is normalized and used. Records with neither a
// native ID nor a parseable URL get a WEAK identity signal - the caller must
// defer firm deduplication to post-acquisition byte-fingerprint comparison.
package identity

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/novacat/novacat/pkg/catalog"
)

// Prefixes for the two identity ladder rungs.
const (
	nativeIDPrefix = "id:"
	urlPrefix      = "url:"
)

// trackingParams are query parameters stripped during URL normalization.
// They vary per discovery session without changing the addressed bytes.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"ref":          true,
	"session":      true,
	"sessionid":    true,
}

// defaultPorts by scheme, stripped during normalization.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ftp":   "21",
}

// Identity is the deterministic locator identity for a discovered record.
type Identity struct {
	Value string
	// Weak marks an identity derived from an unparseable locator with no
	// native ID. Weak identities still deduplicate exact repeats but must
	// not be trusted as a firm dedup key.
	Weak bool
}

// Derive produces the locator identity for a discovered record.
//
// Precedence:
//  1. nativeID present: "id:" + nativeID
//  2. parseable URL:    "url:" + normalized URL
//  3. neither:          "url:" + raw string, flagged Weak
func Derive(nativeID, rawURL string) Identity {
	if nativeID != "" {
		return Identity{Value: nativeIDPrefix + nativeID}
	}

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return Identity{Value: urlPrefix + strings.TrimSpace(rawURL), Weak: true}
	}
	return Identity{Value: urlPrefix + normalized}
}

// NormalizeURL canonicalizes a URL so equivalent locators yield identical
// identities: scheme and host are lowercased, default ports stripped,
// tracking query parameters removed, query parameters sorted, path segments
// collapsed, and fragments dropped.
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("unparseable URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL missing scheme or host: %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if port := u.Port(); port != "" && defaultPorts[u.Scheme] == port {
		u.Host = u.Hostname()
	}

	u.Path = collapsePath(u.Path)
	u.RawQuery = normalizeQuery(u.Query())
	u.Fragment = ""

	return u.String(), nil
}

// collapsePath removes empty and "." segments and resolves "..", then
// strips any trailing slash.
func collapsePath(path string) string {
	if path == "" {
		return ""
	}

	var segments []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return ""
	}
	return "/" + strings.Join(segments, "/")
}

// normalizeQuery drops tracking parameters and sorts the rest for a
// deterministic encoding.
func normalizeQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if trackingParams[strings.ToLower(key)] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	kept := url.Values{}
	for _, key := range keys {
		kept[key] = values[key]
	}
	return kept.Encode()
}

// Resolver assigns product IDs through the locator alias index.
type Resolver struct {
	store *catalog.Store
}

// NewResolver creates a resolver backed by the catalog store.
func NewResolver(store *catalog.Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveProductID maps (provider, locator_identity) to a product ID,
// creating the alias row when absent. Under a concurrent first-insert race
// the losing writer re-reads and reuses the winning product ID, so the same
// key always yields the same product ID once any alias exists.
//
// Returns the product ID and whether this call created the alias.
func (r *Resolver) ResolveProductID(ctx context.Context, provider, locatorIdentity, novaID string) (string, bool, error) {
	if provider == "" {
		return "", false, fmt.Errorf("provider cannot be empty")
	}
	if locatorIdentity == "" {
		return "", false, fmt.Errorf("locator identity cannot be empty")
	}

	existing, err := r.store.GetAlias(ctx, provider, locatorIdentity)
	if err == nil {
		return existing.ProductID, false, nil
	}
	if !catalog.IsNotFound(err) {
		return "", false, fmt.Errorf("failed to look up locator alias: %w", err)
	}

	candidate := &catalog.LocatorAlias{
		Provider:        provider,
		LocatorIdentity: locatorIdentity,
		ProductID:       uuid.New().String(),
		NovaID:          novaID,
	}
	created, err := r.store.PutAliasIfAbsent(ctx, candidate)
	if err != nil {
		return "", false, fmt.Errorf("failed to insert locator alias: %w", err)
	}
	if created {
		return candidate.ProductID, true, nil
	}

	// Lost the race: the winner's alias is authoritative.
	winner, err := r.store.GetAlias(ctx, provider, locatorIdentity)
	if err != nil {
		return "", false, fmt.Errorf("failed to re-read locator alias after race: %w", err)
	}
	return winner.ProductID, false, nil
}
