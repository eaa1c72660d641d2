package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/novacat/novacat/internal/classify"
	"github.com/novacat/novacat/pkg/catalog"
)

// HTTPAdapter is the generic URL-fetching adapter. Providers that expose
// plain HTTP(S) downloads need no bespoke client; provider-specific
// protocols get their own Adapter implementations.
type HTTPAdapter struct {
	client *http.Client
}

// NewHTTPAdapter creates an adapter on the given client; nil uses
// http.DefaultClient. Timeouts come from the caller's context.
func NewHTTPAdapter(client *http.Client) *HTTPAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAdapter{client: client}
}

// Acquire fetches bytes from the product's locators in order, primary
// first. Within one call later locators are tried only on retryable
// failures; the last failure wins when all locators are exhausted.
func (a *HTTPAdapter) Acquire(ctx context.Context, locators []catalog.Locator) ([]byte, error) {
	if len(locators) == 0 {
		return nil, classify.NewFailure(classify.KindImpossibleState, "product has no locators")
	}

	var lastErr error
	for _, locator := range locators {
		if locator.Kind != catalog.LocatorKindURL {
			lastErr = classify.NewFailure(classify.KindBadRequest, "unsupported locator kind %s", locator.Kind)
			continue
		}

		data, err := a.fetch(ctx, locator.Value)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if cls, _, _ := classify.Classify(err); cls != classify.Retryable {
			break
		}
	}
	return nil, lastErr
}

func (a *HTTPAdapter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, classify.NewFailure(classify.KindBadRequest, "invalid locator URL %q: %v", url, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, classify.NewFailure(classify.KindTimeout, "fetch %s timed out", url)
		}
		return nil, classify.NewFailure(classify.KindNetwork, "fetch %s: %v", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, classify.NewFailure(classify.KindNetwork, "read %s: %v", url, err)
		}
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, classify.NewFailure(classify.KindThrottled, "provider throttled fetch of %s", url)
	case resp.StatusCode == http.StatusNotFound:
		return nil, classify.NewFailure(classify.KindNotFound, "fetch %s: 404", url)
	case resp.StatusCode >= 500:
		return nil, classify.NewFailure(classify.KindProviderUnavailable, "fetch %s: HTTP %d", url, resp.StatusCode)
	default:
		return nil, classify.NewFailure(classify.KindBadRequest, "fetch %s: HTTP %d", url, resp.StatusCode)
	}
}

// NormalizeRecord maps the generic raw payload shape to a DiscoveredRecord.
// Recognized keys: native_id, url, mirrors (comma-separated); remaining
// keys pass through as hints.
func (a *HTTPAdapter) NormalizeRecord(raw map[string]string) (DiscoveredRecord, error) {
	record := DiscoveredRecord{
		NativeID: strings.TrimSpace(raw["native_id"]),
		URL:      strings.TrimSpace(raw["url"]),
		Hints:    map[string]string{},
	}
	if mirrors := strings.TrimSpace(raw["mirrors"]); mirrors != "" {
		for _, mirror := range strings.Split(mirrors, ",") {
			if mirror = strings.TrimSpace(mirror); mirror != "" {
				record.Mirrors = append(record.Mirrors, mirror)
			}
		}
	}
	for key, value := range raw {
		switch key {
		case "native_id", "url", "mirrors":
		default:
			record.Hints[key] = value
		}
	}

	if record.NativeID == "" && record.URL == "" {
		return DiscoveredRecord{}, fmt.Errorf("record has neither native_id nor url")
	}
	return record, nil
}
