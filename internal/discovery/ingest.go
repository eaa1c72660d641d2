// Package discovery ingests candidate records from provider queries:
// normalize, derive locator identity, assign or reuse a product ID through
// the alias index, and create stub product records. Ingestion is idempotent:
// rediscovering a known record is a no-op that reports the existing product.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/novacat/novacat/internal/identity"
	"github.com/novacat/novacat/internal/provider"
	"github.com/novacat/novacat/internal/telemetry"
	"github.com/novacat/novacat/pkg/catalog"
)

// RecordResult values.
const (
	ResultCreated = "created" // new product stub written
	ResultReused  = "reused"  // alias already mapped to a product
	ResultError   = "error"   // record could not be ingested
)

// RecordResult reports what ingestion did with one discovered record.
type RecordResult struct {
	ProductID       string
	LocatorIdentity string
	WeakIdentity    bool
	Result          string
	Err             error
}

// Ingestor creates product stubs from discovered records.
type Ingestor struct {
	store     *catalog.Store
	providers *provider.Registry
	resolver  *identity.Resolver
}

// NewIngestor creates a discovery ingestor.
func NewIngestor(store *catalog.Store, providers *provider.Registry) *Ingestor {
	return &Ingestor{
		store:     store,
		providers: providers,
		resolver:  identity.NewResolver(store),
	}
}

// IngestRaw normalizes a raw provider payload through the provider's
// adapter and ingests the result.
func (i *Ingestor) IngestRaw(ctx context.Context, novaID, providerName, correlationID string, raw map[string]string) RecordResult {
	adapter, err := i.providers.Get(providerName)
	if err != nil {
		telemetry.DiscoveryRecord(ResultError)
		return RecordResult{Result: ResultError, Err: err}
	}

	record, err := adapter.NormalizeRecord(raw)
	if err != nil {
		telemetry.DiscoveryRecord(ResultError)
		return RecordResult{Result: ResultError, Err: fmt.Errorf("failed to normalize record: %w", err)}
	}
	record.Provider = providerName

	return i.Ingest(ctx, novaID, correlationID, record)
}

// Ingest resolves a normalized record's identity and creates a stub product
// when the record is new. Rediscovery of the same (provider, locator
// identity) always yields the same product ID, including under concurrent
// first-insert races.
func (i *Ingestor) Ingest(ctx context.Context, novaID, correlationID string, record provider.DiscoveredRecord) RecordResult {
	id := identity.Derive(record.NativeID, record.URL)

	productID, createdAlias, err := i.resolver.ResolveProductID(ctx, record.Provider, id.Value, novaID)
	if err != nil {
		telemetry.DiscoveryRecord(ResultError)
		return RecordResult{LocatorIdentity: id.Value, WeakIdentity: id.Weak, Result: ResultError, Err: err}
	}

	result := RecordResult{
		ProductID:       productID,
		LocatorIdentity: id.Value,
		WeakIdentity:    id.Weak,
		Result:          ResultReused,
	}

	if !createdAlias {
		// Rediscovery can surface access paths the first discovery missed;
		// merge them into the existing product.
		if err := i.mergeLocators(ctx, novaID, productID, record); err != nil {
			telemetry.DiscoveryRecord(ResultError)
			result.Result = ResultError
			result.Err = err
			return result
		}
	} else {
		stub := &catalog.DataProduct{
			ProductID:         productID,
			NovaID:            novaID,
			Provider:          record.Provider,
			LocatorIdentity:   id.Value,
			WeakIdentity:      id.Weak,
			Locators:          buildLocators(record),
			AcquisitionStatus: catalog.AcquisitionStub,
			ValidationStatus:  catalog.ValidationUnvalidated,
			Eligibility:       catalog.EligibilityAcquire,
		}
		err := i.store.CreateStub(ctx, stub)
		switch {
		case err == nil:
			result.Result = ResultCreated
		case isAlreadyExists(err):
			// A concurrent ingest created the stub between our alias insert
			// and this write; the record is already covered.
		default:
			telemetry.DiscoveryRecord(ResultError)
			result.Result = ResultError
			result.Err = err
			return result
		}
	}

	telemetry.DiscoveryRecord(result.Result)
	i.logEvent("record_ingested", map[string]interface{}{
		"correlation_id":   correlationID,
		"nova_id":          novaID,
		"product_id":       productID,
		"provider":         record.Provider,
		"locator_identity": id.Value,
		"weak_identity":    id.Weak,
		"result":           result.Result,
	})
	return result
}

// mergeLocators appends access paths from a rediscovered record that the
// existing product does not already carry. New paths join as mirrors; the
// product's primary locator is never displaced. Concurrent updates are
// retried on version conflict.
func (i *Ingestor) mergeLocators(ctx context.Context, novaID, productID string, record provider.DiscoveredRecord) error {
	for attempt := 0; attempt < 3; attempt++ {
		product, err := i.store.GetProduct(ctx, novaID, productID)
		if err != nil {
			return fmt.Errorf("failed to load product for locator merge: %w", err)
		}

		known := make(map[string]bool, len(product.Locators))
		for _, loc := range product.Locators {
			known[loc.Value] = true
		}

		added := false
		for _, loc := range buildLocators(record) {
			if known[loc.Value] {
				continue
			}
			loc.Role = catalog.LocatorRoleMirror
			product.Locators = append(product.Locators, loc)
			known[loc.Value] = true
			added = true
		}
		if !added {
			return nil
		}

		err = i.store.CompareAndUpdate(ctx, product, product.RecordVersion)
		if err == nil {
			return nil
		}
		if !errors.Is(err, catalog.ErrVersionConflict) {
			return fmt.Errorf("failed to merge locators: %w", err)
		}
	}
	return fmt.Errorf("failed to merge locators for product %s: %w", productID, catalog.ErrVersionConflict)
}

// buildLocators orders the record's access paths with the discovery URL as
// primary and mirrors after it.
func buildLocators(record provider.DiscoveredRecord) []catalog.Locator {
	var locators []catalog.Locator
	if record.URL != "" {
		locators = append(locators, catalog.Locator{
			Kind:  catalog.LocatorKindURL,
			Role:  catalog.LocatorRolePrimary,
			Value: record.URL,
		})
	}
	for _, mirror := range record.Mirrors {
		locators = append(locators, catalog.Locator{
			Kind:  catalog.LocatorKindURL,
			Role:  catalog.LocatorRoleMirror,
			Value: mirror,
		})
	}
	return locators
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, catalog.ErrAlreadyExists)
}

// logEvent logs a structured event in JSON format.
func (i *Ingestor) logEvent(eventType string, data map[string]interface{}) {
	data["level"] = "info"
	data["component"] = "discovery"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Discovery] Failed to marshal log event: %v", err)
		return
	}
	log.Println(string(jsonData))
}
