package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-ingest/core"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const deliveryCacheKeyPrefix = "go-ingest::delivery::v1"

// CachedDeliveryStore layers a read-through cache over a delivery ledger.
// Only processed deliveries stay cached: they are terminal, so the cached
// snapshot can never go stale. Pending and failed records are fetched and
// immediately evicted, and every write evicts the key.
type CachedDeliveryStore struct {
	base  core.DeliveryLedger
	cache repositorycache.CacheService
}

func NewCachedDeliveryStore(
	base core.DeliveryLedger,
	cacheService repositorycache.CacheService,
) (*CachedDeliveryStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base delivery ledger is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: delivery cache service is required")
	}
	return &CachedDeliveryStore{base: base, cache: cacheService}, nil
}

// DeliveryCacheKey returns the deterministic cache key contract for delivery
// reads: go-ingest::delivery::v1::<provider_id>::<delivery_id> with each
// segment URL-path escaped after trimming.
func DeliveryCacheKey(providerID, deliveryID string) (string, error) {
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" {
		return "", fmt.Errorf("sqlstore: provider id is required")
	}
	if deliveryID == "" {
		return "", fmt.Errorf("sqlstore: delivery id is required")
	}
	segments := []string{url.PathEscape(providerID), url.PathEscape(deliveryID)}
	return strings.Join(append([]string{deliveryCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedDeliveryStore) CreateIfAbsent(ctx context.Context, input core.CreateDeliveryInput) (core.DeliveryRecord, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryRecord{}, false, fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	record, existed, err := s.base.CreateIfAbsent(ctx, input)
	if err != nil {
		return core.DeliveryRecord{}, false, err
	}
	if err := s.evict(ctx, record.ProviderID, record.DeliveryID); err != nil {
		return core.DeliveryRecord{}, false, err
	}
	return record, existed, nil
}

func (s *CachedDeliveryStore) Get(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	cacheKey, err := DeliveryCacheKey(providerID, deliveryID)
	if err != nil {
		return core.DeliveryRecord{}, err
	}

	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.DeliveryRecord, error) {
		return s.base.Get(ctx, providerID, deliveryID)
	})
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if record.Status != core.DeliveryStatusProcessed {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.DeliveryRecord{}, err
		}
	}
	return record, nil
}

func (s *CachedDeliveryStore) MarkProcessed(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	record, err := s.base.MarkProcessed(ctx, providerID, deliveryID)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if err := s.evict(ctx, providerID, deliveryID); err != nil {
		return core.DeliveryRecord{}, err
	}
	return record, nil
}

func (s *CachedDeliveryStore) MarkFailed(ctx context.Context, providerID, deliveryID string, cause error) (core.DeliveryRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	record, err := s.base.MarkFailed(ctx, providerID, deliveryID, cause)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if err := s.evict(ctx, providerID, deliveryID); err != nil {
		return core.DeliveryRecord{}, err
	}
	return record, nil
}

func (s *CachedDeliveryStore) ListDeadLettered(ctx context.Context, maxRetries, limit int) ([]core.DeliveryRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	return s.base.ListDeadLettered(ctx, maxRetries, limit)
}

func (s *CachedDeliveryStore) ResetForReplay(ctx context.Context, providerID, deliveryID string) (core.DeliveryRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	record, err := s.base.ResetForReplay(ctx, providerID, deliveryID)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if err := s.evict(ctx, providerID, deliveryID); err != nil {
		return core.DeliveryRecord{}, err
	}
	return record, nil
}

func (s *CachedDeliveryStore) Delete(ctx context.Context, providerID, deliveryID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	if err := s.base.Delete(ctx, providerID, deliveryID); err != nil {
		return err
	}
	return s.evict(ctx, providerID, deliveryID)
}

func (s *CachedDeliveryStore) evict(ctx context.Context, providerID, deliveryID string) error {
	cacheKey, err := DeliveryCacheKey(providerID, deliveryID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.DeliveryLedger = (*CachedDeliveryStore)(nil)
