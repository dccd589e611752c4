package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultMappingTTL is used when the cache is created with a zero TTL
const DefaultMappingTTL = 5 * time.Minute

// MappingCache is a read-through cache in front of an AccountMappingRepository.
// Concurrent misses for one tenant share a single load. Redis failures fall
// back to the wrapped repository. A nil client disables Redis and keeps only
// the load de-duplication.
type MappingCache struct {
	client redis.Cmdable
	next   ledger.AccountMappingRepository
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewMappingCache wraps next with a Redis cache
func NewMappingCache(client redis.Cmdable, next ledger.AccountMappingRepository, ttl time.Duration, logger *zap.Logger) *MappingCache {
	if ttl <= 0 {
		ttl = DefaultMappingTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingCache{client: client, next: next, ttl: ttl, logger: logger}
}

func mappingCacheKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("ledger:mapping:%s", tenantID.String())
}

// FindByTenant returns the cached mapping or loads and caches it.
// Not-found results are not cached.
func (c *MappingCache) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*ledger.AccountMapping, error) {
	key := mappingCacheKey(tenantID)

	if mapping, ok := c.get(ctx, key); ok {
		return mapping, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		mapping, err := c.next.FindByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, mapping)
		return mapping, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ledger.AccountMapping), nil
}

// Invalidate drops the tenant's cached mapping
func (c *MappingCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, mappingCacheKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate account mapping: %w", err)
	}
	return nil
}

func (c *MappingCache) get(ctx context.Context, key string) (*ledger.AccountMapping, bool) {
	if c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("account mapping cache miss", zap.String("key", key))
		return nil, false
	}
	if err != nil {
		c.logger.Warn("account mapping cache unavailable", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	mapping, err := decodeMapping(data)
	if err != nil {
		c.logger.Warn("dropping corrupt account mapping cache entry", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return nil, false
	}
	return mapping, true
}

func (c *MappingCache) set(ctx context.Context, key string, mapping *ledger.AccountMapping) {
	if c.client == nil {
		return
	}
	data, err := encodeMapping(mapping)
	if err != nil {
		c.logger.Warn("failed to encode account mapping", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache account mapping", zap.String("key", key), zap.Error(err))
	}
}

type cachedMapping struct {
	TenantID          uuid.UUID       `json:"tenant_id"`
	ReportingCurrency string          `json:"reporting_currency"`
	Accounts          []cachedAccount `json:"accounts"`
}

type cachedAccount struct {
	Role      string    `json:"role"`
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func encodeMapping(m *ledger.AccountMapping) ([]byte, error) {
	out := cachedMapping{
		TenantID:          m.TenantID,
		ReportingCurrency: m.ReportingCurrency.String(),
	}
	for _, role := range m.Roles() {
		account, err := m.Resolve(role)
		if err != nil {
			return nil, err
		}
		out.Accounts = append(out.Accounts, cachedAccount{
			Role:      role.String(),
			ID:        account.ID,
			TenantID:  account.TenantID,
			Code:      account.Code,
			Name:      account.Name,
			CreatedAt: account.CreatedAt,
			UpdatedAt: account.UpdatedAt,
		})
	}
	return json.Marshal(out)
}

func decodeMapping(data []byte) (*ledger.AccountMapping, error) {
	var in cachedMapping
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	accounts := make(map[ledger.Role]ledger.Account, len(in.Accounts))
	for _, a := range in.Accounts {
		role, err := ledger.ParseRole(a.Role)
		if err != nil {
			return nil, err
		}
		accounts[role] = ledger.Account{
			BaseEntity: shared.BaseEntity{ID: a.ID, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt},
			TenantID:   a.TenantID,
			Code:       a.Code,
			Name:       a.Name,
		}
	}
	return ledger.NewAccountMapping(in.TenantID, valueobject.Currency(in.ReportingCurrency), accounts)
}

var _ ledger.AccountMappingRepository = (*MappingCache)(nil)
