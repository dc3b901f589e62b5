package routing

import (
	"context"
	"time"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
)

// TenantStore is the narrow slice of internal/store.Store quota
// enforcement depends on, kept local so this package never imports store
// (store depends on domain, not the other way around).
type TenantStore interface {
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	AddTokensUsed(ctx context.Context, tenantID string, tokens int64) error
	ResetTenantPeriod(ctx context.Context, tenantID string, resetAt time.Time) error
}

// QuotaEnforcer checks and records tenant token consumption against the
// monthly budget in domain.Tenant.
type QuotaEnforcer struct {
	store TenantStore
	now   func() time.Time
}

// NewQuotaEnforcer builds a QuotaEnforcer. now defaults to time.Now.
func NewQuotaEnforcer(store TenantStore) *QuotaEnforcer {
	return &QuotaEnforcer{store: store, now: time.Now}
}

// CheckAndReserve verifies the tenant has at least estimatedTokens left in
// its period, rolling the period over first if it has elapsed. It returns a
// KindQuota error when the tenant would exceed its budget; callers must
// call RecordUsage with the actual token count after the call completes.
func (q *QuotaEnforcer) CheckAndReserve(ctx context.Context, tenantID string, estimatedTokens int64) error {
	tenant, err := q.store.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	now := q.now()
	if !tenant.LimitResetAt.IsZero() && !now.Before(tenant.LimitResetAt) {
		nextReset := domain.FirstOfNextMonthUTC(now)
		if err := q.store.ResetTenantPeriod(ctx, tenantID, nextReset); err != nil {
			return err
		}
		tenant.TokensUsedPeriod = 0
		tenant.LimitResetAt = nextReset
	}

	if tenant.HasUnlimitedTokens() {
		return nil
	}

	if tenant.TokensUsedPeriod+estimatedTokens > *tenant.MonthlyTokenLimit {
		return errs.New(errs.KindQuota, "tenant "+tenantID+" would exceed its monthly token budget")
	}
	return nil
}

// RecordUsage adds actualTokens to the tenant's period counter after a call
// completes.
func (q *QuotaEnforcer) RecordUsage(ctx context.Context, tenantID string, actualTokens int64) error {
	return q.store.AddTokensUsed(ctx, tenantID, actualTokens)
}
