package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

type ledgerHarness struct {
	db       *gorm.DB
	service  *appledger.PostingService
	mappings *GormAccountMappingRepository
	outbox   *event.GormOutboxRepository
	locker   *MutexLocker
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()
	db := newSQLiteDB(t)
	locker := NewMutexLocker(5 * time.Second)
	scope := NewGormTransactionScope(db, locker, event.NewOutboxPublisher(event.NewLedgerEventSerializer()))
	mappings := NewGormAccountMappingRepository(db)
	return &ledgerHarness{
		db:       db,
		service:  appledger.NewPostingService(scope, NewGormLedgerEntryRepository(db), mappings, zap.NewNop()),
		mappings: mappings,
		outbox:   event.NewGormOutboxRepository(db),
		locker:   locker,
	}
}

func (h *ledgerHarness) configure(t *testing.T, tenantID uuid.UUID, reporting valueobject.Currency) *ledger.AccountMapping {
	t.Helper()
	accounts := make(map[ledger.Role]ledger.Account)
	for _, role := range ledger.AllRoles() {
		accounts[role] = ledger.Account{BaseEntity: shared.NewBaseEntity(), TenantID: tenantID, Code: "1-" + role.Suffix(), Name: role.String()}
	}
	mapping, err := ledger.NewAccountMapping(tenantID, reporting, accounts)
	require.NoError(t, err)
	require.NoError(t, h.mappings.Save(context.Background(), mapping))
	return mapping
}

func invoice(tenantID uuid.UUID, ref string, currency valueobject.Currency, rate string) *ledger.SalesInvoice {
	return &ledger.SalesInvoice{
		DocumentHeader: ledger.DocumentHeader{
			TenantID:     tenantID,
			DocumentRef:  ref,
			Currency:     currency,
			ExchangeRate: decimal.RequireFromString(rate),
		},
		Subtotal: decimal.NewFromInt(1000),
		Discount: decimal.NewFromInt(100),
		Tax:      decimal.NewFromInt(90),
		Balance:  decimal.NewFromInt(990),
	}
}

func TestGormAccountMappingRepository_RoundTrip(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	saved := h.configure(t, tenantID, valueobject.USD)

	loaded, err := h.mappings.FindByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.USD, loaded.ReportingCurrency)
	assert.ElementsMatch(t, saved.Roles(), loaded.Roles())

	want, err := saved.Resolve(ledger.RoleRevenue)
	require.NoError(t, err)
	got, err := loaded.Resolve(ledger.RoleRevenue)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Code, got.Code)

	t.Run("saving again updates in place", func(t *testing.T) {
		accounts := make(map[ledger.Role]ledger.Account)
		for _, role := range saved.Roles() {
			account, err := saved.Resolve(role)
			require.NoError(t, err)
			account.Name = "Renamed " + account.Name
			accounts[role] = account
		}
		updated, err := ledger.NewAccountMapping(tenantID, valueobject.IDR, accounts)
		require.NoError(t, err)
		require.NoError(t, h.mappings.Save(ctx, updated))

		loaded, err := h.mappings.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, valueobject.IDR, loaded.ReportingCurrency)
		revenue, err := loaded.Resolve(ledger.RoleRevenue)
		require.NoError(t, err)
		assert.Equal(t, want.ID, revenue.ID)
		assert.Equal(t, "Renamed REVENUE", revenue.Name)
	})

	t.Run("unconfigured tenant", func(t *testing.T) {
		_, err := h.mappings.FindByTenant(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("saving a smaller mapping unmaps the missing roles", func(t *testing.T) {
		revenue, err := saved.Resolve(ledger.RoleRevenue)
		require.NoError(t, err)
		smaller, err := ledger.NewAccountMapping(tenantID, valueobject.USD, map[ledger.Role]ledger.Account{ledger.RoleRevenue: revenue})
		require.NoError(t, err)
		require.NoError(t, h.mappings.Save(ctx, smaller))

		loaded, err := h.mappings.FindByTenant(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, []ledger.Role{ledger.RoleRevenue}, loaded.Roles())
		_, err = loaded.Resolve(ledger.RoleTax)
		assert.ErrorIs(t, err, ledger.ErrMissingAccountMapping)
	})
}

func TestGormAccountMappingRepository_ForeignAccountID(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()
	mappingB := h.configure(t, tenantB, valueobject.USD)
	victim, err := mappingB.Resolve(ledger.RoleRevenue)
	require.NoError(t, err)

	hijack := victim
	hijack.TenantID = tenantA
	hijack.Code = "9999"
	hijack.Name = "written by tenant A"
	mappingA, err := ledger.NewAccountMapping(tenantA, valueobject.USD, map[ledger.Role]ledger.Account{ledger.RoleRevenue: hijack})
	require.NoError(t, err)

	err = h.mappings.Save(ctx, mappingA)
	assert.ErrorIs(t, err, ledger.ErrTenantMismatch)

	loaded, err := h.mappings.FindByTenant(ctx, tenantB)
	require.NoError(t, err)
	got, err := loaded.Resolve(ledger.RoleRevenue)
	require.NoError(t, err)
	assert.Equal(t, victim.Code, got.Code)
	assert.Equal(t, victim.Name, got.Name)
	assert.Equal(t, tenantB, got.TenantID)

	_, err = h.mappings.FindByTenant(ctx, tenantA)
	assert.ErrorIs(t, err, shared.ErrNotFound, "the failed save is rolled back")
}

func TestLedgerPosting_SQLite(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.configure(t, tenantID, valueobject.USD)
	actor := ledger.Actor{ID: uuid.New(), TenantID: tenantID}

	posted, err := h.service.Post(ctx, invoice(tenantID, "INV-1", valueobject.IDR, "0.5"), nil, actor)
	require.NoError(t, err)
	require.Len(t, posted, 4)

	t.Run("persisted legs match the posted legs", func(t *testing.T) {
		stored, err := NewGormLedgerEntryRepository(h.db).FindByDocumentRef(ctx, tenantID, "INV-1")
		require.NoError(t, err)
		diff := cmp.Diff(posted, stored,
			decimalComparer,
			cmpopts.EquateApproxTime(time.Second),
			cmpopts.SortSlices(func(a, b *ledger.LedgerEntry) bool { return a.ReferenceNumber < b.ReferenceNumber }),
		)
		assert.Empty(t, diff)
	})

	t.Run("balance is recomputed from storage", func(t *testing.T) {
		result, err := h.service.CheckBalance(ctx, tenantID, "INV-1")
		require.NoError(t, err)
		assert.True(t, result.Balanced)
		assert.Equal(t, 4, result.EntryCount)
		assert.True(t, result.DebitTotal.Equal(decimal.NewFromInt(545)), result.DebitTotal.String())
	})

	t.Run("second post is rejected by the existence check", func(t *testing.T) {
		_, err := h.service.Post(ctx, invoice(tenantID, "INV-1", valueobject.IDR, "0.5"), nil, actor)
		assert.ErrorIs(t, err, ledger.ErrAlreadyPosted)
	})

	t.Run("duplicate reference numbers are rejected by the unique index", func(t *testing.T) {
		err := NewGormLedgerEntryRepository(h.db).SaveBatch(ctx, posted[:1])
		assert.ErrorIs(t, err, ledger.ErrAlreadyPosted)
	})

	t.Run("repost replaces the group", func(t *testing.T) {
		reposted, err := h.service.Repost(ctx, invoice(tenantID, "INV-1", valueobject.USD, "1"), nil, actor)
		require.NoError(t, err)
		require.Len(t, reposted, 4)

		var count int64
		require.NoError(t, h.db.Model(&models.LedgerEntryModel{}).
			Where("tenant_id = ? AND document_ref = ?", tenantID, "INV-1").Count(&count).Error)
		assert.EqualValues(t, 4, count)

		result, err := h.service.CheckBalance(ctx, tenantID, "INV-1")
		require.NoError(t, err)
		assert.True(t, result.DebitTotal.Equal(decimal.NewFromInt(1090)), result.DebitTotal.String())
	})

	t.Run("other tenants cannot reverse the group", func(t *testing.T) {
		_, err := h.service.Reverse(ctx, uuid.New(), "INV-1")
		assert.ErrorIs(t, err, ledger.ErrTenantMismatch)
	})

	t.Run("reverse removes every leg", func(t *testing.T) {
		removed, err := h.service.Reverse(ctx, tenantID, "INV-1")
		require.NoError(t, err)
		assert.EqualValues(t, 4, removed)

		_, err = h.service.Reverse(ctx, tenantID, "INV-1")
		assert.ErrorIs(t, err, ledger.ErrNothingToReverse)
		_, err = h.service.CheckBalance(ctx, tenantID, "INV-1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("every committed change left an outbox event", func(t *testing.T) {
		pending, err := h.outbox.FindPending(ctx, 100)
		require.NoError(t, err)
		var types []string
		for _, e := range pending {
			types = append(types, e.EventType)
			assert.Equal(t, tenantID, e.TenantID)
		}
		// post, repost (reverse + post), reverse
		assert.ElementsMatch(t, []string{
			ledger.EventTypeLedgerPosted,
			ledger.EventTypeLedgerReversed, ledger.EventTypeLedgerPosted,
			ledger.EventTypeLedgerReversed,
		}, types)
	})

	assert.Zero(t, h.locker.held())
}

func TestLedgerPosting_ReverseThenPostMatchesDirectPost(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.configure(t, tenantID, valueobject.USD)
	actor := ledger.Actor{ID: uuid.New(), TenantID: tenantID}
	entries := NewGormLedgerEntryRepository(h.db)

	doc := invoice(tenantID, "INV-77", valueobject.EUR, "1.0875")
	doc.PostingDate = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	_, err := h.service.Post(ctx, doc, nil, actor)
	require.NoError(t, err)
	direct, err := entries.FindByDocumentRef(ctx, tenantID, "INV-77")
	require.NoError(t, err)
	require.NotEmpty(t, direct)

	sameRows := func(t *testing.T, got []*ledger.LedgerEntry) {
		t.Helper()
		diff := cmp.Diff(direct, got,
			decimalComparer,
			cmpopts.IgnoreFields(ledger.LedgerEntry{}, "ID", "CreatedAt"),
			cmpopts.EquateApproxTime(time.Second),
			cmpopts.SortSlices(func(a, b *ledger.LedgerEntry) bool { return a.ReferenceNumber < b.ReferenceNumber }),
		)
		assert.Empty(t, diff)
	}

	t.Run("reverse then post", func(t *testing.T) {
		_, err := h.service.Reverse(ctx, tenantID, "INV-77")
		require.NoError(t, err)
		_, err = h.service.Post(ctx, doc, nil, actor)
		require.NoError(t, err)

		again, err := entries.FindByDocumentRef(ctx, tenantID, "INV-77")
		require.NoError(t, err)
		sameRows(t, again)
	})

	t.Run("repost of unchanged values", func(t *testing.T) {
		_, err := h.service.Repost(ctx, doc, nil, actor)
		require.NoError(t, err)

		again, err := entries.FindByDocumentRef(ctx, tenantID, "INV-77")
		require.NoError(t, err)
		sameRows(t, again)
	})
}

func TestLedgerPosting_FailedPostLeavesNoTrace(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.configure(t, tenantID, valueobject.USD)

	inv := invoice(tenantID, "INV-9", valueobject.USD, "1")
	inv.Balance = decimal.NewFromInt(900)
	_, err := h.service.Post(ctx, inv, nil, ledger.Actor{ID: uuid.New(), TenantID: tenantID})
	require.ErrorIs(t, err, ledger.ErrUnbalancedPosting)

	exists, err := NewGormLedgerEntryRepository(h.db).ExistsByDocumentRef(ctx, tenantID, "INV-9")
	require.NoError(t, err)
	assert.False(t, exists)

	counts, err := h.outbox.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[shared.OutboxStatusPending])
}

func TestLedgerPosting_ConcurrentPostsOfOneDocument(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	tenantID := uuid.New()
	h.configure(t, tenantID, valueobject.USD)
	actor := ledger.Actor{ID: uuid.New(), TenantID: tenantID}

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.service.Post(ctx, invoice(tenantID, "INV-C", valueobject.USD, "1"), nil, actor)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrAlreadyPosted)
	}
	assert.Equal(t, 1, succeeded)

	result, err := h.service.CheckBalance(ctx, tenantID, "INV-C")
	require.NoError(t, err)
	assert.Equal(t, 4, result.EntryCount)
}
