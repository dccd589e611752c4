package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// outcomeError labels failures that carry no domain error code
const outcomeError = "error"

// PostingService posts, reverses and reposts source documents and audits
// reference groups. Every mutating call runs in exactly one transaction.
type PostingService struct {
	scope    TransactionScope
	entries  ledger.LedgerEntryRepository
	mappings ledger.AccountMappingRepository
	metrics  *telemetry.LedgerMetrics
	logger   *zap.Logger
	opts     ledger.PostingOptions
}

// Option configures a PostingService
type Option func(*PostingService)

// WithBalanceToleranceUnits sets the allowed imbalance in reporting-currency minor units
func WithBalanceToleranceUnits(units int) Option {
	return func(s *PostingService) {
		s.opts.BalanceToleranceUnits = units
	}
}

// WithMetrics attaches ledger metrics
func WithMetrics(m *telemetry.LedgerMetrics) Option {
	return func(s *PostingService) {
		s.metrics = m
	}
}

// WithClock overrides the creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *PostingService) {
		s.opts.Now = now
	}
}

// NewPostingService creates a new PostingService.
// entries is used for read-only audit queries outside a transaction.
func NewPostingService(
	scope TransactionScope,
	entries ledger.LedgerEntryRepository,
	mappings ledger.AccountMappingRepository,
	log *zap.Logger,
	opts ...Option,
) *PostingService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &PostingService{
		scope:    scope,
		entries:  entries,
		mappings: mappings,
		logger:   log,
		opts:     ledger.DefaultPostingOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Post writes the balanced legs of an approved document.
// When components is nil they are allocated from the document's stored amounts.
// Nothing is persisted unless every leg and the outbox event commit together.
func (s *PostingService) Post(ctx context.Context, doc ledger.SourceDocument, components []ledger.Component, actor ledger.Actor) ([]*ledger.LedgerEntry, error) {
	return s.runPosting(ctx, "post", doc, components, actor, false)
}

// Repost replaces a document's legs: the existing reference group is reversed and
// the document posted again in a single transaction. A document with no legs fails
// with ErrNothingToReverse and nothing is written.
func (s *PostingService) Repost(ctx context.Context, doc ledger.SourceDocument, components []ledger.Component, actor ledger.Actor) ([]*ledger.LedgerEntry, error) {
	return s.runPosting(ctx, "repost", doc, components, actor, true)
}

func (s *PostingService) runPosting(
	ctx context.Context,
	method string,
	doc ledger.SourceDocument,
	components []ledger.Component,
	actor ledger.Actor,
	reverseFirst bool,
) ([]*ledger.LedgerEntry, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", method)
	defer span.End()

	if ledger.IsNil(doc) {
		err := fmt.Errorf("%w: document is required", ledger.ErrInvalidDocument)
		telemetry.RecordError(span, err)
		return nil, err
	}

	header := doc.Header()
	txType := doc.TransactionType()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, header.TenantID.String(),
		telemetry.SpanAttrDocumentRef, header.DocumentRef,
		telemetry.SpanAttrTransactionType, txType.String(),
	)
	ctx, _ = logger.WithActorID(ctx, s.logger, actor.ID.String())
	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("tenant_id", header.TenantID.String()),
		zap.String("document_ref", header.DocumentRef),
		zap.String("transaction_type", txType.String()),
	)

	var (
		entries []*ledger.LedgerEntry
		err     error
	)
	telemetry.WithProfilingLabels(ctx, func(ctx context.Context) {
		err = s.postDocument(ctx, doc, components, actor, reverseFirst, &entries)
	}, telemetry.ProfilingLabelOperation, method, telemetry.ProfilingLabelTransactionType, txType.String())
	s.metrics.RecordPosting(ctx, txType.String(), outcome(err), time.Since(start))
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.SetAttribute(span, telemetry.SpanAttrErrorCode, shared.ErrorCode(err))
		if errors.Is(err, ledger.ErrUnbalancedPosting) {
			s.metrics.RecordUnbalanced(ctx, txType.String())
			log.Error("ledger incident: unbalanced posting rejected", zap.Error(err))
		} else {
			log.Warn("posting failed", zap.String("method", method), zap.Error(err))
		}
		return nil, err
	}

	balance := ledger.CheckBalance(entries, ledger.Tolerance(entries[0].ReportingCurrency, s.opts.BalanceToleranceUnits))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntryCount, len(entries),
		telemetry.SpanAttrDebitTotal, balance.DebitTotal.String(),
		telemetry.SpanAttrCreditTotal, balance.CreditTotal.String(),
	)
	telemetry.SetOK(span)
	log.Info("document posted",
		zap.String("method", method),
		zap.Int("entry_count", len(entries)),
		zap.String("debit_total", balance.DebitTotal.String()),
		zap.String("credit_total", balance.CreditTotal.String()),
	)
	return entries, nil
}

func (s *PostingService) postDocument(
	ctx context.Context,
	doc ledger.SourceDocument,
	components []ledger.Component,
	actor ledger.Actor,
	reverseFirst bool,
	out *[]*ledger.LedgerEntry,
) error {
	tenantID, err := ledger.AssertSingleTenant(doc, actor)
	if err != nil {
		return err
	}
	header := doc.Header()
	if err := header.Validate(); err != nil {
		return err
	}
	if components == nil {
		if components, err = ledger.Allocate(doc); err != nil {
			return err
		}
	}
	mapping, err := s.loadMapping(ctx, tenantID)
	if err != nil {
		return err
	}

	return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.LockDocument(ctx, tenantID, header.DocumentRef); err != nil {
			return fmt.Errorf("failed to lock document %s: %w", header.DocumentRef, err)
		}
		if reverseFirst {
			if _, err := s.reverseInTx(ctx, repos, tenantID, header.DocumentRef); err != nil {
				return err
			}
		}
		entries, err := s.postInTx(ctx, repos, doc, components, mapping, actor)
		if err != nil {
			return err
		}
		*out = entries
		return nil
	})
}

// loadMapping reads tenant configuration outside the posting transaction
func (s *PostingService) loadMapping(ctx context.Context, tenantID uuid.UUID) (*ledger.AccountMapping, error) {
	mapping, err := s.mappings.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: tenant %s has no ledger configuration", ledger.ErrMissingAccountMapping, tenantID)
		}
		return nil, fmt.Errorf("failed to load account mapping: %w", err)
	}
	return mapping, nil
}

// postInTx expects the document lock to be held
func (s *PostingService) postInTx(
	ctx context.Context,
	repos TransactionalRepositories,
	doc ledger.SourceDocument,
	components []ledger.Component,
	mapping *ledger.AccountMapping,
	actor ledger.Actor,
) ([]*ledger.LedgerEntry, error) {
	header := doc.Header()

	exists, err := repos.EntryRepo().ExistsByDocumentRef(ctx, header.TenantID, header.DocumentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing postings: %w", err)
	}
	if exists {
		return nil, ledger.NewAlreadyPostedError(header.DocumentRef)
	}

	entries, err := ledger.BuildEntries(doc, components, mapping, actor, s.opts)
	if err != nil {
		return nil, err
	}
	if err := repos.EntryRepo().SaveBatch(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to save ledger entries: %w", err)
	}
	if err := repos.EventSaver().SaveEvents(ctx, ledger.NewLedgerPostedEvent(entries, actor)); err != nil {
		return nil, fmt.Errorf("failed to enqueue ledger posted event: %w", err)
	}
	return entries, nil
}

// Reverse removes every leg of the tenant's reference group for documentRef and
// returns the number of legs removed.
func (s *PostingService) Reverse(ctx context.Context, tenantID uuid.UUID, documentRef string) (int64, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "reverse",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrDocumentRef, documentRef),
	)
	defer span.End()
	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("tenant_id", tenantID.String()),
		zap.String("document_ref", documentRef),
	)

	var removed int64
	err := s.reverse(ctx, tenantID, documentRef, &removed)
	s.metrics.RecordReversal(ctx, outcome(err))
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.SetAttribute(span, telemetry.SpanAttrErrorCode, shared.ErrorCode(err))
		log.Warn("reversal failed", zap.Error(err))
		return 0, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrEntryCount, removed)
	telemetry.SetOK(span)
	log.Info("document reversed", zap.Int64("entry_count", removed))
	return removed, nil
}

func (s *PostingService) reverse(ctx context.Context, tenantID uuid.UUID, documentRef string, removed *int64) error {
	if tenantID == uuid.Nil {
		return ledger.NewTenantMismatchError("tenant is required to reverse %s", documentRef)
	}
	if strings.TrimSpace(documentRef) == "" {
		return fmt.Errorf("%w: document reference is required", ledger.ErrInvalidDocument)
	}
	return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.LockDocument(ctx, tenantID, documentRef); err != nil {
			return fmt.Errorf("failed to lock document %s: %w", documentRef, err)
		}
		n, err := s.reverseInTx(ctx, repos, tenantID, documentRef)
		if err != nil {
			return err
		}
		*removed = n
		return nil
	})
}

// reverseInTx expects the document lock to be held
func (s *PostingService) reverseInTx(ctx context.Context, repos TransactionalRepositories, tenantID uuid.UUID, documentRef string) (int64, error) {
	repo := repos.EntryRepo()
	n, err := repo.DeleteByDocumentRef(ctx, tenantID, documentRef)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ledger entries: %w", err)
	}
	if n == 0 {
		foreign, err := repo.ExistsForOtherTenant(ctx, tenantID, documentRef)
		if err != nil {
			return 0, fmt.Errorf("failed to check document ownership: %w", err)
		}
		if foreign {
			return 0, ledger.NewTenantMismatchError("document %s belongs to another tenant", documentRef)
		}
		return 0, ledger.NewNothingToReverseError(documentRef)
	}
	if err := repos.EventSaver().SaveEvents(ctx, ledger.NewLedgerReversedEvent(tenantID, documentRef, n)); err != nil {
		return 0, fmt.Errorf("failed to enqueue ledger reversed event: %w", err)
	}
	return n, nil
}

// CheckBalance recomputes the debit and credit totals of a persisted reference group.
// A group with no legs fails with shared.ErrNotFound.
func (s *PostingService) CheckBalance(ctx context.Context, tenantID uuid.UUID, documentRef string) (ledger.BalanceResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "check_balance",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrDocumentRef, documentRef),
	)
	defer span.End()

	entries, err := s.entries.FindByDocumentRef(ctx, tenantID, documentRef)
	if err != nil {
		telemetry.RecordError(span, err)
		return ledger.BalanceResult{}, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	if len(entries) == 0 {
		err := fmt.Errorf("%w: no ledger entries for document %s", shared.ErrNotFound, documentRef)
		telemetry.RecordError(span, err)
		return ledger.BalanceResult{}, err
	}

	result := ledger.CheckBalance(entries, ledger.Tolerance(entries[0].ReportingCurrency, s.opts.BalanceToleranceUnits))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntryCount, result.EntryCount,
		telemetry.SpanAttrDebitTotal, result.DebitTotal.String(),
		telemetry.SpanAttrCreditTotal, result.CreditTotal.String(),
	)
	if !result.Balanced {
		s.metrics.RecordUnbalanced(ctx, entries[0].TransactionType.String())
		logger.WithLogger(ctx, s.logger).Error("ledger incident: persisted reference group does not balance",
			zap.String("tenant_id", tenantID.String()),
			zap.String("document_ref", documentRef),
			zap.String("debit_total", result.DebitTotal.String()),
			zap.String("credit_total", result.CreditTotal.String()),
			zap.String("difference", result.Difference.String()),
		)
	}
	telemetry.SetOK(span)
	return result, nil
}

func outcome(err error) string {
	if err == nil {
		return telemetry.OutcomeSuccess
	}
	if code := shared.ErrorCode(err); code != "" {
		return strings.ToLower(code)
	}
	return outcomeError
}
