// Package event holds operator use cases over the ledger's transactional outbox.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CodeNotDead is the error code of ErrNotDead
const CodeNotDead = "OUTBOX_NOT_DEAD"

// ErrNotDead is returned when a retry targets an entry that is not dead-lettered
var ErrNotDead = shared.NewDomainError(CodeNotDead, "Outbox entry is not dead-lettered")

// OutboxAdminRepository is the part of the outbox store the admin service reads and writes
type OutboxAdminRepository interface {
	FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error)
	Update(ctx context.Context, entry *shared.OutboxEntry) error
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// OutboxService inspects delivery state and revives dead-lettered ledger events
type OutboxService struct {
	repo   OutboxAdminRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(repo OutboxAdminRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{repo: repo, logger: logger}
}

// OutboxEntryDTO is the operator view of one outbox entry; the payload is omitted
type OutboxEntryDTO struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	EventID     uuid.UUID  `json:"event_id"`
	EventType   string     `json:"event_type"`
	GroupID     uuid.UUID  `json:"reference_group_id"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DeadLetterPage is one page of dead-lettered entries, newest failure first
type DeadLetterPage struct {
	Entries    []OutboxEntryDTO `json:"entries"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// OutboxStatsDTO counts entries per delivery status
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// DeadLetters returns one page of DEAD entries. Page and size are clamped to sane bounds.
func (s *OutboxService) DeadLetters(ctx context.Context, page, pageSize int) (*DeadLetterPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	entries, total, err := s.repo.FindDead(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("find dead letters: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	out := &DeadLetterPage{
		Entries:    make([]OutboxEntryDTO, len(entries)),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
	for i, entry := range entries {
		out.Entries[i] = toOutboxEntryDTO(entry)
	}
	return out, nil
}

// Retry returns one DEAD entry to PENDING so the relay picks it up again
func (s *OutboxService) Retry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("outbox entry %s: %w", id, err)
	}
	if err := entry.ResetForRetry(); err != nil {
		return nil, fmt.Errorf("%w: entry %s is %s", ErrNotDead, id, entry.Status)
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("update outbox entry %s: %w", id, err)
	}

	s.logger.Info("dead letter reset for retry",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType),
	)
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryAll revives every DEAD entry and returns how many were reset.
// Revived entries leave the DEAD set, so the first page is re-read until it is empty.
func (s *OutboxService) RetryAll(ctx context.Context) (int64, error) {
	var count int64
	for {
		entries, _, err := s.repo.FindDead(ctx, 1, maxPageSize)
		if err != nil {
			return count, fmt.Errorf("find dead letters: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		revived := 0
		for _, entry := range entries {
			if err := entry.ResetForRetry(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("failed to reset dead letter", zap.String("id", entry.ID.String()), zap.Error(err))
				continue
			}
			revived++
		}
		count += int64(revived)
		if revived == 0 {
			// every update failed; re-reading would loop forever
			break
		}
	}

	s.logger.Info("dead letters reset for retry", zap.Int64("count", count))
	return count, nil
}

// Stats counts outbox entries per status
func (s *OutboxService) Stats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count outbox entries: %w", err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:          entry.ID,
		TenantID:    entry.TenantID,
		EventID:     entry.EventID,
		EventType:   entry.EventType,
		GroupID:     entry.AggregateID,
		Status:      string(entry.Status),
		RetryCount:  entry.RetryCount,
		MaxRetries:  entry.MaxRetries,
		LastError:   entry.LastError,
		NextRetryAt: entry.NextRetryAt,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}
