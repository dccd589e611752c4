package event

import (
	"context"
	"testing"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLedgerEventLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := NewLedgerEventLogger(zap.New(core))
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(handler)

	tenantID := uuid.New()
	require.NoError(t, bus.Publish(context.Background(),
		postedEvent(tenantID, "INV-1"),
		ledger.NewLedgerReversedEvent(tenantID, "INV-1", 2),
	))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "ledger posted", entries[0].Message)
	assert.Equal(t, "INV-1", entries[0].ContextMap()["document_ref"])
	assert.EqualValues(t, 2, entries[0].ContextMap()["entry_count"])
	assert.Equal(t, "ledger reversed", entries[1].Message)
}
