package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Subscription", uuid.New(), uuid.New(), time.Now()),
	}
}

type testHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	t.Run("delivers to typed handlers", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		paid := newTestHandler("InvoicePaid")
		other := newTestHandler("InvoiceOverdue")
		bus.Subscribe(paid)
		bus.Subscribe(other)

		e1, e2 := newTestEvent("InvoicePaid"), newTestEvent("InvoicePaid")
		require.NoError(t, bus.Publish(context.Background(), e1, e2))
		assert.Equal(t, []shared.DomainEvent{e1, e2}, paid.handled)
		assert.Zero(t, other.count())
	})

	t.Run("explicit types override the handler's", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		h := newTestHandler("InvoicePaid")
		bus.Subscribe(h, "InvoiceIssued")

		require.NoError(t, bus.Publish(context.Background(), newTestEvent("InvoicePaid"), newTestEvent("InvoiceIssued")))
		assert.Equal(t, 1, h.count())
	})

	t.Run("wildcard handler sees every event", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		h := newTestHandler()
		bus.Subscribe(h)

		require.NoError(t, bus.Publish(context.Background(), newTestEvent("A"), newTestEvent("B")))
		assert.Equal(t, 2, h.count())
	})

	t.Run("failing handlers do not stop delivery", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		bus := NewInMemoryEventBus(zap.New(core))
		failing := newTestHandler("InvoicePaid")
		failing.err = errors.New("boom")
		panicking := newTestHandler("InvoicePaid")
		panicking.panicWith = "nil map"
		ok := newTestHandler("InvoicePaid")
		bus.Subscribe(failing)
		bus.Subscribe(panicking)
		bus.Subscribe(ok)

		require.NoError(t, bus.Publish(context.Background(), newTestEvent("InvoicePaid")))
		assert.Equal(t, 1, failing.count())
		assert.Equal(t, 1, panicking.count())
		assert.Equal(t, 1, ok.count())
		assert.Equal(t, 2, logs.FilterMessage("handler failed to process event").Len())
	})
}

func TestInMemoryEventBus_UnsubscribeAndStop(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	h := newTestHandler("InvoicePaid")
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InvoicePaid")))
	bus.Unsubscribe(h)
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InvoicePaid")))
	assert.Equal(t, 1, h.count())

	bus.Stop()
	bus.Stop()
	assert.ErrorIs(t, bus.Publish(context.Background(), newTestEvent("InvoicePaid")), ErrBusStopped)
}

func TestInMemoryEventBus_PublishAndClear(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler()
	bus.Subscribe(h)

	var agg shared.BaseAggregateRoot
	agg.AddDomainEvent(newTestEvent("InvoiceIssued"))
	agg.AddDomainEvent(newTestEvent("SubscriptionStatusChanged"))

	require.NoError(t, shared.PublishAndClear(context.Background(), bus, &agg))
	assert.Equal(t, 2, h.count())
	assert.Empty(t, agg.GetDomainEvents())
}
