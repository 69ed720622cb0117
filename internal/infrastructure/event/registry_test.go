package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry(t *testing.T) {
	t.Run("typed and wildcard handlers", func(t *testing.T) {
		r := NewHandlerRegistry()
		typed := newTestHandler()
		all := newTestHandler()
		r.Register(typed, "InvoicePaid", "InvoiceCancelled")
		r.Register(all)

		got := r.GetHandlers("InvoicePaid")
		assert.Len(t, got, 2)
		assert.Same(t, typed, got[0])
		assert.Same(t, all, got[1])
		assert.Len(t, r.GetHandlers("InvoiceCancelled"), 2)
		assert.Len(t, r.GetHandlers("InvoiceOverdue"), 1)
	})

	t.Run("unregister removes every registration", func(t *testing.T) {
		r := NewHandlerRegistry()
		h := newTestHandler()
		keep := newTestHandler()
		r.Register(h, "InvoicePaid", "InvoiceIssued")
		r.Register(h)
		r.Register(keep, "InvoicePaid")

		r.Unregister(h)
		assert.Equal(t, 1, len(r.GetHandlers("InvoicePaid")))
		assert.Empty(t, r.GetHandlers("InvoiceIssued"))
		_, ok := r.handlers["InvoiceIssued"]
		assert.False(t, ok)
	})
}
