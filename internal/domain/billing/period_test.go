package billing

import (
	"testing"
	"time"

	"github.com/academy/billing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2026-10")
	require.NoError(t, err)
	assert.Equal(t, Period{Year: 2026, Month: time.October}, p)
	assert.Equal(t, "2026-10", p.String())
	assert.Equal(t, "10/2026", p.Label())

	for _, bad := range []string{"", "2026-13", "10/2026", "2026-1x"} {
		_, err := ParsePeriod(bad)
		assert.True(t, shared.IsInvalidInput(err), bad)
	}
}

func TestPeriod_DueDate(t *testing.T) {
	tests := []struct {
		name string
		p    Period
		day  int
		want time.Time
	}{
		{"regular day", Period{2026, time.October}, 10, time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)},
		{"clamped to february", Period{2026, time.February}, 31, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"leap february", Period{2028, time.February}, 30, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"thirty day month", Period{2026, time.April}, 31, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.DueDate(tt.day, time.UTC))
		})
	}
}

func TestPeriod_NextAndBounds(t *testing.T) {
	dec := Period{2026, time.December}
	assert.Equal(t, Period{2027, time.January}, dec.Next())
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), dec.Start(time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), dec.End(time.UTC))
	assert.True(t, Period{}.IsZero())
}

func TestNextBillingDate(t *testing.T) {
	t.Run("same month when day not passed", func(t *testing.T) {
		got := NextBillingDate(time.Date(2026, 10, 5, 15, 0, 0, 0, time.UTC), 10, time.UTC)
		assert.Equal(t, time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC), got)
	})
	t.Run("due today counts", func(t *testing.T) {
		got := NextBillingDate(time.Date(2026, 10, 10, 15, 0, 0, 0, time.UTC), 10, time.UTC)
		assert.Equal(t, time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC), got)
	})
	t.Run("rolls to next month", func(t *testing.T) {
		got := NextBillingDate(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), 10, time.UTC)
		assert.Equal(t, time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC), got)
	})
}
