package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundToTick(t *testing.T) {
	t.Parallel()

	es, err := Lookup("ES")
	require.NoError(t, err)

	tests := []struct {
		in, want float64
	}{
		{5000.10, 5000.00},
		{5000.13, 5000.25},
		{5000.37, 5000.25},
		{5000.38, 5000.50},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, es.RoundToTick(tt.in), 1e-9)
	}
}

func TestSpreadTicks(t *testing.T) {
	t.Parallel()

	es := Instruments["ES"]
	assert.Equal(t, 1, es.SpreadTicks(Quote{Bid: 5000, Ask: 5000.25}))
	assert.Equal(t, 3, es.SpreadTicks(Quote{Bid: 5000, Ask: 5000.75}))
}

func TestATRInRange(t *testing.T) {
	t.Parallel()

	es := Instruments["ES"]
	assert.True(t, es.ATRInRange(6))
	assert.True(t, es.ATRInRange(50))
	assert.False(t, es.ATRInRange(5.9))
	assert.False(t, es.ATRInRange(50.1))

	open := InstrumentMeta{Name: "X"}
	assert.True(t, open.ATRInRange(1e9))
}

func TestLookupUnknown(t *testing.T) {
	t.Parallel()

	_, err := Lookup("EUR_USD")
	assert.Error(t, err)
}

func TestDirectionSide(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Buy, Long.Side())
	assert.Equal(t, Sell, Short.Side())
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, Long, Buy.Direction())
	assert.Equal(t, Short, Sell.Direction())
}
