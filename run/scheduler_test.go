package run

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSnap(t *testing.T) {

	increment := decimal.RequireFromString("0.5")
	assert.True(t, decimal.RequireFromString("10000.5").Equal(snap(decimal.RequireFromString("10000.74"), increment)))
	assert.True(t, decimal.RequireFromString("10000").Equal(snap(decimal.RequireFromString("10000.49"), increment)))

	// A non-positive increment leaves the value alone.
	v := decimal.RequireFromString("42.123")
	assert.True(t, v.Equal(snap(v, decimal.Zero)))

}

func TestSchedulerRandomisation(t *testing.T) {

	instrument := Instrument{
		Symbol:         "BTC-PYUSD",
		ReferencePrice: decimal.RequireFromString("10000"),
		QuoteIncrement: decimal.RequireFromString("0.5"),
		BaseIncrement:  decimal.RequireFromString("0.0001"),
	}
	manager := NewManager(RecoverAbandon, Events{}, nil, nil)
	scheduler := NewScheduler("A->B", instrument, manager, nil)

	lowPx := decimal.RequireFromString("9990")
	highPx := decimal.RequireFromString("10010")
	lowQty := decimal.RequireFromString("0.2")
	highQty := decimal.RequireFromString("0.3")

	for i := 0; i < 100; i++ {
		px := scheduler.price()
		assert.True(t, px.GreaterThanOrEqual(lowPx) && px.LessThanOrEqual(highPx), px.String())
		assert.True(t, px.Mod(instrument.QuoteIncrement).IsZero())
		qty := scheduler.quantity()
		assert.True(t, qty.GreaterThanOrEqual(lowQty) && qty.LessThanOrEqual(highQty), qty.String())
	}

}

func TestSchedulerFallsBackToPlace(t *testing.T) {

	//
	// With no live orders a modify or cancel cannot be targeted, so every
	// action is a place.
	//
	instrument := Instrument{
		Symbol:         "BTC-PYUSD",
		ReferencePrice: decimal.RequireFromString("10000"),
		QuoteIncrement: decimal.RequireFromString("0.5"),
		BaseIncrement:  decimal.RequireFromString("0.0001"),
	}
	manager := NewManager(RecoverAbandon, Events{}, nil, nil)
	scheduler := NewScheduler("A->B", instrument, manager, nil)

	for i := 0; i < 50; i++ {
		action := scheduler.next()
		assert.Equal(t, Place, action.Type)
		assert.Equal(t, "BTC-PYUSD", action.Symbol)
	}

}
