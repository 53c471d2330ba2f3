package main

import (
	"testing"

	"github.com/gbkr-com/mkt"
	"github.com/quickfixgo/field"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/true-markets/fixsim/env"
)

func TestDecimals(t *testing.T) {

	qty := decimal.New(1, -2)
	field := field.NewOrderQty(qty, mkt.Precision(qty))

	assert.Equal(t, "0.01", field.String())

}

func TestMemoLeavesQty(t *testing.T) {

	memo := &Memo{
		OrderQty: decimal.RequireFromString("0.25"),
		CumQty:   decimal.RequireFromString("0.12"),
	}
	assert.Equal(t, "0.13", memo.LeavesQty().String())

	memo.CumQty = decimal.RequireFromString("0.3")
	assert.True(t, memo.LeavesQty().IsZero())

}

func TestPartialFillQuantity(t *testing.T) {

	half := decimal.RequireFromString("0.2501").Div(decimal.New(2, 0)).Truncate(env.DefaultDecimalPlaces)
	assert.Equal(t, "0.12505", half.String())

}
