package main

import (
	"github.com/quickfixgo/enum"
	"github.com/shopspring/decimal"
)

// A Memo for an open order.
type Memo struct {
	OrderID     string
	ClOrdID     string
	Symbol      string
	Side        enum.Side
	OrderQty    decimal.Decimal
	Price       decimal.Decimal
	CumQty      decimal.Decimal
	TimeInForce enum.TimeInForce
}

// LeavesQty is the unexecuted balance.
func (x *Memo) LeavesQty() decimal.Decimal {
	leaves := x.OrderQty.Sub(x.CumQty)
	if leaves.IsNegative() {
		return decimal.Zero
	}
	return leaves
}
