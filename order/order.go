// Package order tracks the lifecycle of orders placed through a FIX
// session: client order ID allocation, request construction, and the
// state transitions driven by execution reports and cancel rejects.
package order

import (
	"github.com/gbkr-com/mkt"
	"github.com/quickfixgo/enum"
	"github.com/shopspring/decimal"
)

// An Order is the record for a single client order ID. Once an order is
// replaced the record is retained read-only and the replacement carries the
// lifecycle forward.
type Order struct {
	ClOrdID     string
	OrigClOrdID string // the order this one replaced, if any.
	OrderID     string // the counterparty order ID, from the first report.
	Symbol      string
	Side        mkt.Side
	OrdType     enum.OrdType
	TimeInForce mkt.TimeInForce
	OrderQty    decimal.Decimal
	Price       decimal.Decimal
	CumQty      decimal.Decimal
	LeavesQty   decimal.Decimal
	AvgPx       decimal.Decimal
	Status      mkt.OrdStatus
	ReplacedBy  string // the ClOrdID of the replacement, once accepted.
	Text        string // the last reject or cancel text, if any.

	prior      mkt.OrdStatus   // the live status to restore on a cancel or replace reject.
	pendingID  string          // the ClOrdID of the outstanding cancel or replace request.
	pendingQty decimal.Decimal // requested quantity on an outstanding replace.
	pendingPx  decimal.Decimal // requested price on an outstanding replace.
}

// Live returns true if the order is acknowledged and working. A replaced
// order is never live: its replacement carries the quantity.
func (x *Order) Live() bool {
	if x.ReplacedBy != "" {
		return false
	}
	return x.Status == mkt.OrdStatusNew || x.Status == mkt.OrdStatusPartiallyFilled
}

// Pending returns true if the order has an action outstanding.
func (x *Order) Pending() bool {
	switch x.Status {
	case mkt.OrdStatusPendingNew, mkt.OrdStatusPendingCancel, mkt.OrdStatusPendingReplace:
		return true
	}
	return false
}

// Terminal returns true if no further transitions are possible.
func (x *Order) Terminal() bool {
	if x.ReplacedBy != "" {
		return true
	}
	switch x.Status {
	case mkt.OrdStatusFilled, mkt.OrdStatusCanceled, mkt.OrdStatusRejected, mkt.OrdStatusExpired:
		return true
	}
	return false
}

var statusNames = map[mkt.OrdStatus]string{
	mkt.OrdStatusPendingNew:      "PendingNew",
	mkt.OrdStatusNew:             "New",
	mkt.OrdStatusPartiallyFilled: "PartiallyFilled",
	mkt.OrdStatusFilled:          "Filled",
	mkt.OrdStatusPendingCancel:   "PendingCancel",
	mkt.OrdStatusCanceled:        "Canceled",
	mkt.OrdStatusPendingReplace:  "PendingReplace",
	mkt.OrdStatusRejected:        "Rejected",
	mkt.OrdStatusExpired:         "Expired",
}

// StatusName returns a readable name for the status, for logs and the
// inspection endpoints.
func StatusName(status mkt.OrdStatus) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "Unknown"
}
