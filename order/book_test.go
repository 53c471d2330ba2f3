package order

import (
	"testing"

	"github.com/gbkr-com/mkt"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func placed(t *testing.T, book *Book) *Order {
	o, message := book.SubmitNew("BTC-PYUSD", mkt.Buy, enum.OrdType_LIMIT, decimal.RequireFromString("0.25"), decimal.RequireFromString("10000.5"), mkt.GTC)
	assert.NotNil(t, message)
	assert.Equal(t, mkt.OrdStatusPendingNew, o.Status)
	err := book.Apply(&Report{
		ExecType: enum.ExecType_NEW,
		ClOrdID:  o.ClOrdID,
		OrderID:  mkt.NewOrderID(),
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusNew, o.Status)
	return o
}

func TestOrderPlaceAndFill(t *testing.T) {

	var transitions []mkt.OrdStatus
	book := NewBook(Events{
		OnStateChanged: func(o *Order, previous, current mkt.OrdStatus) {
			transitions = append(transitions, current)
		},
	})
	o := placed(t, book)
	assert.NotEqual(t, "", o.OrderID)

	err := book.Apply(&Report{
		ExecType:  enum.ExecType_TRADE,
		ClOrdID:   o.ClOrdID,
		LastQty:   decimal.RequireFromString("0.1"),
		LastPx:    decimal.RequireFromString("10000.5"),
		HasCumQty: true,
		CumQty:    decimal.RequireFromString("0.1"),
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusPartiallyFilled, o.Status)
	assert.True(t, o.LeavesQty.Equal(decimal.RequireFromString("0.15")))

	err = book.Apply(&Report{
		ExecType:     enum.ExecType_TRADE,
		ClOrdID:      o.ClOrdID,
		LastQty:      decimal.RequireFromString("0.15"),
		HasCumQty:    true,
		CumQty:       decimal.RequireFromString("0.25"),
		HasLeavesQty: true,
		LeavesQty:    decimal.Zero,
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusFilled, o.Status)
	assert.True(t, o.Terminal())

	assert.Equal(
		t,
		[]mkt.OrdStatus{mkt.OrdStatusNew, mkt.OrdStatusPartiallyFilled, mkt.OrdStatusFilled},
		transitions,
	)

	_, err = book.SubmitCancel(o.ClOrdID)
	assert.ErrorIs(t, err, ErrNotLive)

}

func TestOrderFillWithoutCumQty(t *testing.T) {

	book := NewBook(Events{})
	o := placed(t, book)

	// No CumQty or LeavesQty on the report: the book accumulates LastQty.
	err := book.Apply(&Report{
		ExecType: enum.ExecType_TRADE,
		ClOrdID:  o.ClOrdID,
		LastQty:  decimal.RequireFromString("0.2"),
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusPartiallyFilled, o.Status)
	assert.True(t, o.CumQty.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, o.LeavesQty.Equal(decimal.RequireFromString("0.05")))

}

func TestOrderReplaceChain(t *testing.T) {

	book := NewBook(Events{})
	o := placed(t, book)

	qty := decimal.RequireFromString("0.3")
	message, err := book.SubmitReplace(o.ClOrdID, &qty, nil)
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusPendingReplace, o.Status)
	requestID, ok := message.Get(tag.ClOrdID)
	assert.True(t, ok)

	// A fill while the replace is pending adjusts quantities only.
	err = book.Apply(&Report{
		ExecType:  enum.ExecType_TRADE,
		ClOrdID:   o.ClOrdID,
		LastQty:   decimal.RequireFromString("0.1"),
		HasCumQty: true,
		CumQty:    decimal.RequireFromString("0.1"),
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusPendingReplace, o.Status)

	err = book.Apply(&Report{
		ExecType:    enum.ExecType_REPLACED,
		ClOrdID:     requestID,
		OrigClOrdID: o.ClOrdID,
	})
	assert.Nil(t, err)

	assert.Equal(t, requestID, o.ReplacedBy)
	assert.False(t, o.Live())
	replacement := book.Lookup(requestID)
	assert.NotNil(t, replacement)
	assert.Equal(t, o.ClOrdID, replacement.OrigClOrdID)
	assert.Equal(t, mkt.OrdStatusPartiallyFilled, replacement.Status)
	assert.True(t, replacement.OrderQty.Equal(qty))
	assert.True(t, replacement.CumQty.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, replacement.LeavesQty.Equal(decimal.RequireFromString("0.2")))

	// The retired order can no longer be acted on.
	_, err = book.SubmitCancel(o.ClOrdID)
	assert.ErrorIs(t, err, ErrNotLive)

	// The replacement can.
	_, err = book.SubmitCancel(replacement.ClOrdID)
	assert.Nil(t, err)

}

func TestOrderCancelRejectRestores(t *testing.T) {

	book := NewBook(Events{})
	o := placed(t, book)

	message, err := book.SubmitCancel(o.ClOrdID)
	assert.Nil(t, err)
	requestID, _ := message.Get(tag.ClOrdID)
	assert.Equal(t, mkt.OrdStatusPendingCancel, o.Status)

	// Busy until the cancel resolves.
	_, err = book.SubmitCancel(o.ClOrdID)
	assert.ErrorIs(t, err, ErrOrderBusy)
	_, err = book.SubmitReplace(o.ClOrdID, nil, nil)
	assert.ErrorIs(t, err, ErrOrderBusy)

	err = book.ApplyCancelReject(&CancelReject{
		ClOrdID:     requestID,
		OrigClOrdID: o.ClOrdID,
		ResponseTo:  enum.CxlRejResponseTo_ORDER_CANCEL_REQUEST,
		Reason:      "too late to cancel",
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusNew, o.Status)

	// A subsequent cancel is accepted.
	message, err = book.SubmitCancel(o.ClOrdID)
	assert.Nil(t, err)
	requestID, _ = message.Get(tag.ClOrdID)
	err = book.Apply(&Report{
		ExecType:    enum.ExecType_CANCELED,
		ClOrdID:     requestID,
		OrigClOrdID: o.ClOrdID,
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusCanceled, o.Status)

}

func TestOrderRejected(t *testing.T) {

	var reason string
	book := NewBook(Events{
		OnRejected: func(o *Order, text string) { reason = text },
	})
	o, _ := book.SubmitNew("BTC-PYUSD", mkt.Sell, enum.OrdType_LIMIT, decimal.RequireFromString("0.2"), decimal.RequireFromString("9999.5"), mkt.GTC)

	err := book.Apply(&Report{
		ExecType: enum.ExecType_REJECTED,
		ClOrdID:  o.ClOrdID,
		Text:     "insufficient balance",
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusRejected, o.Status)
	assert.Equal(t, "insufficient balance", reason)

}

func TestOrderExpiresWhilePendingCancel(t *testing.T) {

	book := NewBook(Events{})
	o := placed(t, book)

	message, err := book.SubmitCancel(o.ClOrdID)
	assert.Nil(t, err)
	requestID, _ := message.Get(tag.ClOrdID)
	assert.Equal(t, mkt.OrdStatusPendingCancel, o.Status)

	// The order expires at the venue instead: the request alias must not
	// outlive it.
	err = book.Apply(&Report{
		ExecType: enum.ExecType_EXPIRED,
		ClOrdID:  o.ClOrdID,
		Text:     "time in force elapsed",
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusExpired, o.Status)
	assert.True(t, o.Terminal())
	assert.Nil(t, book.Lookup(requestID))

}

func TestOrderUnsolicitedCancel(t *testing.T) {

	book := NewBook(Events{})
	o := placed(t, book)

	err := book.Apply(&Report{
		ExecType: enum.ExecType_CANCELED,
		ClOrdID:  o.ClOrdID,
		Text:     "self trade prevention",
	})
	assert.Nil(t, err)
	assert.Equal(t, mkt.OrdStatusCanceled, o.Status)

}

func TestOrderRevertAfterFailedSend(t *testing.T) {

	book := NewBook(Events{})
	o := placed(t, book)

	message, err := book.SubmitCancel(o.ClOrdID)
	assert.Nil(t, err)
	requestID, _ := message.Get(tag.ClOrdID)

	book.Revert(requestID)
	assert.Equal(t, mkt.OrdStatusNew, o.Status)
	assert.Nil(t, book.Lookup(requestID))

	p, _ := book.SubmitNew("BTC-PYUSD", mkt.Buy, enum.OrdType_LIMIT, decimal.RequireFromString("0.2"), decimal.RequireFromString("10000"), mkt.GTC)
	book.Revert(p.ClOrdID)
	assert.Nil(t, book.Lookup(p.ClOrdID))

}

func TestReportForUnknownOrder(t *testing.T) {

	book := NewBook(Events{})
	err := book.Apply(&Report{ExecType: enum.ExecType_NEW, ClOrdID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownOrder)

}
