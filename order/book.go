package order

import (
	"sync"
	"time"

	"github.com/gbkr-com/mkt"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
	"github.com/true-markets/fixsim/fix"
)

// Events are the callbacks from a [*Book]. Each is optional. Callbacks are
// made while the book lock is held: do not call back into the book.
type Events struct {
	OnStateChanged func(o *Order, previous, current mkt.OrdStatus)
	OnRejected     func(o *Order, reason string)
}

// A Book holds every order for one session, keyed by ClOrdID. Cancel and
// replace request IDs are aliased into the same map so that reports quoting
// either ID resolve to the order.
type Book struct {
	lock      sync.Mutex
	byClOrdID map[string]*Order
	events    Events
	clientID  string
}

// NewBook returns a [*Book] ready to use.
func NewBook(events Events) *Book {
	return &Book{
		byClOrdID: map[string]*Order{},
		events:    events,
	}
}

// SetClientID sets the party ID stamped on every outbound request.
func (x *Book) SetClientID(id string) {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.clientID = id
}

// Lookup returns the order for the ClOrdID, including aliased cancel and
// replace request IDs.
func (x *Book) Lookup(clOrdID string) *Order {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.byClOrdID[clOrdID]
}

// Orders returns a snapshot of the distinct orders in the book.
func (x *Book) Orders() []*Order {
	x.lock.Lock()
	defer x.lock.Unlock()
	seen := map[*Order]bool{}
	orders := make([]*Order, 0, len(x.byClOrdID))
	for _, o := range x.byClOrdID {
		if seen[o] {
			continue
		}
		seen[o] = true
		orders = append(orders, o)
	}
	return orders
}

// SubmitNew registers a PendingNew order and returns it with the
// NewOrderSingle to send. If the send fails the caller must [Book.Revert]
// the ClOrdID.
func (x *Book) SubmitNew(symbol string, side mkt.Side, ordType enum.OrdType, qty, px decimal.Decimal, tif mkt.TimeInForce) (*Order, *fix.Message) {
	x.lock.Lock()
	defer x.lock.Unlock()
	o := &Order{
		ClOrdID:     mkt.NewOrderID(),
		Symbol:      symbol,
		Side:        side,
		OrdType:     ordType,
		TimeInForce: tif,
		OrderQty:    qty,
		Price:       px,
		LeavesQty:   qty,
		Status:      mkt.OrdStatusPendingNew,
		prior:       mkt.OrdStatusPendingNew,
	}
	x.byClOrdID[o.ClOrdID] = o
	message := fix.NewMessage(enum.MsgType_ORDER_SINGLE).
		Set(tag.ClOrdID, o.ClOrdID).
		Set(tag.Symbol, o.Symbol).
		Set(tag.Side, string(o.Side.AsQuickFIX().Value())).
		Set(tag.TransactTime, time.Now().UTC().Format(fix.UTCTimestamp)).
		Set(tag.OrdType, string(o.OrdType)).
		SetDecimal(tag.OrderQty, o.OrderQty).
		Set(tag.TimeInForce, string(o.TimeInForce.AsQuickFIX().Value()))
	if o.OrdType == enum.OrdType_LIMIT {
		message.SetDecimal(tag.Price, o.Price)
	}
	x.stampParty(message)
	return o, message
}

// SubmitCancel registers a PendingCancel action against a live order and
// returns the OrderCancelRequest to send. [ErrOrderBusy] means another
// action is outstanding, [ErrNotLive] that the order cannot be canceled.
func (x *Book) SubmitCancel(clOrdID string) (*fix.Message, error) {
	x.lock.Lock()
	defer x.lock.Unlock()
	o, ok := x.byClOrdID[clOrdID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Pending() {
		return nil, ErrOrderBusy
	}
	if !o.Live() {
		return nil, ErrNotLive
	}
	requestID := mkt.NewOrderID()
	o.prior = o.Status
	o.Status = mkt.OrdStatusPendingCancel
	o.pendingID = requestID
	x.byClOrdID[requestID] = o
	message := fix.NewMessage(enum.MsgType_ORDER_CANCEL_REQUEST).
		Set(tag.ClOrdID, requestID).
		Set(tag.OrigClOrdID, o.ClOrdID).
		Set(tag.OrderID, o.OrderID).
		Set(tag.Symbol, o.Symbol).
		Set(tag.Side, string(o.Side.AsQuickFIX().Value())).
		Set(tag.TransactTime, time.Now().UTC().Format(fix.UTCTimestamp)).
		SetDecimal(tag.OrderQty, o.OrderQty)
	x.stampParty(message)
	if fn := x.events.OnStateChanged; fn != nil {
		fn(o, o.prior, o.Status)
	}
	return message, nil
}

// SubmitReplace registers a PendingReplace action against a live order and
// returns the OrderCancelReplaceRequest to send. Either qty or px may be nil
// to leave that term unchanged.
func (x *Book) SubmitReplace(clOrdID string, qty, px *decimal.Decimal) (*fix.Message, error) {
	x.lock.Lock()
	defer x.lock.Unlock()
	o, ok := x.byClOrdID[clOrdID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Pending() {
		return nil, ErrOrderBusy
	}
	if !o.Live() {
		return nil, ErrNotLive
	}
	requestID := mkt.NewOrderID()
	o.prior = o.Status
	o.Status = mkt.OrdStatusPendingReplace
	o.pendingID = requestID
	o.pendingQty = o.OrderQty
	if qty != nil {
		o.pendingQty = *qty
	}
	o.pendingPx = o.Price
	if px != nil {
		o.pendingPx = *px
	}
	x.byClOrdID[requestID] = o
	message := fix.NewMessage(enum.MsgType_ORDER_CANCEL_REPLACE_REQUEST).
		Set(tag.ClOrdID, requestID).
		Set(tag.OrigClOrdID, o.ClOrdID).
		Set(tag.OrderID, o.OrderID).
		Set(tag.Symbol, o.Symbol).
		Set(tag.Side, string(o.Side.AsQuickFIX().Value())).
		Set(tag.TransactTime, time.Now().UTC().Format(fix.UTCTimestamp)).
		Set(tag.OrdType, string(o.OrdType)).
		SetDecimal(tag.OrderQty, o.pendingQty).
		SetDecimal(tag.Price, o.pendingPx)
	x.stampParty(message)
	if fn := x.events.OnStateChanged; fn != nil {
		fn(o, o.prior, o.Status)
	}
	return message, nil
}

// Revert undoes a pending action after a failed send. A PendingNew order is
// removed entirely, a pending cancel or replace is restored to its prior
// status.
func (x *Book) Revert(clOrdID string) {
	x.lock.Lock()
	defer x.lock.Unlock()
	o, ok := x.byClOrdID[clOrdID]
	if !ok {
		return
	}
	switch o.Status {
	case mkt.OrdStatusPendingNew:
		delete(x.byClOrdID, o.ClOrdID)
	case mkt.OrdStatusPendingCancel, mkt.OrdStatusPendingReplace:
		x.restore(o)
	}
}

// restore returns a pending cancel or replace to its prior status and drops
// the request alias. The caller must hold the lock.
func (x *Book) restore(o *Order) {
	if o.pendingID != "" {
		delete(x.byClOrdID, o.pendingID)
		o.pendingID = ""
	}
	o.Status = o.prior
	o.pendingQty = decimal.Decimal{}
	o.pendingPx = decimal.Decimal{}
}

// stampParty adds the Parties group identifying the client. The caller must
// hold the lock.
func (x *Book) stampParty(m *fix.Message) {
	if x.clientID == "" {
		return
	}
	m.SetInt(tag.NoPartyIDs, 1)
	m.Set(tag.PartyID, x.clientID)
	m.Set(tag.PartyRole, "3")
}

// transition moves the order to the next status and notifies. The caller
// must hold the lock.
func (x *Book) transition(o *Order, next mkt.OrdStatus) {
	previous := o.Status
	o.Status = next
	if fn := x.events.OnStateChanged; fn != nil {
		fn(o, previous, next)
	}
}

// Apply routes an ExecutionReport to its order and makes the transition.
// Reports for unknown orders return [ErrUnknownOrder].
func (x *Book) Apply(r *Report) error {
	x.lock.Lock()
	defer x.lock.Unlock()
	o := x.resolve(r)
	if o == nil {
		return ErrUnknownOrder
	}
	switch r.ExecType {

	case enum.ExecType_PENDING_NEW, enum.ExecType_PENDING_CANCEL, enum.ExecType_PENDING_REPLACE:
		// Informational, the order is already in the pending state.

	case enum.ExecType_NEW:
		if r.OrderID != "" {
			o.OrderID = r.OrderID
		}
		if o.Status == mkt.OrdStatusPendingNew {
			x.transition(o, mkt.OrdStatusNew)
		}

	case enum.ExecType_REJECTED:
		o.Text = r.Text
		x.transition(o, mkt.OrdStatusRejected)
		if fn := x.events.OnRejected; fn != nil {
			fn(o, r.Text)
		}

	case enum.ExecType_TRADE, enum.ExecType_PARTIAL_FILL, enum.ExecType_FILL:
		x.applyFill(o, r)

	case enum.ExecType_CANCELED:
		x.restore(o)
		o.Text = r.Text
		x.transition(o, mkt.OrdStatusCanceled)

	case enum.ExecType_EXPIRED:
		x.restore(o)
		o.Text = r.Text
		x.transition(o, mkt.OrdStatusExpired)

	case enum.ExecType_REPLACED:
		x.applyReplaced(o, r)

	}
	return nil
}

// applyFill advances the quantities and the status. CumQty and LeavesQty
// from the report are authoritative when present, otherwise LastQty is
// accumulated. The caller must hold the lock.
func (x *Book) applyFill(o *Order, r *Report) {
	cum := o.CumQty.Add(r.LastQty)
	if r.HasCumQty {
		cum = r.CumQty
	}
	leaves := o.OrderQty.Sub(cum)
	if r.HasLeavesQty {
		leaves = r.LeavesQty
	}
	if leaves.IsNegative() {
		leaves = decimal.Zero
	}
	o.CumQty = cum
	o.LeavesQty = leaves
	if r.AvgPx.IsPositive() {
		o.AvgPx = r.AvgPx
	}
	if leaves.IsZero() {
		x.transition(o, mkt.OrdStatusFilled)
		return
	}
	if o.Status == mkt.OrdStatusNew || o.Status == mkt.OrdStatusPendingNew || o.Status == mkt.OrdStatusPartiallyFilled {
		x.transition(o, mkt.OrdStatusPartiallyFilled)
	}
	// A fill during a pending cancel or replace adjusts quantities only:
	// the pending action still resolves the status.
}

// applyReplaced retires the order and creates its replacement, carrying the
// executed quantity forward. The caller must hold the lock.
func (x *Book) applyReplaced(o *Order, r *Report) {
	replacementID := o.pendingID
	if r.ClOrdID != "" && r.ClOrdID != o.ClOrdID {
		replacementID = r.ClOrdID
	}
	replacement := &Order{
		ClOrdID:     replacementID,
		OrigClOrdID: o.ClOrdID,
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		OrdType:     o.OrdType,
		TimeInForce: o.TimeInForce,
		OrderQty:    o.pendingQty,
		Price:       o.pendingPx,
		CumQty:      o.CumQty,
		AvgPx:       o.AvgPx,
	}
	if r.OrderID != "" {
		replacement.OrderID = r.OrderID
	}
	replacement.LeavesQty = replacement.OrderQty.Sub(replacement.CumQty)
	if r.HasLeavesQty {
		replacement.LeavesQty = r.LeavesQty
	}
	if replacement.LeavesQty.IsNegative() {
		replacement.LeavesQty = decimal.Zero
	}
	replacement.Status = mkt.OrdStatusNew
	if replacement.CumQty.IsPositive() {
		replacement.Status = mkt.OrdStatusPartiallyFilled
	}
	replacement.prior = replacement.Status
	x.byClOrdID[replacement.ClOrdID] = replacement
	o.pendingID = ""
	o.pendingQty = decimal.Decimal{}
	o.pendingPx = decimal.Decimal{}
	o.Status = o.prior
	o.ReplacedBy = replacement.ClOrdID
	if fn := x.events.OnStateChanged; fn != nil {
		fn(replacement, mkt.OrdStatusPendingReplace, replacement.Status)
	}
}

// ApplyCancelReject restores the order to its prior live status after a
// rejected cancel or replace.
func (x *Book) ApplyCancelReject(r *CancelReject) error {
	x.lock.Lock()
	defer x.lock.Unlock()
	o := x.byClOrdID[r.ClOrdID]
	if o == nil {
		o = x.byClOrdID[r.OrigClOrdID]
	}
	if o == nil {
		return ErrUnknownOrder
	}
	if o.Status != mkt.OrdStatusPendingCancel && o.Status != mkt.OrdStatusPendingReplace {
		return nil
	}
	previous := o.Status
	x.restore(o)
	o.Text = r.Reason
	if fn := x.events.OnStateChanged; fn != nil {
		fn(o, previous, o.Status)
	}
	if fn := x.events.OnRejected; fn != nil {
		fn(o, r.Reason)
	}
	return nil
}

// resolve finds the order for a report, trying ClOrdID then OrigClOrdID.
// The caller must hold the lock.
func (x *Book) resolve(r *Report) *Order {
	if o, ok := x.byClOrdID[r.ClOrdID]; ok {
		return o
	}
	if o, ok := x.byClOrdID[r.OrigClOrdID]; ok {
		return o
	}
	return nil
}
