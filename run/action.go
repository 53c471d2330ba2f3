package run

import (
	"github.com/gbkr-com/mkt"
	"github.com/gbkr-com/utl"
	"github.com/shopspring/decimal"
)

// ActionType enumerates what a [*Action] asks of the engine.
type ActionType int

// ActionType values.
const (
	Place ActionType = iota
	Modify
	Cancel
)

// String implements [fmt.Stringer].
func (x ActionType) String() string {
	switch x {
	case Place:
		return "place"
	case Modify:
		return "modify"
	case Cancel:
		return "cancel"
	}
	return "unknown"
}

// An Action is one instruction for the [*Manager]: place a new order, or
// modify or cancel a live one. Actions are fire-and-forget: outcomes surface
// through [Events].
type Action struct {
	ID         string
	SessionKey string
	Type       ActionType

	// For [Place].
	Symbol   string
	Side     mkt.Side
	OrderQty decimal.Decimal
	Price    decimal.Decimal

	// For [Modify] and [Cancel]: the target order. Empty means any live
	// order on the session.
	ClOrdID string

	// For [Modify]: nil leaves the term unchanged.
	NewOrderQty *decimal.Decimal
	NewPrice    *decimal.Decimal
}

// NewActionQueue makes the queue feeding a [*Manager]. Every action has a
// distinct ID so nothing conflates: the queue is used for its channel
// signalling.
func NewActionQueue() *utl.ConflatingQueue[string, *Action] {
	return utl.NewConflatingQueue[string, *Action](
		func(action *Action) string {
			return action.ID
		},
	)
}
