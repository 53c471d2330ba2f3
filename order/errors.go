package order

import "errors"

var (
	// ErrOrderBusy means the order already has an outstanding action. The
	// second action is never sent on the wire; retry after the first is
	// acknowledged or rejected.
	ErrOrderBusy = errors.New("order: action already outstanding")
	// ErrNotLive means the order is not in a state that allows the action.
	ErrNotLive = errors.New("order: not in a live state")
	// ErrUnknownOrder means no order is known for the ClOrdID.
	ErrUnknownOrder = errors.New("order: unknown ClOrdID")
)
