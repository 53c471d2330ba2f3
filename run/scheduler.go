package run

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/gbkr-com/mkt"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/true-markets/fixsim/order"
)

// An Instrument describes the listing a [*Scheduler] trades.
type Instrument struct {
	Symbol         string
	ReferencePrice decimal.Decimal
	QuoteIncrement decimal.Decimal // Prices snap to a multiple of this.
	BaseIncrement  decimal.Decimal // Quantities snap to a multiple of this.
}

// snap rounds the value down to a multiple of the increment.
func snap(value, increment decimal.Decimal) decimal.Decimal {
	if !increment.IsPositive() {
		return value
	}
	return value.Div(increment).Floor().Mul(increment)
}

// A Scheduler generates a steady random workload on one session: mostly new
// orders, with occasional modifies and cancels of whatever is live.
type Scheduler struct {
	sessionKey string
	instrument Instrument
	manager    *Manager
	rng        *rand.Rand
	minWait    time.Duration
	maxWait    time.Duration
	logger     *zap.Logger
}

// NewScheduler returns a [*Scheduler] ready to run, waiting between 7 and 10
// seconds between actions.
func NewScheduler(sessionKey string, instrument Instrument, manager *Manager, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sessionKey: sessionKey,
		instrument: instrument,
		manager:    manager,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		minWait:    7 * time.Second,
		maxWait:    10 * time.Second,
		logger:     logger.With(zap.String("session", sessionKey)),
	}
}

// Run until the context is cancelled.
func (x *Scheduler) Run(ctx context.Context, shutdown *sync.WaitGroup) {

	defer shutdown.Done()

	for {
		wait := x.minWait + time.Duration(x.rng.Int63n(int64(x.maxWait-x.minWait)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			x.manager.SubmitAction(x.next())
		}
	}
}

// next chooses the action: place 70%, modify 20%, cancel 10%. A modify or
// cancel with nothing live falls back to placing.
func (x *Scheduler) next() *Action {

	p := x.rng.Float64()
	if p < 0.7 {
		return x.place()
	}

	target := x.target()
	if target == "" {
		return x.place()
	}
	if p < 0.9 {
		px := x.price()
		return &Action{
			SessionKey: x.sessionKey,
			Type:       Modify,
			ClOrdID:    target,
			NewPrice:   &px,
		}
	}
	return &Action{
		SessionKey: x.sessionKey,
		Type:       Cancel,
		ClOrdID:    target,
	}
}

func (x *Scheduler) place() *Action {
	side := mkt.Buy
	if x.rng.Intn(2) == 1 {
		side = mkt.Sell
	}
	return &Action{
		SessionKey: x.sessionKey,
		Type:       Place,
		Symbol:     x.instrument.Symbol,
		Side:       side,
		OrderQty:   x.quantity(),
		Price:      x.price(),
	}
}

// price is the reference price moved by up to 0.1% either way, snapped to
// the quote increment.
func (x *Scheduler) price() decimal.Decimal {
	drift := decimal.NewFromFloat((x.rng.Float64()*2 - 1) * 0.001)
	px := x.instrument.ReferencePrice.Add(x.instrument.ReferencePrice.Mul(drift))
	return snap(px, x.instrument.QuoteIncrement)
}

// quantity is between 0.2 and 0.3, snapped to the base increment.
func (x *Scheduler) quantity() decimal.Decimal {
	qty := decimal.NewFromFloat(0.2 + x.rng.Float64()*0.1)
	return snap(qty, x.instrument.BaseIncrement)
}

// target picks a random live order on the session, or returns empty.
func (x *Scheduler) target() string {
	book := x.manager.Book(x.sessionKey)
	if book == nil {
		return ""
	}
	var live []*order.Order
	for _, o := range book.Orders() {
		if o.Live() {
			live = append(live, o)
		}
	}
	if len(live) == 0 {
		return ""
	}
	return live[x.rng.Intn(len(live))].ClOrdID
}
