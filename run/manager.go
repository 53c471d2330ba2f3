// Package run assembles sessions, order books and schedulers into a running
// engine: one manager routing actions and reports, and one scheduler per
// session generating a steady trading workload.
package run

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gbkr-com/mkt"
	"github.com/gbkr-com/utl"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/tag"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/true-markets/fixsim/env"
	"github.com/true-markets/fixsim/fix"
	"github.com/true-markets/fixsim/order"
	"github.com/true-markets/fixsim/session"
)

// A Dialer opens the transport for one session attempt.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// RecoveryPolicy says what the [*Manager] does when a session goes down for
// any reason other than a requested logout.
type RecoveryPolicy int

// RecoveryPolicy values. [RecoverAbandon] leaves the session down and its
// orders in their last known state. [RecoverReconnect] redials after
// [env.ReconnectDelay], reusing the sequence checkpoint so the counterparty
// sees a resumed session.
const (
	RecoverAbandon RecoveryPolicy = iota
	RecoverReconnect
)

// Events surfaced by a [*Manager]. Each is optional.
type Events struct {
	OnSessionReady      func(key string)
	OnSessionDown       func(key string, reason session.DownReason)
	OnOrderStateChanged func(key string, o *order.Order, previous, current mkt.OrdStatus)
	OnOrderRejected     func(key string, o *order.Order, reason string)
}

// A member is one session with its book and transport.
type member struct {
	cfg  session.Config
	seq  *session.SequenceStore
	book *order.Book
	dial Dialer

	lock    sync.Mutex
	current *session.Session
}

func (x *member) session() *session.Session {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.current
}

func (x *member) setSession(s *session.Session) {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.current = s
}

// A Manager owns a set of sessions and their order books. Actions are
// submitted from any goroutine and applied on the manager worker; inbound
// reports are applied to the books on their session workers.
type Manager struct {
	lock    sync.Mutex
	members map[string]*member
	actions *utl.ConflatingQueue[string, *Action]
	events  Events
	policy  RecoveryPolicy
	rdb     *redis.Client
	journal *Journal
	logger  *zap.Logger
}

// NewManager returns a [*Manager] ready for [Manager.AddSession]. A nil
// Redis client disables both sequence checkpoints and the report journal.
func NewManager(policy RecoveryPolicy, events Events, rdb *redis.Client, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		members: map[string]*member{},
		actions: NewActionQueue(),
		events:  events,
		policy:  policy,
		rdb:     rdb,
		journal: NewJournal(rdb),
		logger:  logger,
	}
}

// AddSession registers a session before [Manager.Run]. The sequence
// checkpoint for the session identity is recovered from Redis, so a restart
// resumes where it stopped.
func (x *Manager) AddSession(ctx context.Context, cfg session.Config, dial Dialer) error {

	seq, err := session.NewSequenceStore(ctx, cfg.Key(), x.rdb)
	if err != nil {
		return err
	}

	m := &member{cfg: cfg, seq: seq, dial: dial}
	key := cfg.Key()
	m.book = order.NewBook(order.Events{
		OnStateChanged: func(o *order.Order, previous, current mkt.OrdStatus) {
			orderStateCounters.WithLabelValues(key, order.StatusName(current)).Inc()
			if fn := x.events.OnOrderStateChanged; fn != nil {
				fn(key, o, previous, current)
			}
		},
		OnRejected: func(o *order.Order, reason string) {
			if fn := x.events.OnOrderRejected; fn != nil {
				fn(key, o, reason)
			}
		},
	})

	x.lock.Lock()
	defer x.lock.Unlock()
	x.members[key] = m
	return nil
}

// Book returns the order book for the session key, or nil.
func (x *Manager) Book(key string) *order.Book {
	m := x.member(key)
	if m == nil {
		return nil
	}
	return m.book
}

// SubmitAction queues the action for the manager worker. Validation happens
// there: an action for an unknown or not-ready session is dropped with a
// log line and a metric, never an error to the submitter.
func (x *Manager) SubmitAction(action *Action) {
	if action.ID == "" {
		action.ID = mkt.NewOrderID()
	}
	x.actions.Push(action)
}

// SessionStatus is a point-in-time view of one session, for the inspection
// endpoints.
type SessionStatus struct {
	Key             string `json:"key"`
	State           string `json:"state"`
	NextOutbound    int    `json:"nextOutbound"`
	ExpectedInbound int    `json:"expectedInbound"`
}

// Statuses returns a snapshot of every session.
func (x *Manager) Statuses() []SessionStatus {
	x.lock.Lock()
	defer x.lock.Unlock()
	statuses := make([]SessionStatus, 0, len(x.members))
	for key, m := range x.members {
		status := SessionStatus{
			Key:             key,
			State:           session.Disconnected.String(),
			NextOutbound:    m.seq.PeekOutbound(),
			ExpectedInbound: m.seq.ExpectedInbound(),
		}
		if s := m.session(); s != nil {
			status.State = s.State().String()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Run the manager until the context is cancelled. Each session dials and
// runs on its own goroutine; cancellation logs every session out gracefully
// before returning.
func (x *Manager) Run(ctx context.Context, shutdown *sync.WaitGroup) {

	defer shutdown.Done()

	var sessions sync.WaitGroup
	x.lock.Lock()
	for _, m := range x.members {
		sessions.Add(1)
		go x.connect(ctx, m, &sessions)
	}
	x.lock.Unlock()

	for {
		select {
		case <-ctx.Done():
			sessions.Wait()
			return
		case <-x.actions.C():
			if action := x.actions.Pop(); action != nil {
				x.apply(action)
			}
		}
	}
}

// connect dials and runs the session, redialling per the recovery policy
// until the context is cancelled.
func (x *Manager) connect(ctx context.Context, m *member, sessions *sync.WaitGroup) {

	defer sessions.Done()
	key := m.cfg.Key()

	for {

		conn, err := m.dial(ctx)
		if err != nil {
			x.logger.Error("dial failed", zap.String("session", key), zap.Error(err))
		} else {
			s := session.NewSession(
				m.cfg,
				m.seq,
				session.Events{
					OnReady: func(*session.Session) {
						if fn := x.events.OnSessionReady; fn != nil {
							fn(key)
						}
					},
					OnDown: func(_ *session.Session, reason session.DownReason) {
						if fn := x.events.OnSessionDown; fn != nil {
							fn(key, reason)
						}
					},
					OnApp: func(_ *session.Session, message *fix.Message) {
						x.onApp(key, m, message)
					},
				},
				x.logger,
			)
			m.setSession(s)
			var done sync.WaitGroup
			done.Add(1)
			s.Run(ctx, conn, &done)
			done.Wait()
		}

		if ctx.Err() != nil || x.policy == RecoverAbandon {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(env.ReconnectDelay):
		}
	}
}

// onApp routes an in-order application message to the session's book. Runs
// on the session worker.
func (x *Manager) onApp(key string, m *member, message *fix.Message) {

	switch message.MsgType {

	case enum.MsgType_EXECUTION_REPORT:
		report, err := order.ReportFromMessage(message)
		if err != nil {
			x.logger.Warn("undecodable execution report", zap.String("session", key), zap.Error(err))
			return
		}
		x.journal.WriteReport(context.Background(), key, message)
		if err := m.book.Apply(report); err != nil {
			clOrdID, _ := message.Get(tag.ClOrdID)
			x.logger.Warn("report for unknown order",
				zap.String("session", key),
				zap.String("clOrdID", clOrdID),
			)
		}

	case enum.MsgType_ORDER_CANCEL_REJECT:
		reject, err := order.CancelRejectFromMessage(message)
		if err != nil {
			x.logger.Warn("undecodable cancel reject", zap.String("session", key), zap.Error(err))
			return
		}
		if err := m.book.ApplyCancelReject(reject); err != nil {
			x.logger.Warn("cancel reject for unknown order",
				zap.String("session", key),
				zap.String("clOrdID", reject.ClOrdID),
			)
		}

	default:
		x.logger.Warn("unexpected application message",
			zap.String("session", key),
			zap.String("msgType", string(message.MsgType)),
		)
	}
}

func (x *Manager) member(key string) *member {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.members[key]
}

// apply one action on the manager worker.
func (x *Manager) apply(action *Action) {

	m := x.member(action.SessionKey)
	if m == nil {
		actionCounters.WithLabelValues(action.SessionKey, action.Type.String(), "unknownSession").Inc()
		x.logger.Warn("action for unknown session", zap.String("session", action.SessionKey))
		return
	}
	s := m.session()
	if s == nil || s.State() != session.Authenticated {
		actionCounters.WithLabelValues(action.SessionKey, action.Type.String(), "notReady").Inc()
		x.logger.Info("action while session not ready",
			zap.String("session", action.SessionKey),
			zap.String("action", action.Type.String()),
		)
		return
	}

	var (
		requestID string
		message   *fix.Message
		err       error
	)
	switch action.Type {

	case Place:
		var o *order.Order
		o, message = m.book.SubmitNew(action.Symbol, action.Side, enum.OrdType_LIMIT, action.OrderQty, action.Price, mkt.GTC)
		requestID = o.ClOrdID

	case Modify:
		message, err = m.book.SubmitReplace(action.ClOrdID, action.NewOrderQty, action.NewPrice)

	case Cancel:
		message, err = m.book.SubmitCancel(action.ClOrdID)

	}
	if err != nil {
		actionCounters.WithLabelValues(action.SessionKey, action.Type.String(), "refused").Inc()
		x.logger.Info("action refused",
			zap.String("session", action.SessionKey),
			zap.String("action", action.Type.String()),
			zap.String("clOrdID", action.ClOrdID),
			zap.Error(err),
		)
		return
	}
	if requestID == "" {
		requestID, _ = message.Get(tag.ClOrdID)
	}

	if err := s.SendApp(message); err != nil {
		m.book.Revert(requestID)
		actionCounters.WithLabelValues(action.SessionKey, action.Type.String(), "sendFailed").Inc()
		x.logger.Warn("action send failed",
			zap.String("session", action.SessionKey),
			zap.String("action", action.Type.String()),
			zap.Error(err),
		)
		return
	}
	actionCounters.WithLabelValues(action.SessionKey, action.Type.String(), "sent").Inc()
}
