// Package session keeps one logical FIX session alive and in sequence over a
// byte-stream transport: logon, heartbeat liveness, gap recovery and logout.
package session

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/tag"
	"go.uber.org/zap"

	"github.com/true-markets/fixsim/auth"
	"github.com/true-markets/fixsim/env"
	"github.com/true-markets/fixsim/fix"
)

// Config for one session.
type Config struct {
	BeginString  string // Defaults to FIX.4.4.
	SenderCompID string
	TargetCompID string
	HeartBtInt   time.Duration // FIX field 108, default [env.DefaultHeartBtInt].
	LogonTimeout time.Duration // Defaults to [env.LogonTimeout].
	// MalformedLimit is the count of consecutive undecodable frames that
	// tears the session down as a connection-quality signal. Defaults to
	// [env.MalformedFrameLimit].
	MalformedLimit int
	// ResetSeqNum requests a sequence reset on the Logon, FIX field 141.
	ResetSeqNum bool
	// Credentials, when present, stamp Username and Password on the Logon.
	Credentials *auth.Credentials
}

// Key identifies the session for routing, metrics and the sequence
// checkpoint.
func (x Config) Key() string {
	return x.SenderCompID + "->" + x.TargetCompID
}

// Events surfaced by a [*Session]. Codec and sequencing errors are handled
// within the session and never appear here: only readiness changes and
// in-order application messages do. All callbacks run on the session worker.
type Events struct {
	OnReady func(*Session)
	OnDown  func(*Session, DownReason)
	OnApp   func(*Session, *fix.Message)
}

// A Session is one logical FIX session. It runs once: after [Events.OnDown]
// fires the caller must build a new Session, reusing the [*SequenceStore] so
// sequencing survives the re-logon.
type Session struct {
	cfg    Config
	seq    *SequenceStore
	events Events
	logger *zap.Logger
	key    string

	conn     io.ReadWriteCloser
	sendLock sync.Mutex // sequence allocation + write is one atomic unit

	stateLock sync.Mutex
	state     State

	liveLock     sync.Mutex
	lastSent     time.Time
	lastReceived time.Time

	// Loop-owned: the pending test request, the out-of-order stash and the
	// end of the outstanding resend range.
	pendingTestReq string
	testReqAt      time.Time
	stash          map[int]*fix.Message
	resendEnd      int

	inbound  chan *fix.Message
	problems chan DownReason
	quit     chan struct{}
	downOnce sync.Once
}

// NewSession returns a [*Session] ready to run.
func NewSession(cfg Config, seq *SequenceStore, events Events, logger *zap.Logger) *Session {
	if cfg.BeginString == "" {
		cfg.BeginString = "FIX.4.4"
	}
	if cfg.HeartBtInt <= 0 {
		cfg.HeartBtInt = env.DefaultHeartBtInt
	}
	if cfg.LogonTimeout <= 0 {
		cfg.LogonTimeout = env.LogonTimeout
	}
	if cfg.MalformedLimit <= 0 {
		cfg.MalformedLimit = env.MalformedFrameLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:      cfg,
		seq:      seq,
		events:   events,
		logger:   logger.With(zap.String("session", cfg.Key())),
		key:      cfg.Key(),
		stash:    make(map[int]*fix.Message),
		inbound:  make(chan *fix.Message, 64),
		problems: make(chan DownReason, 1),
		quit:     make(chan struct{}),
	}
}

// Key identifies this session, see [Config.Key].
func (x *Session) Key() string {
	return x.key
}

// State returns the current session state.
func (x *Session) State() State {
	x.stateLock.Lock()
	defer x.stateLock.Unlock()
	return x.state
}

func (x *Session) setState(s State) {
	x.stateLock.Lock()
	defer x.stateLock.Unlock()
	x.state = s
}

// SendApp stamps and sends an application message. It fails fast with
// [ErrSessionNotReady] unless the session is [Authenticated].
func (x *Session) SendApp(m *fix.Message) error {
	if x.State() != Authenticated {
		return ErrSessionNotReady
	}
	return x.send(m)
}

// Run the session until the context is cancelled, a logout completes or a
// fatal condition occurs. Cancellation initiates a graceful logout; orders
// outstanding at that point stay in their last known state.
func (x *Session) Run(ctx context.Context, conn io.ReadWriteCloser, shutdown *sync.WaitGroup) {

	defer shutdown.Done()

	x.conn = conn
	if x.cfg.ResetSeqNum {
		x.seq.Reset()
	}

	now := time.Now()
	x.liveLock.Lock()
	x.lastSent, x.lastReceived = now, now
	x.liveLock.Unlock()

	x.setState(LogonSent)
	if err := x.send(x.logonMessage()); err != nil {
		x.down(ReasonTransportError)
		return
	}

	go x.read()

	ticker := time.NewTicker(x.cfg.HeartBtInt / 4)
	defer ticker.Stop()
	logonDeadline := time.After(x.cfg.LogonTimeout)

	for {
		select {

		case <-ctx.Done():
			x.logoutAndClose()
			return

		case reason := <-x.problems:
			x.down(reason)
			return

		case m := <-x.inbound:
			if !x.handle(m) {
				return
			}

		case <-logonDeadline:
			if x.State() == LogonSent {
				x.logger.Warn("logon unanswered")
				x.down(ReasonLogonRejected)
				return
			}

		case <-ticker.C:
			if !x.checkLiveness() {
				return
			}
		}
	}
}

func (x *Session) logonMessage() *fix.Message {
	m := fix.NewMessage(enum.MsgType_LOGON)
	m.SetInt(tag.EncryptMethod, 0)
	m.SetInt(tag.HeartBtInt, int(x.cfg.HeartBtInt/time.Second))
	if x.cfg.ResetSeqNum {
		m.Set(tag.ResetSeqNumFlag, "Y")
	}
	return m
}

// send stamps the header, allocates the sequence number and writes the frame,
// all under one lock so concurrent sends can never interleave their sequence
// assignment.
func (x *Session) send(m *fix.Message) error {

	x.sendLock.Lock()
	defer x.sendLock.Unlock()

	m.BeginString = x.cfg.BeginString
	m.SenderCompID = x.cfg.SenderCompID
	m.TargetCompID = x.cfg.TargetCompID
	m.SendingTime = time.Now().UTC()
	m.MsgSeqNum = x.seq.NextOutbound()

	if m.MsgType == enum.MsgType_LOGON && x.cfg.Credentials != nil {
		c := x.cfg.Credentials
		m.Set(tag.Username, c.APIKeyID)
		m.Set(tag.Password, auth.LogonPassword(
			c.APIKeySecret,
			m.SendingTime.Format(fix.UTCTimestamp),
			string(m.MsgType),
			m.MsgSeqNum,
			m.SenderCompID,
			m.TargetCompID,
			c.APIKeyID,
		))
	}

	if _, err := x.conn.Write(fix.Encode(m)); err != nil {
		return err
	}

	x.liveLock.Lock()
	x.lastSent = time.Now()
	x.liveLock.Unlock()
	messageCounters.WithLabelValues(x.key, "out").Inc()
	return nil
}

// sendGapFill answers a counterparty ResendRequest. Nothing is replayed: the
// whole requested range is covered by one SequenceReset-GapFill stamped with
// the first requested number, pointing at our live outbound counter.
func (x *Session) sendGapFill(begin int) error {

	x.sendLock.Lock()
	defer x.sendLock.Unlock()

	m := fix.NewMessage(enum.MsgType_SEQUENCE_RESET)
	m.BeginString = x.cfg.BeginString
	m.SenderCompID = x.cfg.SenderCompID
	m.TargetCompID = x.cfg.TargetCompID
	m.SendingTime = time.Now().UTC()
	m.MsgSeqNum = begin
	m.PossDup = true
	m.Set(tag.GapFillFlag, "Y")
	m.SetInt(tag.NewSeqNo, x.seq.PeekOutbound())

	_, err := x.conn.Write(fix.Encode(m))
	return err
}

func (x *Session) handle(m *fix.Message) bool {

	x.liveLock.Lock()
	x.lastReceived = time.Now()
	x.liveLock.Unlock()
	messageCounters.WithLabelValues(x.key, "in").Inc()

	if m.SenderCompID != x.cfg.TargetCompID || m.TargetCompID != x.cfg.SenderCompID {
		discardCounters.WithLabelValues(x.key, "unknownSession").Inc()
		x.logger.Warn("comp IDs do not match session",
			zap.String("sender", m.SenderCompID),
			zap.String("target", m.TargetCompID),
		)
		return true
	}

	switch x.State() {

	case LogonSent:
		switch m.MsgType {
		case enum.MsgType_LOGON:
			cls := x.seq.ObserveInbound(m.MsgSeqNum)
			x.setState(Authenticated)
			readyState.WithLabelValues(x.key).Set(1)
			x.logger.Info("authenticated")
			if x.events.OnReady != nil {
				x.events.OnReady(x)
			}
			if cls == Gap {
				//
				// Stash the Logon itself so the resend advances the
				// expectation past its number in one round trip.
				//
				x.stash[m.MsgSeqNum] = m
				x.enterRecovering(m.MsgSeqNum)
			}
		case enum.MsgType_LOGOUT, enum.MsgType_REJECT:
			x.logger.Warn("logon rejected", zap.String("msgType", string(m.MsgType)))
			x.down(ReasonLogonRejected)
			return false
		}
		return true

	case Authenticated, Recovering, PendingLogout:
		return x.handleSequenced(m)
	}

	return true
}

func (x *Session) handleSequenced(m *fix.Message) bool {

	//
	// A SequenceReset jumps the expectation directly; its own header number
	// is not meaningful when gap filling.
	//
	if m.MsgType == enum.MsgType_SEQUENCE_RESET {
		if n, ok := m.GetInt(tag.NewSeqNo); ok {
			x.seq.SetExpected(n)
		}
		return x.drainStash()
	}

	switch x.seq.ObserveInbound(m.MsgSeqNum) {

	case Duplicate:
		discardCounters.WithLabelValues(x.key, "duplicate").Inc()
		x.logger.Debug("duplicate discarded",
			zap.Int("seq", m.MsgSeqNum),
			zap.Bool("possDup", m.PossDup),
		)
		return true

	case Gap:
		x.stash[m.MsgSeqNum] = m
		if x.State() != Recovering {
			x.enterRecovering(m.MsgSeqNum)
		}
		return true
	}

	if !x.dispatch(m) {
		return false
	}
	return x.drainStash()
}

func (x *Session) enterRecovering(received int) {
	x.setState(Recovering)
	x.requestResend(received)
}

// requestResend asks for exactly the missing range, which ends one before the
// sequence number that exposed the gap.
func (x *Session) requestResend(received int) {
	gapCounters.WithLabelValues(x.key).Inc()
	expected := x.seq.ExpectedInbound()
	x.resendEnd = received - 1
	x.logger.Warn("sequence gap", zap.Int("expected", expected), zap.Int("received", received))
	m := fix.NewMessage(enum.MsgType_RESEND_REQUEST)
	m.SetInt(tag.BeginSeqNo, expected)
	m.SetInt(tag.EndSeqNo, received-1)
	x.send(m)
}

// drainStash replays stashed out-of-order messages that the resend has made
// deliverable, and returns the session to [Authenticated] once none remain.
// Messages still stashed beyond the requested range mean another gap opened
// during recovery: that range is requested in turn.
func (x *Session) drainStash() bool {

	for seq := range x.stash {
		if seq < x.seq.ExpectedInbound() {
			delete(x.stash, seq)
		}
	}

	for {
		m, ok := x.stash[x.seq.ExpectedInbound()]
		if !ok {
			break
		}
		delete(x.stash, m.MsgSeqNum)
		x.seq.ObserveInbound(m.MsgSeqNum)
		if m.MsgType == enum.MsgType_LOGON {
			// The accepting Logon was acted on when it arrived.
			continue
		}
		if !x.dispatch(m) {
			return false
		}
	}

	if x.State() == Recovering {
		if len(x.stash) == 0 {
			x.setState(Authenticated)
			x.logger.Info("recovered")
		} else if x.seq.ExpectedInbound() > x.resendEnd {
			lowest := 0
			for seq := range x.stash {
				if lowest == 0 || seq < lowest {
					lowest = seq
				}
			}
			x.requestResend(lowest)
		}
	}
	return true
}

func (x *Session) dispatch(m *fix.Message) bool {

	switch m.MsgType {

	case enum.MsgType_HEARTBEAT:
		x.pendingTestReq = ""

	case enum.MsgType_TEST_REQUEST:
		reply := fix.NewMessage(enum.MsgType_HEARTBEAT)
		if token, ok := m.Get(tag.TestReqID); ok {
			reply.Set(tag.TestReqID, token)
		}
		x.send(reply)

	case enum.MsgType_RESEND_REQUEST:
		begin, _ := m.GetInt(tag.BeginSeqNo)
		x.sendGapFill(begin)

	case enum.MsgType_REJECT:
		refSeqNum, _ := m.Get(tag.RefSeqNum)
		text, _ := m.Get(tag.Text)
		x.logger.Warn("session level reject",
			zap.String("refSeqNum", refSeqNum),
			zap.String("text", text),
		)

	case enum.MsgType_LOGON:
		x.logger.Warn("unexpected logon", zap.Int("seq", m.MsgSeqNum))

	case enum.MsgType_LOGOUT:
		if x.State() != PendingLogout {
			x.send(fix.NewMessage(enum.MsgType_LOGOUT))
		}
		x.down(ReasonLogout)
		return false

	default:
		if x.events.OnApp != nil {
			x.events.OnApp(x, m)
		}
	}

	return true
}

// checkLiveness runs on the timer and is idempotent against activity that
// already satisfied it: a wakeup just after traffic does nothing.
func (x *Session) checkLiveness() bool {

	switch x.State() {
	case Authenticated, Recovering:
	default:
		return true
	}

	now := time.Now()
	x.liveLock.Lock()
	lastSent, lastReceived := x.lastSent, x.lastReceived
	x.liveLock.Unlock()

	if x.testReqAt.Before(lastReceived) {
		x.pendingTestReq = ""
	}

	if x.pendingTestReq != "" {
		if now.Sub(x.testReqAt) >= x.cfg.HeartBtInt {
			x.logger.Warn("test request unanswered")
			x.down(ReasonHeartbeatTimeout)
			return false
		}
	} else if now.Sub(lastReceived) >= x.cfg.HeartBtInt {
		token := strconv.FormatInt(now.UnixMilli(), 10)
		x.pendingTestReq = token
		x.testReqAt = now
		x.send(fix.NewMessage(enum.MsgType_TEST_REQUEST).Set(tag.TestReqID, token))
	}

	if now.Sub(lastSent) >= x.cfg.HeartBtInt {
		x.send(fix.NewMessage(enum.MsgType_HEARTBEAT))
	}

	return true
}

func (x *Session) logoutAndClose() {

	switch x.State() {
	case Authenticated, Recovering:
	default:
		x.down(ReasonLogout)
		return
	}

	x.setState(PendingLogout)
	x.send(fix.NewMessage(enum.MsgType_LOGOUT))

	deadline := time.After(env.LogoutTimeout)
	for {
		select {
		case m := <-x.inbound:
			if m.MsgType == enum.MsgType_LOGOUT {
				x.down(ReasonLogout)
				return
			}
		case <-deadline:
			x.down(ReasonLogout)
			return
		}
	}
}

// down reports the session down exactly once and releases the transport.
func (x *Session) down(reason DownReason) {
	x.downOnce.Do(func() {
		if reason == ReasonLogout {
			x.setState(LoggedOut)
		} else {
			x.setState(Disconnected)
		}
		close(x.quit)
		x.conn.Close()
		readyState.WithLabelValues(x.key).Set(0)
		x.logger.Info("session down", zap.String("reason", reason.String()))
		if x.events.OnDown != nil {
			x.events.OnDown(x, reason)
		}
	})
}

// read frames the transport byte stream and feeds whole messages to the
// session worker. Malformed frames are discarded; only a consecutive run of
// them at [Config.MalformedLimit] tears the session down.
func (x *Session) read() {

	var (
		buf         []byte
		consecutive int
	)
	chunk := make([]byte, 4096)

	for {

		n, err := x.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for len(buf) > 0 {
				m, consumed, derr := fix.Decode(buf)
				if errors.Is(derr, fix.ErrTruncatedMessage) {
					break
				}
				buf = buf[consumed:]
				switch {
				case derr == nil:
					consecutive = 0
					select {
					case x.inbound <- m:
					case <-x.quit:
						return
					}
				case errors.Is(derr, fix.ErrUnknownMessageType):
					consecutive = 0
					discardCounters.WithLabelValues(x.key, "unknownType").Inc()
					x.logger.Warn("unknown message type discarded")
				default:
					consecutive++
					discardCounters.WithLabelValues(x.key, "malformed").Inc()
					x.logger.Warn("malformed frame discarded", zap.Int("consecutive", consecutive))
					if consecutive >= x.cfg.MalformedLimit {
						x.problem(ReasonTooManyMalformed)
						return
					}
				}
			}
		}

		if err != nil {
			x.problem(ReasonTransportError)
			return
		}
	}
}

func (x *Session) problem(reason DownReason) {
	select {
	case x.problems <- reason:
	case <-x.quit:
	}
}
