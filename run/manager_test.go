package run

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gbkr-com/mkt"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/tag"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/true-markets/fixsim/fix"
	"github.com/true-markets/fixsim/order"
	"github.com/true-markets/fixsim/session"
)

// counterparty scripts the venue end of a [net.Pipe] transport.
type counterparty struct {
	t    *testing.T
	conn net.Conn
	buf  []byte
	seq  int
}

func (x *counterparty) expect(msgType enum.MsgType) *fix.Message {
	x.t.Helper()
	x.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	chunk := make([]byte, 4096)
	for {
		for len(x.buf) > 0 {
			m, consumed, err := fix.Decode(x.buf)
			if errors.Is(err, fix.ErrTruncatedMessage) {
				break
			}
			x.buf = x.buf[consumed:]
			if err != nil {
				continue
			}
			if m.MsgType == msgType {
				return m
			}
		}
		n, err := x.conn.Read(chunk)
		if err != nil {
			x.t.Fatalf("expecting %v: %v", msgType, err)
		}
		x.buf = append(x.buf, chunk[:n]...)
	}
}

func (x *counterparty) send(m *fix.Message) {
	x.t.Helper()
	x.seq++
	m.BeginString = "FIX.4.4"
	m.SenderCompID = "TRUEX"
	m.TargetCompID = "ALPHA_8"
	m.MsgSeqNum = x.seq
	m.SendingTime = time.Now().UTC()
	if _, err := x.conn.Write(fix.Encode(m)); err != nil {
		x.t.Fatalf("counterparty send: %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {

	//
	// Set up.
	//

	mini := miniredis.RunT(t)
	defer mini.Close()
	rdb := redis.NewClient(&redis.Options{
		Addr: mini.Addr(),
	})

	ready := make(chan string, 1)
	downs := make(chan session.DownReason, 1)
	states := make(chan mkt.OrdStatus, 16)

	manager := NewManager(
		RecoverAbandon,
		Events{
			OnSessionReady: func(key string) { ready <- key },
			OnSessionDown:  func(_ string, reason session.DownReason) { downs <- reason },
			OnOrderStateChanged: func(_ string, _ *order.Order, _, current mkt.OrdStatus) {
				states <- current
			},
		},
		rdb,
		nil,
	)

	client, server := net.Pipe()
	venue := &counterparty{t: t, conn: server}
	cfg := session.Config{SenderCompID: "ALPHA_8", TargetCompID: "TRUEX"}
	key := cfg.Key()

	ctx, cancel := context.WithCancel(context.Background())
	err := manager.AddSession(ctx, cfg, func(context.Context) (io.ReadWriteCloser, error) {
		return client, nil
	})
	assert.Nil(t, err)

	var shutdown sync.WaitGroup
	shutdown.Add(1)
	go manager.Run(ctx, &shutdown)

	venue.expect(enum.MsgType_LOGON)
	venue.send(fix.NewMessage(enum.MsgType_LOGON).SetInt(tag.HeartBtInt, 30))
	assert.Equal(t, key, awaitValue(t, ready))

	//
	// Place an order through the action queue.
	//

	manager.SubmitAction(&Action{
		SessionKey: key,
		Type:       Place,
		Symbol:     "BTC-PYUSD",
		Side:       mkt.Buy,
		OrderQty:   decimal.RequireFromString("0.25"),
		Price:      decimal.RequireFromString("10000.5"),
	})

	single := venue.expect(enum.MsgType_ORDER_SINGLE)
	clOrdID, ok := single.Get(tag.ClOrdID)
	assert.True(t, ok)
	symbol, _ := single.Get(tag.Symbol)
	assert.Equal(t, "BTC-PYUSD", symbol)

	reply := fix.NewMessage(enum.MsgType_EXECUTION_REPORT)
	reply.Set(tag.ClOrdID, clOrdID)
	reply.Set(tag.OrderID, mkt.NewOrderID())
	reply.Set(tag.ExecType, string(enum.ExecType_NEW))
	reply.Set(tag.OrdStatus, string(enum.OrdStatus_NEW))
	venue.send(reply)

	assert.Equal(t, mkt.OrdStatusNew, awaitValue(t, states))
	o := manager.Book(key).Lookup(clOrdID)
	assert.NotNil(t, o)
	assert.True(t, o.Live())

	//
	// The report was journalled.
	//
	entries, err := rdb.XRange(ctx, MakeReportsStreamName(key), "-", "+").Result()
	assert.Nil(t, err)
	assert.Equal(t, 1, len(entries))

	//
	// Inspection.
	//
	statuses := manager.Statuses()
	assert.Equal(t, 1, len(statuses))
	assert.Equal(t, session.Authenticated.String(), statuses[0].State)

	//
	// An action for an unknown session is dropped without disturbing the
	// manager.
	//
	manager.SubmitAction(&Action{SessionKey: "nope->nowhere", Type: Cancel, ClOrdID: clOrdID})

	//
	// Graceful shutdown.
	//
	cancel()
	venue.expect(enum.MsgType_LOGOUT)
	venue.send(fix.NewMessage(enum.MsgType_LOGOUT))
	assert.Equal(t, session.ReasonLogout, awaitValue(t, downs))
	shutdown.Wait()

}

func awaitValue[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		panic("unreachable")
	}
}
