package main

import (
	"sync"
	"time"

	"github.com/gbkr-com/mkt"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"

	"github.com/true-markets/fixsim/auth"
	"github.com/true-markets/fixsim/env"
)

// Application implements [quickfix.Application]: a venue that authenticates
// logons, acknowledges orders, partially fills resting ones and honours
// cancel and replace requests.
type Application struct {
	memoByClOrdID map[string]*Memo
	secrets       map[string]string // API key ID to secret; empty disables the logon check.
	lock          sync.Mutex
}

// NewApplication returns an [*Application] ready to use.
func NewApplication(secrets map[string]string) *Application {
	return &Application{
		memoByClOrdID: map[string]*Memo{},
		secrets:       secrets,
	}
}

// OnCreate notification of a session being created.
func (x *Application) OnCreate(quickfix.SessionID) {}

// OnLogon notification of a session successfully logging on.
func (x *Application) OnLogon(quickfix.SessionID) {}

// OnLogout notification of a session logging off or disconnecting.
func (x *Application) OnLogout(quickfix.SessionID) {}

// ToAdmin notification of admin message being sent to target.
func (x *Application) ToAdmin(*quickfix.Message, quickfix.SessionID) {}

// ToApp notification of app message being sent to target.
func (x *Application) ToApp(*quickfix.Message, quickfix.SessionID) error {
	return nil
}

// FromAdmin checks the signed password on a Logon, when secrets are
// configured.
func (x *Application) FromAdmin(message *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {

	if len(x.secrets) == 0 {
		return nil
	}
	var msgType field.MsgTypeField
	if reject := message.Header.Get(&msgType); reject != nil {
		return reject
	}
	if msgType.Value() != enum.MsgType_LOGON {
		return nil
	}

	username, err := message.Body.GetString(tag.Username)
	if err != nil {
		return err
	}
	password, err := message.Body.GetString(tag.Password)
	if err != nil {
		return err
	}
	secret, ok := x.secrets[username]
	if !ok {
		return quickfix.ValueIsIncorrect(tag.Username)
	}

	sendingTime, err := message.Header.GetString(tag.SendingTime)
	if err != nil {
		return err
	}
	seqNum, err := message.Header.GetInt(tag.MsgSeqNum)
	if err != nil {
		return err
	}
	sender, err := message.Header.GetString(tag.SenderCompID)
	if err != nil {
		return err
	}
	target, err := message.Header.GetString(tag.TargetCompID)
	if err != nil {
		return err
	}

	expected := auth.LogonPassword(secret, sendingTime, string(enum.MsgType_LOGON), seqNum, sender, target, username)
	if password != expected {
		return quickfix.ValueIsIncorrect(tag.Password)
	}
	return nil
}

// FromApp notification of app message being received from target.
func (x *Application) FromApp(message *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {

	x.lock.Lock()
	defer x.lock.Unlock()

	var msgType field.MsgTypeField
	if reject := message.Header.Get(&msgType); reject != nil {
		return reject
	}

	switch msgType.Value() {
	case enum.MsgType_ORDER_SINGLE:
		return x.handleNewOrder(message, sessionID)
	case enum.MsgType_ORDER_CANCEL_REPLACE_REQUEST:
		return x.handleReplace(message, sessionID)
	case enum.MsgType_ORDER_CANCEL_REQUEST:
		return x.handleCancel(message, sessionID)
	}

	return quickfix.UnsupportedMessageType()
}

func (x *Application) handleNewOrder(message *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {

	var (
		clOrdID     field.ClOrdIDField
		ordType     field.OrdTypeField
		symbol      field.SymbolField
		side        field.SideField
		orderQty    field.OrderQtyField
		price       field.PriceField
		timeInForce field.TimeInForceField
	)

	if reject := message.Body.Get(&clOrdID); reject != nil {
		return reject
	}
	if reject := message.Body.Get(&ordType); reject != nil {
		return reject
	}
	if ordType.Value() != enum.OrdType_LIMIT {
		return quickfix.ValueIsIncorrect(tag.OrdType)
	}
	if reject := message.Body.Get(&symbol); reject != nil {
		return reject
	}
	if reject := message.Body.Get(&side); reject != nil {
		return reject
	}
	switch side.Value() {
	case enum.Side_BUY, enum.Side_SELL:
	default:
		return quickfix.ValueIsIncorrect(tag.Side)
	}
	if reject := message.Body.Get(&orderQty); reject != nil {
		return reject
	}
	if reject := message.Body.Get(&price); reject != nil {
		return reject
	}
	if reject := message.Body.Get(&timeInForce); reject != nil {
		return reject
	}
	switch timeInForce.Value() {
	case enum.TimeInForce_GOOD_TILL_CANCEL, enum.TimeInForce_IMMEDIATE_OR_CANCEL:
	default:
		return quickfix.ValueIsIncorrect(tag.TimeInForce)
	}

	memo := &Memo{
		OrderID:     mkt.NewOrderID(),
		ClOrdID:     clOrdID.Value(),
		Symbol:      symbol.Value(),
		Side:        side.Value(),
		OrderQty:    orderQty.Decimal,
		Price:       price.Decimal,
		TimeInForce: timeInForce.Value(),
	}

	reply := x.executionReport(memo, enum.ExecType_PENDING_NEW, enum.OrdStatus_PENDING_NEW)
	if err := quickfix.SendToTarget(reply, sessionID); err != nil {
		return nil
	}
	reply = x.executionReport(memo, enum.ExecType_NEW, enum.OrdStatus_NEW)
	if err := quickfix.SendToTarget(reply, sessionID); err != nil {
		return nil
	}

	if memo.TimeInForce == enum.TimeInForce_IMMEDIATE_OR_CANCEL {
		//
		// Fill completely, never resting.
		//
		memo.CumQty = memo.OrderQty
		reply = x.executionReport(memo, enum.ExecType_TRADE, enum.OrdStatus_FILLED)
		reply.Body.Set(field.NewLastQty(memo.OrderQty, mkt.Precision(memo.OrderQty)))
		reply.Body.Set(field.NewLastPx(memo.Price, mkt.Precision(memo.Price)))
		quickfix.SendToTarget(reply, sessionID)
		return nil
	}

	//
	// A resting order takes an immediate partial fill of half the quantity,
	// so the engine opposite sees every lifecycle state.
	//
	half := memo.OrderQty.Div(decimal.New(2, 0)).Truncate(env.DefaultDecimalPlaces)
	if half.IsPositive() {
		memo.CumQty = half
		reply = x.executionReport(memo, enum.ExecType_TRADE, enum.OrdStatus_PARTIALLY_FILLED)
		reply.Body.Set(field.NewLastQty(half, mkt.Precision(half)))
		reply.Body.Set(field.NewLastPx(memo.Price, mkt.Precision(memo.Price)))
		quickfix.SendToTarget(reply, sessionID)
	}

	x.memoByClOrdID[memo.ClOrdID] = memo
	return nil
}

func (x *Application) handleReplace(message *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {

	var (
		origClOrdID field.OrigClOrdIDField
		clOrdID     field.ClOrdIDField
	)

	if reject := message.Body.Get(&origClOrdID); reject != nil {
		return reject
	}
	if reject := message.Body.Get(&clOrdID); reject != nil {
		return reject
	}

	memo := x.memoByClOrdID[origClOrdID.Value()]
	if memo == nil {
		x.cancelReject(clOrdID.Value(), origClOrdID.Value(), enum.CxlRejResponseTo_ORDER_CANCEL_REPLACE_REQUEST, sessionID)
		return nil
	}

	orderQty := memo.OrderQty
	if v, err := message.Body.GetString(tag.OrderQty); err == nil {
		d, derr := decimal.NewFromString(v)
		if derr != nil {
			return quickfix.ValueIsIncorrect(tag.OrderQty)
		}
		orderQty = d
	}
	price := memo.Price
	if v, err := message.Body.GetString(tag.Price); err == nil {
		d, derr := decimal.NewFromString(v)
		if derr != nil {
			return quickfix.ValueIsIncorrect(tag.Price)
		}
		price = d
	}
	if orderQty.LessThanOrEqual(memo.CumQty) {
		//
		// Cannot replace below the executed quantity.
		//
		x.cancelReject(clOrdID.Value(), origClOrdID.Value(), enum.CxlRejResponseTo_ORDER_CANCEL_REPLACE_REQUEST, sessionID)
		return nil
	}

	reply := x.executionReport(memo, enum.ExecType_PENDING_REPLACE, enum.OrdStatus_PENDING_REPLACE)
	reply.Body.Set(field.NewOrigClOrdID(origClOrdID.Value()))
	reply.Body.Set(field.NewClOrdID(clOrdID.Value()))
	if err := quickfix.SendToTarget(reply, sessionID); err != nil {
		return nil
	}

	//
	// Re-key the memo under the replacement ClOrdID.
	//
	delete(x.memoByClOrdID, memo.ClOrdID)
	memo.ClOrdID = clOrdID.Value()
	memo.OrderQty = orderQty
	memo.Price = price
	x.memoByClOrdID[memo.ClOrdID] = memo

	reply = x.executionReport(memo, enum.ExecType_REPLACED, enum.OrdStatus_NEW)
	reply.Body.Set(field.NewOrigClOrdID(origClOrdID.Value()))
	quickfix.SendToTarget(reply, sessionID)
	return nil
}

func (x *Application) handleCancel(message *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {

	var (
		origClOrdID field.OrigClOrdIDField
		clOrdID     field.ClOrdIDField
	)

	if reject := message.Body.Get(&origClOrdID); reject != nil {
		return reject
	}
	if reject := message.Body.Get(&clOrdID); reject != nil {
		return reject
	}

	memo := x.memoByClOrdID[origClOrdID.Value()]
	if memo == nil {
		x.cancelReject(clOrdID.Value(), origClOrdID.Value(), enum.CxlRejResponseTo_ORDER_CANCEL_REQUEST, sessionID)
		return nil
	}

	reply := x.executionReport(memo, enum.ExecType_PENDING_CANCEL, enum.OrdStatus_PENDING_CANCEL)
	reply.Body.Set(field.NewOrigClOrdID(origClOrdID.Value()))
	reply.Body.Set(field.NewClOrdID(clOrdID.Value()))
	if err := quickfix.SendToTarget(reply, sessionID); err != nil {
		return nil
	}

	reply = x.executionReport(memo, enum.ExecType_CANCELED, enum.OrdStatus_CANCELED)
	reply.Body.Set(field.NewOrigClOrdID(origClOrdID.Value()))
	reply.Body.Set(field.NewClOrdID(clOrdID.Value()))
	quickfix.SendToTarget(reply, sessionID)

	delete(x.memoByClOrdID, memo.ClOrdID)
	return nil
}

// executionReport builds a report with the fields every report carries.
func (x *Application) executionReport(memo *Memo, execType enum.ExecType, ordStatus enum.OrdStatus) *quickfix.Message {
	reply := quickfix.NewMessage()
	reply.Header.Set(field.NewMsgType(enum.MsgType_EXECUTION_REPORT))
	reply.Body.Set(field.NewOrderID(memo.OrderID))
	reply.Body.Set(field.NewClOrdID(memo.ClOrdID))
	reply.Body.Set(field.NewExecID(mkt.NewOrderID()))
	reply.Body.Set(field.NewSymbol(memo.Symbol))
	reply.Body.Set(field.NewSide(memo.Side))
	leaves := memo.LeavesQty()
	reply.Body.Set(field.NewLeavesQty(leaves, mkt.Precision(leaves)))
	reply.Body.Set(field.NewCumQty(memo.CumQty, mkt.Precision(memo.CumQty)))
	reply.Body.Set(field.NewAvgPx(memo.Price, mkt.Precision(memo.Price)))
	reply.Body.Set(field.NewExecType(execType))
	reply.Body.Set(field.NewOrdStatus(ordStatus))
	reply.Body.Set(field.NewTransactTime(time.Now().UTC()))
	return reply
}

func (x *Application) cancelReject(clOrdID, origClOrdID string, responseTo enum.CxlRejResponseTo, sessionID quickfix.SessionID) {
	reply := quickfix.NewMessage()
	reply.Header.Set(field.NewMsgType(enum.MsgType_ORDER_CANCEL_REJECT))
	reply.Body.Set(field.NewOrderID("NONE"))
	reply.Body.Set(field.NewClOrdID(clOrdID))
	reply.Body.Set(field.NewOrigClOrdID(origClOrdID))
	reply.Body.Set(field.NewOrdStatus(enum.OrdStatus_REJECTED))
	reply.Body.Set(field.NewCxlRejResponseTo(responseTo))
	reply.Body.Set(field.NewCxlRejReason(enum.CxlRejReason_UNKNOWN_ORDER))
	reply.Body.Set(field.NewTransactTime(time.Now().UTC()))
	quickfix.SendToTarget(reply, sessionID)
}
