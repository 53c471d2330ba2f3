// Package fix encodes and decodes FIX tag=value messages. The codec is pure:
// it neither blocks nor buffers, leaving transport framing to the caller.
package fix

import (
	"strconv"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
)

// UTCTimestamp is the FIX format for SendingTime and TransactTime, with
// millisecond precision.
const UTCTimestamp = "20060102-15:04:05.000"

// A Field is one tag=value pair in a message body.
type Field struct {
	Tag   quickfix.Tag
	Value string
}

// A Message is one FIX frame: the session-level header fields promoted to
// struct fields, and the body in wire order. Body order is preserved so that
// repeating groups, such as Parties, survive a round trip.
type Message struct {
	BeginString  string // FIX field 8
	MsgType      enum.MsgType
	SenderCompID string // FIX field 49
	TargetCompID string // FIX field 56
	MsgSeqNum    int    // FIX field 34
	PossDup      bool   // FIX field 43
	SendingTime  time.Time
	Body         []Field
}

// NewMessage returns a [*Message] with the given type and an empty body.
func NewMessage(msgType enum.MsgType) *Message {
	return &Message{MsgType: msgType}
}

// Set appends the body field, replacing an existing value for the tag. It
// returns the message for chaining.
func (x *Message) Set(t quickfix.Tag, value string) *Message {
	for i := range x.Body {
		if x.Body[i].Tag == t {
			x.Body[i].Value = value
			return x
		}
	}
	x.Body = append(x.Body, Field{Tag: t, Value: value})
	return x
}

// SetInt is a convenience for [Message.Set].
func (x *Message) SetInt(t quickfix.Tag, value int) *Message {
	return x.Set(t, strconv.Itoa(value))
}

// SetDecimal is a convenience for [Message.Set].
func (x *Message) SetDecimal(t quickfix.Tag, value decimal.Decimal) *Message {
	return x.Set(t, value.String())
}

// Get returns the first body value for the tag.
func (x *Message) Get(t quickfix.Tag) (string, bool) {
	for i := range x.Body {
		if x.Body[i].Tag == t {
			return x.Body[i].Value, true
		}
	}
	return "", false
}

// GetInt returns the first body value for the tag as an int.
func (x *Message) GetInt(t quickfix.Tag) (int, bool) {
	s, ok := x.Get(t)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetDecimal returns the first body value for the tag as a [decimal.Decimal].
func (x *Message) GetDecimal(t quickfix.Tag) (decimal.Decimal, bool) {
	s, ok := x.Get(t)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// GetTime returns the first body value for the tag as a UTC timestamp.
func (x *Message) GetTime(t quickfix.Tag) (time.Time, bool) {
	s, ok := x.Get(t)
	if !ok {
		return time.Time{}, false
	}
	return parseUTCTimestamp(s)
}

func parseUTCTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{UTCTimestamp, "20060102-15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// IsAdmin returns true for session-level message types.
func (x *Message) IsAdmin() bool {
	switch x.MsgType {
	case enum.MsgType_HEARTBEAT,
		enum.MsgType_TEST_REQUEST,
		enum.MsgType_RESEND_REQUEST,
		enum.MsgType_REJECT,
		enum.MsgType_SEQUENCE_RESET,
		enum.MsgType_LOGOUT,
		enum.MsgType_LOGON:
		return true
	}
	return false
}

// knownMsgTypes are the message types this engine understands. Anything else
// decodes with [ErrUnknownMessageType].
var knownMsgTypes = map[enum.MsgType]bool{
	enum.MsgType_HEARTBEAT:                    true,
	enum.MsgType_TEST_REQUEST:                 true,
	enum.MsgType_RESEND_REQUEST:               true,
	enum.MsgType_REJECT:                       true,
	enum.MsgType_SEQUENCE_RESET:               true,
	enum.MsgType_LOGOUT:                       true,
	enum.MsgType_LOGON:                        true,
	enum.MsgType_ORDER_SINGLE:                 true,
	enum.MsgType_ORDER_CANCEL_REQUEST:         true,
	enum.MsgType_ORDER_CANCEL_REPLACE_REQUEST: true,
	enum.MsgType_EXECUTION_REPORT:             true,
	enum.MsgType_ORDER_CANCEL_REJECT:          true,
}

// headerTag reports whether the tag is consumed into the [Message] header
// fields when decoding.
func headerTag(t quickfix.Tag) bool {
	switch t {
	case tag.BeginString, tag.BodyLength, tag.MsgType, tag.SenderCompID,
		tag.TargetCompID, tag.MsgSeqNum, tag.PossDupFlag, tag.SendingTime,
		tag.CheckSum:
		return true
	}
	return false
}
