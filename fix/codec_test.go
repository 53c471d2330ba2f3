package fix

import (
	"bytes"
	"testing"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testMessage() *Message {
	m := NewMessage(enum.MsgType_ORDER_SINGLE)
	m.BeginString = "FIX.4.4"
	m.SenderCompID = "ALPHA_8"
	m.TargetCompID = "TRUEX"
	m.MsgSeqNum = 7
	m.SendingTime = time.Date(2024, 11, 5, 14, 30, 0, 123_000_000, time.UTC)
	m.Set(tag.ClOrdID, "1730816999-abcdef12-1")
	m.Set(tag.Symbol, "BTC-PYUSD")
	m.Set(tag.Side, string(enum.Side_BUY))
	m.SetDecimal(tag.OrderQty, decimal.RequireFromString("0.25"))
	m.SetDecimal(tag.Price, decimal.RequireFromString("10002.5"))
	m.Set(tag.TimeInForce, string(enum.TimeInForce_GOOD_TILL_CANCEL))
	return m
}

func TestRoundTrip(t *testing.T) {

	m := testMessage()
	b := Encode(m)

	decoded, n, err := Decode(b)
	assert.Nil(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, m, decoded)

}

func TestDecodeTruncated(t *testing.T) {

	b := Encode(testMessage())

	for _, cut := range []int{0, 1, 5, 20, len(b) - 1} {
		decoded, n, err := Decode(b[:cut])
		assert.Nil(t, decoded)
		assert.Equal(t, 0, n, "nothing consumed at cut %d", cut)
		assert.ErrorIs(t, err, ErrTruncatedMessage)
	}

	//
	// The remainder of the stream completes the frame.
	//
	decoded, n, err := Decode(b)
	assert.Nil(t, err)
	assert.Equal(t, len(b), n)
	assert.NotNil(t, decoded)

}

func TestDecodeBadChecksum(t *testing.T) {

	b := Encode(testMessage())
	b[len(b)-2]++ // last checksum digit

	decoded, n, err := Decode(b)
	assert.Nil(t, decoded)
	assert.Equal(t, len(b), n, "the bad frame is consumed")
	assert.ErrorIs(t, err, ErrMalformedFrame)

}

func TestDecodeCorruptBody(t *testing.T) {

	b := Encode(testMessage())
	b[30] ^= 0x20

	_, n, err := Decode(b)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, len(b), n)

}

func TestDecodeUnknownMessageType(t *testing.T) {

	m := testMessage()
	m.MsgType = enum.MsgType_QUOTE_REQUEST

	decoded, n, err := Decode(Encode(m))
	assert.Nil(t, decoded)
	assert.Positive(t, n, "the frame is consumed so the stream continues")
	assert.ErrorIs(t, err, ErrUnknownMessageType)

}

func TestDecodeResync(t *testing.T) {

	//
	// Garbage before a good frame: the first Decode consumes only the
	// garbage, the second decodes the frame.
	//
	good := Encode(testMessage())
	stream := append([]byte("noise8=FIX.4.2junk"), good...)

	decoded, n, err := Decode(stream)
	assert.Nil(t, decoded)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Positive(t, n)
	assert.LessOrEqual(t, n, len(stream)-len(good))

	stream = stream[n:]
	for !bytes.HasPrefix(stream, []byte("8=FIX.4.4")) {
		_, n, err = Decode(stream)
		assert.ErrorIs(t, err, ErrMalformedFrame)
		assert.Positive(t, n)
		stream = stream[n:]
	}

	decoded, n, err = Decode(stream)
	assert.Nil(t, err)
	assert.Equal(t, len(good), n)
	assert.Equal(t, enum.MsgType_ORDER_SINGLE, decoded.MsgType)

}

func TestTwoFramesInOneBuffer(t *testing.T) {

	first := testMessage()
	second := testMessage()
	second.MsgSeqNum = 8
	second.Set(tag.ClOrdID, "1730817000-deadbeef-2")

	stream := append(Encode(first), Encode(second)...)

	decoded, n, err := Decode(stream)
	assert.Nil(t, err)
	assert.Equal(t, 7, decoded.MsgSeqNum)

	decoded, _, err = Decode(stream[n:])
	assert.Nil(t, err)
	assert.Equal(t, 8, decoded.MsgSeqNum)

}

func TestPossDupHeader(t *testing.T) {

	m := testMessage()
	m.PossDup = true

	decoded, _, err := Decode(Encode(m))
	assert.Nil(t, err)
	assert.True(t, decoded.PossDup)

}
