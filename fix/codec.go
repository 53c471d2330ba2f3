package fix

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
)

// SOH is the FIX field delimiter.
const SOH = '\x01'

const checksumLen = len("10=000") + 1

// Encode returns the wire frame for the message: header in canonical order,
// body in the order given, then CheckSum. The MsgSeqNum, comp IDs and
// SendingTime must already be stamped by the session.
func Encode(m *Message) []byte {

	var body bytes.Buffer
	writeField(&body, tag.MsgType, string(m.MsgType))
	writeField(&body, tag.SenderCompID, m.SenderCompID)
	writeField(&body, tag.TargetCompID, m.TargetCompID)
	writeField(&body, tag.MsgSeqNum, strconv.Itoa(m.MsgSeqNum))
	if m.PossDup {
		writeField(&body, tag.PossDupFlag, "Y")
	}
	writeField(&body, tag.SendingTime, m.SendingTime.UTC().Format(UTCTimestamp))
	for _, f := range m.Body {
		writeField(&body, f.Tag, f.Value)
	}

	var frame bytes.Buffer
	writeField(&frame, tag.BeginString, m.BeginString)
	writeField(&frame, tag.BodyLength, strconv.Itoa(body.Len()))
	frame.Write(body.Bytes())

	var sum int
	for _, b := range frame.Bytes() {
		sum += int(b)
	}
	writeField(&frame, tag.CheckSum, fmt.Sprintf("%03d", sum%256))

	return frame.Bytes()
}

func writeField(buf *bytes.Buffer, t quickfix.Tag, value string) {
	buf.WriteString(strconv.Itoa(int(t)))
	buf.WriteByte('=')
	buf.WriteString(value)
	buf.WriteByte(SOH)
}

// Decode parses the first complete frame in b. It returns the number of bytes
// consumed, which the caller must discard from its buffer whether or not the
// frame decoded: on [ErrMalformedFrame] or [ErrUnknownMessageType] the
// consumed bytes skip the bad frame so the caller can continue; on
// [ErrTruncatedMessage] nothing is consumed and the caller must supply more
// bytes.
func Decode(b []byte) (*Message, int, error) {

	if len(b) == 0 {
		return nil, 0, ErrTruncatedMessage
	}
	if !bytes.HasPrefix(b, []byte("8=")) {
		return nil, resync(b), ErrMalformedFrame
	}

	//
	// Frame: locate BodyLength, then the checksum trailer.
	//
	one := bytes.IndexByte(b, SOH)
	if one < 0 {
		return nil, 0, ErrTruncatedMessage
	}
	rest := b[one+1:]
	if !bytes.HasPrefix(rest, []byte("9=")) {
		return nil, resync(b), ErrMalformedFrame
	}
	two := bytes.IndexByte(rest, SOH)
	if two < 0 {
		return nil, 0, ErrTruncatedMessage
	}
	bodyLen, err := strconv.Atoi(string(rest[2:two]))
	if err != nil || bodyLen < 0 {
		return nil, resync(b), ErrMalformedFrame
	}

	bodyStart := one + 1 + two + 1
	total := bodyStart + bodyLen + checksumLen
	if len(b) < total {
		return nil, 0, ErrTruncatedMessage
	}

	trailer := b[bodyStart+bodyLen : total]
	if !bytes.HasPrefix(trailer, []byte("10=")) || trailer[checksumLen-1] != SOH {
		return nil, resync(b), ErrMalformedFrame
	}
	declared, err := strconv.Atoi(string(trailer[3 : checksumLen-1]))
	if err != nil {
		return nil, resync(b), ErrMalformedFrame
	}
	var sum int
	for _, c := range b[:bodyStart+bodyLen] {
		sum += int(c)
	}
	if sum%256 != declared {
		return nil, total, ErrMalformedFrame
	}

	//
	// Fields.
	//
	m := &Message{BeginString: string(b[2:one])}
	for _, raw := range bytes.Split(b[bodyStart:bodyStart+bodyLen], []byte{SOH}) {
		if len(raw) == 0 {
			continue
		}
		eq := bytes.IndexByte(raw, '=')
		if eq < 1 {
			return nil, total, ErrMalformedFrame
		}
		n, err := strconv.Atoi(string(raw[:eq]))
		if err != nil {
			return nil, total, ErrMalformedFrame
		}
		t, value := quickfix.Tag(n), string(raw[eq+1:])
		if !headerTag(t) {
			m.Body = append(m.Body, Field{Tag: t, Value: value})
			continue
		}
		switch t {
		case tag.MsgType:
			m.MsgType = enum.MsgType(value)
		case tag.SenderCompID:
			m.SenderCompID = value
		case tag.TargetCompID:
			m.TargetCompID = value
		case tag.MsgSeqNum:
			if m.MsgSeqNum, err = strconv.Atoi(value); err != nil {
				return nil, total, ErrMalformedFrame
			}
		case tag.PossDupFlag:
			m.PossDup = value == "Y"
		case tag.SendingTime:
			ts, ok := parseUTCTimestamp(value)
			if !ok {
				return nil, total, ErrMalformedFrame
			}
			m.SendingTime = ts
		}
	}

	if !knownMsgTypes[m.MsgType] {
		return nil, total, ErrUnknownMessageType
	}

	return m, total, nil
}

// resync returns the count of bytes up to the next candidate frame start, so
// a malformed frame does not poison the rest of the stream.
func resync(b []byte) int {
	if i := bytes.Index(b[1:], []byte("8=")); i >= 0 {
		return i + 1
	}
	return len(b)
}
