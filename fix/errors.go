package fix

import "errors"

var (
	// ErrTruncatedMessage means the byte stream ends before a complete frame
	// is available. The caller must buffer and retry once more bytes arrive.
	ErrTruncatedMessage = errors.New("fix: truncated message")
	// ErrMalformedFrame means the BodyLength or CheckSum did not verify, or
	// the frame structure is broken. The frame must be discarded.
	ErrMalformedFrame = errors.New("fix: malformed frame")
	// ErrUnknownMessageType means the frame verified but carries a message
	// type this engine does not recognise.
	ErrUnknownMessageType = errors.New("fix: unknown message type")
)
