package session

import "errors"

// ErrSessionNotReady is returned when an application message is submitted to
// a session that is not [Authenticated].
var ErrSessionNotReady = errors.New("session: not ready")

// State of a logical FIX session, independent of the transport connection.
type State uint8

// Session states. [Recovering] is entered from [Authenticated] on gap
// detection and left once the resend satisfies the gap.
const (
	Disconnected State = iota
	LogonSent
	Authenticated
	Recovering
	PendingLogout
	LoggedOut
)

// String implements [fmt.Stringer].
func (x State) String() string {
	switch x {
	case Disconnected:
		return "Disconnected"
	case LogonSent:
		return "LogonSent"
	case Authenticated:
		return "Authenticated"
	case Recovering:
		return "Recovering"
	case PendingLogout:
		return "PendingLogout"
	case LoggedOut:
		return "LoggedOut"
	}
	return "Unknown"
}

// DownReason reported once through [Events.OnDown] when a session stops.
type DownReason uint8

// Down reasons. Only [ReasonLogout] is a graceful stop; all others require
// an explicit re-logon by the caller.
const (
	ReasonLogonRejected DownReason = iota
	ReasonHeartbeatTimeout
	ReasonTransportError
	ReasonTooManyMalformed
	ReasonLogout
)

// String implements [fmt.Stringer].
func (x DownReason) String() string {
	switch x {
	case ReasonLogonRejected:
		return "LogonRejected"
	case ReasonHeartbeatTimeout:
		return "HeartbeatTimeout"
	case ReasonTransportError:
		return "TransportError"
	case ReasonTooManyMalformed:
		return "TooManyMalformed"
	case ReasonLogout:
		return "Logout"
	}
	return "Unknown"
}
