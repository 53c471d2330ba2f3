package env

import (
	"time"
)

// DefaultHeartBtInt is the heartbeat interval when a session does not
// configure one.
var DefaultHeartBtInt = 30 * time.Second

// LogonTimeout is the maximum wait for the counterparty Logon reply.
var LogonTimeout = 10 * time.Second

// LogoutTimeout is the maximum wait for the counterparty Logout reply during
// a graceful shutdown.
var LogoutTimeout = 5 * time.Second

// MalformedFrameLimit is the count of consecutive undecodable inbound frames
// after which a session is torn down.
var MalformedFrameLimit = 3

// ReconnectDelay is the pause before redialling a session that went down,
// when the recovery policy allows reconnection.
var ReconnectDelay = 5 * time.Second

// DefaultDecimalPlaces is the default precision when calculating with
// [decimal.Decimal].
var DefaultDecimalPlaces int32 = 8
