package run

import (
	"context"

	"github.com/quickfixgo/tag"
	"github.com/redis/go-redis/v9"

	"github.com/true-markets/fixsim/fix"
)

// ReportsStreamPrefix names the Redis stream holding the execution reports
// for one session. The first part of the prefix is the type of Redis data
// structure, to assist when working with the Redis command line. The colon
// separator is a Redis idiom.
const ReportsStreamPrefix = "stream:reports:"

// MakeReportsStreamName is a convenience function.
func MakeReportsStreamName(sessionKey string) string {
	return ReportsStreamPrefix + sessionKey
}

// A Journal appends every inbound execution report to a per-session Redis
// stream, so fills survive a restart and can be audited offline.
type Journal struct {
	rdb *redis.Client
}

// NewJournal returns a [*Journal]. A nil client makes every write a no-op.
func NewJournal(rdb *redis.Client) *Journal {
	return &Journal{rdb: rdb}
}

// WriteReport appends the report. Errors are swallowed: the journal is an
// audit trail, not the order state of record.
func (x *Journal) WriteReport(ctx context.Context, sessionKey string, message *fix.Message) {

	if x.rdb == nil {
		return
	}

	clOrdID, _ := message.Get(tag.ClOrdID)
	execType, _ := message.Get(tag.ExecType)
	values := []any{
		"clOrdID", clOrdID,
		"execType", execType,
		"raw", string(fix.Encode(message)),
	}
	args := &redis.XAddArgs{
		Stream: MakeReportsStreamName(sessionKey),
		Values: values,
	}
	x.rdb.XAdd(ctx, args)
}
