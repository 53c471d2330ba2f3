package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Classification of an inbound sequence number against the expected one.
type Classification int

// Classification values.
const (
	InOrder Classification = iota
	Gap
	Duplicate
)

// Keys for the sequence checkpoint hash. The prefix names the Redis data
// structure, to assist when working with the Redis command line. The colon
// separator is a Redis idiom.
const (
	SequenceHashPrefix  = "hash:sequence:"
	sequenceNextField   = "nextOutbound"
	sequenceExpectField = "expectedInbound"
)

// A SequenceStore owns the outbound counter and the expected inbound
// sequence number for one session identity. When given a Redis client it
// checkpoints both after every change, so a restarted process resumes the
// same session without PossDup ambiguity.
type SequenceStore struct {
	lock     sync.Mutex
	next     int
	expected int
	rdb      *redis.Client
	key      string
}

// NewSequenceStore returns a [*SequenceStore] for the session identity,
// recovered from Redis if a checkpoint exists there. A nil client means
// in-memory only.
func NewSequenceStore(ctx context.Context, identity string, rdb *redis.Client) (*SequenceStore, error) {

	x := &SequenceStore{next: 1, expected: 1, rdb: rdb, key: SequenceHashPrefix + identity}
	if rdb == nil {
		return x, nil
	}

	fields, err := rdb.HGetAll(ctx, x.key).Result()
	if err != nil {
		return nil, err
	}
	if v, ok := fields[sequenceNextField]; ok {
		if x.next, err = strconv.Atoi(v); err != nil {
			return nil, err
		}
	}
	if v, ok := fields[sequenceExpectField]; ok {
		if x.expected, err = strconv.Atoi(v); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// NextOutbound atomically allocates the sequence number to stamp on the next
// outbound message.
func (x *SequenceStore) NextOutbound() int {
	x.lock.Lock()
	defer x.lock.Unlock()
	n := x.next
	x.next++
	x.checkpoint()
	return n
}

// PeekOutbound returns the number [SequenceStore.NextOutbound] would
// allocate, without allocating it. Used when gap filling.
func (x *SequenceStore) PeekOutbound() int {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.next
}

// ExpectedInbound returns the next inbound sequence number this session will
// accept.
func (x *SequenceStore) ExpectedInbound() int {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.expected
}

// ObserveInbound classifies the sequence number. [InOrder] advances the
// expectation by exactly one; [Gap] and [Duplicate] leave it unchanged.
func (x *SequenceStore) ObserveInbound(seq int) Classification {
	x.lock.Lock()
	defer x.lock.Unlock()
	switch {
	case seq == x.expected:
		x.expected++
		x.checkpoint()
		return InOrder
	case seq > x.expected:
		return Gap
	default:
		return Duplicate
	}
}

// SetExpected jumps the inbound expectation, for SequenceReset handling.
func (x *SequenceStore) SetExpected(seq int) {
	x.lock.Lock()
	defer x.lock.Unlock()
	if seq <= x.expected {
		return
	}
	x.expected = seq
	x.checkpoint()
}

// Reset both counters to 1, for a reset-flag logon only.
func (x *SequenceStore) Reset() {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.next = 1
	x.expected = 1
	x.checkpoint()
}

func (x *SequenceStore) checkpoint() {
	if x.rdb == nil {
		return
	}
	//
	// Background context: a checkpoint is never worth blocking the session
	// for, and errors only cost a recoverable restart.
	//
	x.rdb.HSet(
		context.Background(),
		x.key,
		sequenceNextField,
		strconv.Itoa(x.next),
		sequenceExpectField,
		strconv.Itoa(x.expected),
	)
}
