package order

import (
	"errors"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
	"github.com/true-markets/fixsim/fix"
)

// ErrMissingField means a report lacked a field needed to route it.
var ErrMissingField = errors.New("order: report missing a required field")

// A Report is the decoded content of an ExecutionReport.
type Report struct {
	ExecType     enum.ExecType
	OrdStatus    enum.OrdStatus
	ClOrdID      string
	OrigClOrdID  string
	OrderID      string
	LastQty      decimal.Decimal
	LastPx       decimal.Decimal
	CumQty       decimal.Decimal
	LeavesQty    decimal.Decimal
	AvgPx        decimal.Decimal
	HasCumQty    bool
	HasLeavesQty bool
	TransactTime time.Time
	Text         string
}

// ReportFromMessage returns a [*Report] decoded from an ExecutionReport, or
// [ErrMissingField] if ExecType or ClOrdID is absent. CumQty and LeavesQty
// are optional: when absent the book accumulates from LastQty instead.
func ReportFromMessage(m *fix.Message) (*Report, error) {
	execType, ok := m.Get(tag.ExecType)
	if !ok {
		return nil, ErrMissingField
	}
	clOrdID, ok := m.Get(tag.ClOrdID)
	if !ok {
		return nil, ErrMissingField
	}
	report := &Report{
		ExecType: enum.ExecType(execType),
		ClOrdID:  clOrdID,
	}
	if v, ok := m.Get(tag.OrdStatus); ok {
		report.OrdStatus = enum.OrdStatus(v)
	}
	report.OrigClOrdID, _ = m.Get(tag.OrigClOrdID)
	report.OrderID, _ = m.Get(tag.OrderID)
	report.LastQty, _ = m.GetDecimal(tag.LastQty)
	report.LastPx, _ = m.GetDecimal(tag.LastPx)
	report.CumQty, report.HasCumQty = m.GetDecimal(tag.CumQty)
	report.LeavesQty, report.HasLeavesQty = m.GetDecimal(tag.LeavesQty)
	report.AvgPx, _ = m.GetDecimal(tag.AvgPx)
	report.TransactTime, _ = m.GetTime(tag.TransactTime)
	report.Text, _ = m.Get(tag.Text)
	return report, nil
}

// A CancelReject is the decoded content of an OrderCancelReject.
type CancelReject struct {
	ClOrdID     string
	OrigClOrdID string
	ResponseTo  enum.CxlRejResponseTo
	Reason      string
}

// CancelRejectFromMessage returns a [*CancelReject] decoded from an
// OrderCancelReject, or [ErrMissingField] if neither ClOrdID nor OrigClOrdID
// is present.
func CancelRejectFromMessage(m *fix.Message) (*CancelReject, error) {
	reject := &CancelReject{}
	reject.ClOrdID, _ = m.Get(tag.ClOrdID)
	reject.OrigClOrdID, _ = m.Get(tag.OrigClOrdID)
	if reject.ClOrdID == "" && reject.OrigClOrdID == "" {
		return nil, ErrMissingField
	}
	if v, ok := m.Get(tag.CxlRejResponseTo); ok {
		reject.ResponseTo = enum.CxlRejResponseTo(v)
	}
	reject.Reason, _ = m.Get(tag.Text)
	return reject, nil
}
