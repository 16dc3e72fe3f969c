package schema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderNotional(t *testing.T) {
	o := NewOrder("AAPL", decimal.NewFromInt(-100), decimal.NewFromInt(150), OrderTypeLimit, time.Now())
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.True(t, o.Notional().Equal(decimal.NewFromInt(-15000)))
	assert.True(t, o.Remaining().Equal(decimal.NewFromInt(-100)))
	assert.Nil(t, o.ExecutionPrice)
}

func TestRejectReasonViolation(t *testing.T) {
	testCases := []struct {
		reason    RejectReason
		violation bool
	}{
		{RejectReasonNone, false},
		{RejectReasonPositionLimitExceeded, true},
		{RejectReasonMarginExceeded, true},
		{RejectReasonDailyLossExceeded, true},
		{RejectReasonNoVenue, false},
		{RejectReasonNoFill, false},
		{RejectReasonTimeout, false},
		{RejectReasonCanceled, false},
	}

	for _, tc := range testCases {
		t.Run(tc.reason.String(), func(t *testing.T) {
			assert.Equal(t, tc.violation, tc.reason.Violation())
		})
	}
}

func TestParseOrderType(t *testing.T) {
	assert.Equal(t, OrderTypeMarket, ParseOrderType("market"))
	assert.Equal(t, OrderTypeLimit, ParseOrderType("LIMIT"))
	assert.Equal(t, OrderTypeStop, ParseOrderType("Stop"))
	assert.Equal(t, OrderTypeUnknown, ParseOrderType("iceberg"))
	assert.True(t, OrderStatusExecuted.Terminal())
	assert.False(t, OrderStatusPartiallyFilled.Terminal())
}
