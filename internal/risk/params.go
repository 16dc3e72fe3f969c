package risk

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"sor/pkg/exception"
)

// Parameters defines the session's risk limits. They are fixed once the
// manager is constructed.
type Parameters struct {
	MaxPositionSize     decimal.Decimal
	MaxDailyLoss        decimal.Decimal
	MarginRequirement   decimal.Decimal
	VolatilityThreshold decimal.Decimal
}

// Validate ensures every limit is non-negative.
func (p Parameters) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"maxPositionSize", p.MaxPositionSize},
		{"maxDailyLoss", p.MaxDailyLoss},
		{"marginRequirement", p.MarginRequirement},
		{"volatilityThreshold", p.VolatilityThreshold},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return errors.Wrapf(exception.ErrInvalidRiskParameters, "%s must be >= 0, got %s", f.name, f.value)
		}
	}
	return nil
}
