package fees

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModeFixed        Mode = "fixed"
	ModePercent      Mode = "percent"
	ModeFixedPercent Mode = "fixed+percent"
)

var hundred = decimal.NewFromInt(100)

// ParseMode accepts the canonical names and the legacy ones stored on older merchants.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "fixo":
		return ModeFixed, nil
	case "percent", "percentual", "percentage":
		return ModePercent, nil
	case "fixed+percent", "fixo+percentual", "combined", "both":
		return ModeFixedPercent, nil
	}
	return "", fmt.Errorf("unknown fee mode %q", s)
}

// Config is one direction (cash-in or cash-out) of a merchant's fee setup.
// Percent is expressed in percentage points: 5 means 5%.
type Config struct {
	Enabled bool            `json:"enabled"`
	Mode    Mode            `json:"mode"`
	Fixed   decimal.Decimal `json:"fixed"`
	Percent decimal.Decimal `json:"percent"`
}

// Compute returns the fee for gross, never negative, rounded half-up to cents.
func Compute(cfg Config, gross decimal.Decimal) decimal.Decimal {
	if !cfg.Enabled || !gross.IsPositive() {
		return decimal.Zero
	}
	fee := decimal.Zero
	switch cfg.Mode {
	case ModeFixed:
		fee = cfg.Fixed
	case ModePercent:
		fee = gross.Mul(cfg.Percent).Div(hundred)
	case ModeFixedPercent:
		fee = cfg.Fixed.Add(gross.Mul(cfg.Percent).Div(hundred))
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee.Round(2)
}

// CashIn clamps the fee to [0, gross].
func CashIn(cfg Config, gross decimal.Decimal) decimal.Decimal {
	fee := Compute(cfg, gross)
	if fee.GreaterThan(gross) {
		return gross.Round(2)
	}
	return fee
}

type Split struct {
	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal
}

// CashOut splits a requested withdrawal amount into what is debited and what is paid out.
// Net may come out zero or negative; callers must reject those.
func CashOut(cfg Config, gross decimal.Decimal) Split {
	gross = gross.Round(2)
	fee := Compute(cfg, gross)
	return Split{Gross: gross, Fee: fee, Net: gross.Sub(fee)}
}
