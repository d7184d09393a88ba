package charge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"edunexia/internal/common/money"
)

// BillingMethod is a payment rail accepted for a charge.
type BillingMethod string

const (
	BoletoPix  BillingMethod = "BOLETO_PIX"
	CreditCard BillingMethod = "CREDIT_CARD"
)

// Valid reports whether m is a known rail.
func (m BillingMethod) Valid() bool {
	return m == BoletoPix || m == CreditCard
}

// FeeSchedule maps each rail to the fraction the gateway keeps (0.04 = 4%).
type FeeSchedule map[BillingMethod]decimal.Decimal

// DefaultFeeSchedule returns the gateway's published rates.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		BoletoPix:  decimal.RequireFromString("0.04"),
		CreditCard: decimal.RequireFromString("0.05"),
	}
}

// NetValue is what the institution keeps from gross on method, rounded to the cent.
func (f FeeSchedule) NetValue(gross money.Money, method BillingMethod) (money.Money, error) {
	rate, ok := f[method]
	if !ok {
		return money.Money{}, invalid("billingMethods", "no fee rate configured for %s", method)
	}
	return gross.MulRate(decimal.NewFromInt(1).Sub(rate)), nil
}

// Validate checks every rate lies in [0, 1).
func (f FeeSchedule) Validate() error {
	one := decimal.NewFromInt(1)
	for method, rate := range f {
		if !method.Valid() {
			return fmt.Errorf("fee schedule: unknown billing method %q", method)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			return fmt.Errorf("fee schedule: rate for %s must be in [0, 1), got %s", method, rate)
		}
	}
	return nil
}

// Decode parses "BOLETO_PIX:0.04,CREDIT_CARD:0.05". It satisfies
// envconfig.Decoder so the schedule can come straight from the environment.
func (f *FeeSchedule) Decode(value string) error {
	schedule := make(FeeSchedule)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rateStr, ok := strings.Cut(entry, ":")
		if !ok {
			return fmt.Errorf("fee schedule entry %q: expected METHOD:RATE", entry)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(rateStr))
		if err != nil {
			return fmt.Errorf("fee schedule entry %q: %w", entry, err)
		}
		schedule[BillingMethod(strings.ToUpper(strings.TrimSpace(name)))] = rate
	}
	if err := schedule.Validate(); err != nil {
		return err
	}
	*f = schedule
	return nil
}

// String renders the schedule in Decode's format, methods sorted.
func (f FeeSchedule) String() string {
	methods := make([]string, 0, len(f))
	for m := range f {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)

	parts := make([]string, 0, len(methods))
	for _, m := range methods {
		parts = append(parts, m+":"+f[BillingMethod(m)].String())
	}
	return strings.Join(parts, ",")
}
