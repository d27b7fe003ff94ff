// Package pricing computes parking charges from a reservation's time span
// and the hourly rate of its lot.  Money is handled in integer cents so
// rounding to two decimal places is exact.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"
)

// MinimumBilled is the shortest chargeable stay.  Anything shorter is
// billed as one full hour.
const MinimumBilled = time.Hour

const millisPerHour = int64(time.Hour / time.Millisecond)

// MaxRateCents is the highest hourly rate a lot may charge (1,000,000.00).
const MaxRateCents = int64(100_000_000)

var (
	// ErrInvalidTimeRange is returned when the end of a stay precedes its start.
	ErrInvalidTimeRange = errors.New("end time before start time")
	// ErrInvalidRate is returned for hourly rates outside [0, MaxRateCents].
	ErrInvalidRate = errors.New("hourly rate out of range")
	// ErrCostOverflow is returned when a charge does not fit in int64 cents.
	ErrCostOverflow = errors.New("cost out of range")
)

// Charge is the outcome of pricing a single stay.
type Charge struct {
	Elapsed      time.Duration // actual time between start and end
	BilledMillis int64         // chargeable duration, never below one hour
	BilledHours  float64       // BilledMillis expressed in hours, unrounded
	CostCents    int64         // BilledHours * rate, rounded half-up to the cent
}

// Compute prices a stay from start to end at rateCents per hour.
// Elapsed time is measured with millisecond resolution.
func Compute(start, end time.Time, rateCents int64) (Charge, error) {
	if end.Before(start) {
		return Charge{}, fmt.Errorf("pricing %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), ErrInvalidTimeRange)
	}
	if rateCents < 0 {
		return Charge{}, ErrInvalidRate
	}
	elapsed := end.Sub(start)
	billed := elapsed.Milliseconds()
	if billed < millisPerHour {
		billed = millisPerHour
	}
	cost, ok := mulDivRoundHalfUp(billed, rateCents, millisPerHour)
	if !ok {
		return Charge{}, fmt.Errorf("pricing %dms at %d: %w", billed, rateCents, ErrCostOverflow)
	}
	return Charge{
		Elapsed:      elapsed,
		BilledMillis: billed,
		BilledHours:  float64(billed) / float64(millisPerHour),
		CostCents:    cost,
	}, nil
}

// mulDivRoundHalfUp returns a*b/den rounded half up for non-negative a, b
// and positive den.  The product is kept in 128 bits; ok is false when
// the result does not fit in int64.
func mulDivRoundHalfUp(a, b, den int64) (int64, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	// (2ab + den) / 2den
	hi = hi<<1 | lo>>63
	lo <<= 1
	lo, carry := bits.Add64(lo, uint64(den), 0)
	hi += carry
	d := 2 * uint64(den)
	if hi >= d {
		return 0, false
	}
	q, _ := bits.Div64(hi, lo, d)
	if q > math.MaxInt64 {
		return 0, false
	}
	return int64(q), true
}

// FormatCents renders an amount of cents as a decimal string with two
// fractional digits, e.g. 12345 -> "123.45".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// CentsToFloat converts cents to a float amount for JSON responses.
func CentsToFloat(cents int64) float64 {
	return float64(cents) / 100.0
}

// FloatToCents converts a decimal hourly rate to cents, rounding half-up.
// Amounts outside [0, MaxRateCents] cents, and NaN, are rejected with
// ErrInvalidRate.
func FloatToCents(amount float64) (int64, error) {
	if !(amount >= 0) || amount*100 > float64(MaxRateCents) {
		return 0, ErrInvalidRate
	}
	return int64(amount*100 + 0.5), nil
}
