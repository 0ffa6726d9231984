// Package number holds decimal-exact helpers for the fixed-point values
// exchanged with SunSpec devices and limit authorities (value × 10^exponent).
package number

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var ErrEmpty = errors.New("empty list of values")

// WithPow10 returns value × 10^exp without binary floating point drift,
// so WithPow10(355, -2) is exactly 3.55.
func WithPow10(value float64, exp int32) float64 {
	if exp == 0 {
		return value
	}
	return decimal.NewFromFloat(value).Shift(exp).InexactFloat64()
}

// Sum adds the values in decimal space (0.1+0.2+0.3 == 0.6).
func Sum(values []float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}

func Average(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmpty
	}
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Div(decimal.NewFromInt(int64(len(values)))).InexactFloat64(), nil
}

// SumNullable returns nil when any reading is absent.
func SumNullable(values []*float64) *float64 {
	plain, ok := unwrap(values)
	if !ok {
		return nil
	}
	sum := Sum(plain)
	return &sum
}

// AverageNullable returns nil when any reading is absent or there are none.
func AverageNullable(values []*float64) *float64 {
	plain, ok := unwrap(values)
	if !ok {
		return nil
	}
	avg, err := Average(plain)
	if err != nil {
		return nil
	}
	return &avg
}

func unwrap(values []*float64) ([]float64, bool) {
	plain := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil {
			return nil, false
		}
		plain = append(plain, *v)
	}
	return plain, true
}

// BaseAndPow10 is a normalized fixed-point representation: Base × 10^Pow10.
type BaseAndPow10 struct {
	Base  int64
	Pow10 int32
}

// ToBaseAndPow10 strips trailing zeros into the exponent and fractional
// digits into a negative exponent: 5000 -> {5,3}, 5.1 -> {51,-1}.
func ToBaseAndPow10(value float64) BaseAndPow10 {
	d := decimal.NewFromFloat(value)
	if d.IsZero() {
		return BaseAndPow10{}
	}
	coef := d.Coefficient()
	exp := d.Exponent()
	ten := decimal.NewFromInt(10)
	c := decimal.NewFromBigInt(coef, 0)
	for !c.IsZero() && c.Mod(ten).IsZero() {
		c = c.Div(ten)
		exp++
	}
	return BaseAndPow10{Base: c.IntPart(), Pow10: exp}
}

// Round rounds half away from zero to the given number of decimal places.
func Round(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// Clamp limits value to [min, max]. NaN is returned as min.
func Clamp(value, min, max float64) float64 {
	if math.IsNaN(value) || value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ScaledPower is an active power expressed as Value × 10^Multiplier watts.
type ScaledPower struct {
	Value      int64 `json:"value"`
	Multiplier int32 `json:"multiplier"`
}

func (p ScaledPower) Watts() float64 {
	return decimal.New(p.Value, p.Multiplier).InexactFloat64()
}
