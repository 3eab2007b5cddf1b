// Package format renders amounts for summaries and CLI output.
package format

import (
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var (
	crore = decimal.NewFromInt(10_000_000)
	lakh  = decimal.NewFromInt(100_000)
)

// Rupees formats an amount in Indian style: crores as "₹1.23 Cr", lakhs as
// "₹4.56 L", anything smaller as "₹12,345.67". Negative amounts keep the sign
// in front of the rupee symbol.
func Rupees(amount float64) string {
	d := decimal.NewFromFloat(amount)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	switch {
	case d.GreaterThanOrEqual(crore):
		return sign + "₹" + d.Div(crore).StringFixed(2) + " Cr"
	case d.GreaterThanOrEqual(lakh):
		return sign + "₹" + d.Div(lakh).StringFixed(2) + " L"
	}

	paise := d.Round(2).Shift(2).IntPart()
	if sign != "" {
		paise = -paise
	}
	return money.New(paise, money.INR).Display()
}

// group inserts thousands separators into a string of digits
func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Percent formats a change percentage with an explicit sign, e.g. "+5.26%"
func Percent(pct float64) string {
	d := decimal.NewFromFloat(pct).Round(2)
	if d.IsPositive() {
		return "+" + d.StringFixed(2) + "%"
	}
	if d.IsZero() {
		return "0.00%"
	}
	return d.StringFixed(2) + "%"
}

// Change formats an absolute change in rupees with an explicit sign
func Change(amount float64) string {
	if decimal.NewFromFloat(amount).Round(2).IsPositive() {
		return "+" + Rupees(amount)
	}
	return Rupees(amount)
}

// Volume formats a share count with thousands separators. Zero means unknown.
func Volume(v int64) string {
	if v <= 0 {
		return "-"
	}
	return group(strconv.FormatInt(v, 10))
}
