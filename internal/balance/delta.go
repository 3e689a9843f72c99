package balance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Unit is the currency suffix printed next to balances
const Unit = "SOL"

// NotAvailable is printed wherever a balance or derived value is absent
const NotAvailable = "N/A"

var hundred = decimal.NewFromInt(100)

// Delta is the signed change between two balance snapshots
type Delta struct {
	Initial *decimal.Decimal `json:"initial,omitempty" yaml:"initial,omitempty"`
	Final   *decimal.Decimal `json:"final,omitempty" yaml:"final,omitempty"`
}

// Available reports whether both snapshots were taken
func (d Delta) Available() bool {
	return d.Initial != nil && d.Final != nil
}

// Change returns final - initial
func (d Delta) Change() (decimal.Decimal, bool) {
	if !d.Available() {
		return decimal.Zero, false
	}
	return d.Final.Sub(*d.Initial), true
}

// Percent returns the change relative to the initial balance.
// Unavailable when the initial balance is zero.
func (d Delta) Percent() (decimal.Decimal, bool) {
	change, ok := d.Change()
	if !ok || d.Initial.IsZero() {
		return decimal.Zero, false
	}
	return change.Div(*d.Initial).Mul(hundred), true
}

// String renders the delta as "+0.050000 SOL (+5.00%)"
func (d Delta) String() string {
	change, ok := d.Change()
	if !ok {
		return NotAvailable
	}
	pct := NotAvailable
	if p, ok := d.Percent(); ok {
		pct = signed(p, 2) + "%"
	}
	return fmt.Sprintf("%s %s (%s)", signed(change, 6), Unit, pct)
}

// FormatAmount renders an optional balance with six decimals
func FormatAmount(v *decimal.Decimal) string {
	if v == nil {
		return NotAvailable
	}
	return v.StringFixed(6) + " " + Unit
}

// signed takes the sign from the rounded value so "-0.000000" never appears
func signed(v decimal.Decimal, places int32) string {
	rounded := v.Round(places)
	s := rounded.StringFixed(places)
	if rounded.Sign() >= 0 {
		return "+" + s
	}
	return s
}
