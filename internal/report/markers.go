package report

// The session log is the only source of truth.
// Read it, never write it.
// A line we cannot parse is counted, not fatal.

import "strings"

// MarkerClass names a category of worker log line
type MarkerClass string

const (
	OpportunityDetected          MarkerClass = "opportunity-detected"
	ProfitEstimate               MarkerClass = "profit-estimate"
	ExecutionSuccess             MarkerClass = "execution-success"
	ExecutionSkippedUnprofitable MarkerClass = "execution-skipped-unprofitable"
	BundleAttempt                MarkerClass = "bundle-attempt"
	BundleSuccess                MarkerClass = "bundle-success"
	BundleFailure                MarkerClass = "bundle-failure"
	LowBalanceWarning            MarkerClass = "low-balance-warning"
	ConnectionError              MarkerClass = "connection-error"
	TransactionDetected          MarkerClass = "transaction-detected"
	ExecutionAttempt             MarkerClass = "execution-attempt"
	ExecutionFailure             MarkerClass = "execution-failure"
)

// Marker maps literal substrings to a class.
// Numeric markers carry a decimal token right after the pattern.
type Marker struct {
	Class    MarkerClass
	Patterns []string
	Numeric  bool
}

// Vocabulary is ordered by classification priority: the first marker whose
// pattern appears in a line decides its class. Matching is case-sensitive.
var Vocabulary = []Marker{
	{Class: OpportunityDetected, Patterns: []string{"OPPORTUNITY"}},
	{Class: ProfitEstimate, Patterns: []string{"Estimated profit potential:", "Final estimated profit potential:"}, Numeric: true},
	{Class: ExecutionSuccess, Patterns: []string{"Frontrun successful"}},
	{Class: ExecutionSkippedUnprofitable, Patterns: []string{"Skipping opportunity with no positive profit", "Skipping unprofitable"}},
	{Class: BundleAttempt, Patterns: []string{"Sending bundle via Jito"}},
	{Class: BundleSuccess, Patterns: []string{"Jito bundle sent successfully"}},
	{Class: BundleFailure, Patterns: []string{"Failed to send Jito bundle"}},
	{Class: LowBalanceWarning, Patterns: []string{"Balance too low"}, Numeric: true},
	{Class: ConnectionError, Patterns: []string{"WebSocket error"}},
	{Class: TransactionDetected, Patterns: []string{"Transaction detected:"}},
	{Class: ExecutionAttempt, Patterns: []string{"Frontrun executed for transaction"}},
	{Class: ExecutionFailure, Patterns: []string{"Frontrun failed for transaction"}},
}

// Classes returns every class in priority order
func Classes() []MarkerClass {
	classes := make([]MarkerClass, len(Vocabulary))
	for i, m := range Vocabulary {
		classes[i] = m.Class
	}
	return classes
}

// Classify returns the class of a line, if any
func Classify(line string) (MarkerClass, bool) {
	for _, m := range Vocabulary {
		if _, ok := m.match(line); ok {
			return m.Class, true
		}
	}
	return "", false
}

// match returns the text following the first pattern found in line
func (m Marker) match(line string) (string, bool) {
	for _, p := range m.Patterns {
		if i := strings.Index(line, p); i >= 0 {
			return line[i+len(p):], true
		}
	}
	return "", false
}

// Rate is a ratio between two class counts
type Rate struct {
	Name        string      `json:"name" yaml:"name"`
	Numerator   MarkerClass `json:"numerator" yaml:"numerator"`
	Denominator MarkerClass `json:"denominator" yaml:"denominator"`

	// Value is nil when the denominator count is zero
	Value *float64 `json:"value" yaml:"value"`
}

// RateDefs lists the derived rates in report order
var RateDefs = []Rate{
	{Name: "bundle_success_rate", Numerator: BundleSuccess, Denominator: BundleAttempt},
	{Name: "bundle_failure_rate", Numerator: BundleFailure, Denominator: BundleAttempt},
	{Name: "execution_success_rate", Numerator: ExecutionSuccess, Denominator: ExecutionAttempt},
	{Name: "execution_failure_rate", Numerator: ExecutionFailure, Denominator: ExecutionAttempt},
	{Name: "opportunity_execution_rate", Numerator: ExecutionAttempt, Denominator: OpportunityDetected},
	{Name: "opportunity_skip_rate", Numerator: ExecutionSkippedUnprofitable, Denominator: OpportunityDetected},
}
