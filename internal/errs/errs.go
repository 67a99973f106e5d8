// Package errs defines the typed error values returned across subsystem
// boundaries. Callers are expected to use errors.As/errors.Is rather than
// string matching.
package errs

import "fmt"

// FetchFailureError indicates a data fetch from an exchange failed for the
// named data kind (e.g. "klines", "ticker_24h", "price").
type FetchFailureError struct {
	Kind   string
	Symbol string
	Cause  error
}

func (e *FetchFailureError) Error() string {
	return fmt.Sprintf("fetch failure: %s for %s: %v", e.Kind, e.Symbol, e.Cause)
}

func (e *FetchFailureError) Unwrap() error { return e.Cause }

// FetchFailure constructs a FetchFailureError.
func FetchFailure(kind, symbol string, cause error) *FetchFailureError {
	return &FetchFailureError{Kind: kind, Symbol: symbol, Cause: cause}
}

// InsufficientDataError indicates fewer bars were available than an
// indicator or regime detector requires to produce a result.
type InsufficientDataError struct {
	Symbol   string
	Have     int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d, need %d", e.Symbol, e.Have, e.Required)
}

// InsufficientData constructs an InsufficientDataError.
func InsufficientData(symbol string, have, required int) *InsufficientDataError {
	return &InsufficientDataError{Symbol: symbol, Have: have, Required: required}
}

// WorkerTimeoutError indicates a queued indicator task did not complete
// within its allotted worker timeout.
type WorkerTimeoutError struct {
	Symbol string
}

func (e *WorkerTimeoutError) Error() string {
	return fmt.Sprintf("worker timeout computing indicators for %s", e.Symbol)
}

// WorkerTimeout constructs a WorkerTimeoutError.
func WorkerTimeout(symbol string) *WorkerTimeoutError {
	return &WorkerTimeoutError{Symbol: symbol}
}

// OverloadedError indicates the indicator engine's queue was full and the
// task was rejected rather than blocking.
type OverloadedError struct {
	QueueDepth int
}

func (e *OverloadedError) Error() string {
	return fmt.Sprintf("indicator engine overloaded: queue depth %d", e.QueueDepth)
}

// Overloaded constructs an OverloadedError.
func Overloaded(queueDepth int) *OverloadedError {
	return &OverloadedError{QueueDepth: queueDepth}
}

// CircuitOpenError indicates a call was rejected because a circuit breaker
// (orchestrator API breaker or risk trading breaker) is open.
type CircuitOpenError struct {
	Breaker string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open: %s", e.Breaker)
}

// CircuitOpen constructs a CircuitOpenError.
func CircuitOpen(breaker string) *CircuitOpenError {
	return &CircuitOpenError{Breaker: breaker}
}

// NoEligibleExchangeError indicates the order router could not find an
// exchange clearing the minimum confidence threshold.
type NoEligibleExchangeError struct {
	Symbol string
}

func (e *NoEligibleExchangeError) Error() string {
	return fmt.Sprintf("no eligible exchange for %s", e.Symbol)
}

// NoEligibleExchange constructs a NoEligibleExchangeError.
func NoEligibleExchange(symbol string) *NoEligibleExchangeError {
	return &NoEligibleExchangeError{Symbol: symbol}
}

// RiskRejectedError indicates the risk manager declined to admit an order,
// carrying the specific limit that was violated.
type RiskRejectedError struct {
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return fmt.Sprintf("risk rejected: %s", e.Reason)
}

// RiskRejected constructs a RiskRejectedError.
func RiskRejected(reason string) *RiskRejectedError {
	return &RiskRejectedError{Reason: reason}
}

// InvalidOrderError indicates an order request failed basic validation
// before ever reaching risk or routing.
type InvalidOrderError struct {
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %s", e.Reason)
}

// InvalidOrder constructs an InvalidOrderError.
func InvalidOrder(reason string) *InvalidOrderError {
	return &InvalidOrderError{Reason: reason}
}
