package domain

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

var (
	// ErrOrderingViolation: event sequence below the last applied one. Drop the event.
	ErrOrderingViolation = errors.New("ordering violation")

	// ErrStaleData: no event yet, or the last observation is older than allowed.
	ErrStaleData = errors.New("stale market data")

	// ErrUnsafeRegime: execution attempted outside the CanExecute contract.
	ErrUnsafeRegime = errors.New("unsafe market regime")

	// ErrValidation: malformed value rejected at construction.
	ErrValidation = errors.New("validation failed")

	// ErrMarketMismatch is returned when an event is routed to another market's state.
	ErrMarketMismatch = errors.New("market id mismatch")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// OrderingError reports an event whose sequence is below the last applied one.
type OrderingError struct {
	MarketID MarketID
	Seq      int64
	LastSeq  int64
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("ordering violation: market=%s seq=%d < last_seq=%d", e.MarketID, e.Seq, e.LastSeq)
}

func (e *OrderingError) Unwrap() error     { return ErrOrderingViolation }
func (e *OrderingError) IsRetriable() bool { return false }

// StaleDataError reports missing or outdated market data.
type StaleDataError struct {
	MarketID MarketID
	NoData   bool
	Age      time.Duration
	MaxAge   time.Duration
}

func (e *StaleDataError) Error() string {
	if e.NoData {
		return "stale market data: market=" + string(e.MarketID) + " no events yet"
	}
	return fmt.Sprintf("stale market data: market=%s age=%s max_age=%s", e.MarketID, e.Age, e.MaxAge)
}

func (e *StaleDataError) Unwrap() error     { return ErrStaleData }
func (e *StaleDataError) IsRetriable() bool { return false }

// UnsafeRegimeError reports an execution attempt the regime does not allow.
type UnsafeRegimeError struct {
	MarketID MarketID
	Regime   Regime
	Cooldown bool
}

func (e *UnsafeRegimeError) Error() string {
	if e.Cooldown {
		return "unsafe market regime: market=" + string(e.MarketID) + " cooling down after reopen"
	}
	return "unsafe market regime: market=" + string(e.MarketID) + " regime=" + e.Regime.String()
}

func (e *UnsafeRegimeError) Unwrap() error     { return ErrUnsafeRegime }
func (e *UnsafeRegimeError) IsRetriable() bool { return false }

// ValidationError reports a malformed value at a construction boundary.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, value, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + " " + strconv.Quote(e.Value) + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error     { return ErrValidation }
func (e *ValidationError) IsRetriable() bool { return false }

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "poll")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
