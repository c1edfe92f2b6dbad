// Package xerrors defines the error kinds shared across the engine core.
package xerrors

import "fmt"

// Kind classifies an engine error the way §7 of the design groups failures:
// by what went wrong, not which package raised it.
type Kind string

// Error kinds produced by the core.
const (
	KindFormat            Kind = "format"
	KindInvalidOperation   Kind = "invalid_operation"
	KindOutOfRange         Kind = "out_of_range"
	KindIncompatibleType   Kind = "incompatible_type"
	KindBrokerageRefused   Kind = "brokerage_refused"
	KindBrokerageFailed    Kind = "brokerage_failed"
	KindBuyingPower        Kind = "buying_power"
	KindWarming            Kind = "warming"
	KindProcessingError    Kind = "processing_error"
)

// Error is a typed engine error carrying a Kind for errors.As-style dispatch.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Sentinel kind markers for errors.Is(err, xerrors.Format) style checks.
var (
	Format            = &Error{Kind: KindFormat}
	InvalidOperation  = &Error{Kind: KindInvalidOperation}
	OutOfRange        = &Error{Kind: KindOutOfRange}
	IncompatibleType  = &Error{Kind: KindIncompatibleType}
	BrokerageRefused  = &Error{Kind: KindBrokerageRefused}
	BrokerageFailed   = &Error{Kind: KindBrokerageFailed}
	BuyingPower       = &Error{Kind: KindBuyingPower}
	Warming           = &Error{Kind: KindWarming}
	ProcessingError   = &Error{Kind: KindProcessingError}
)
