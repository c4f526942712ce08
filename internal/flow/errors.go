package flow

import "fmt"

// ErrorKind identifies a kind of error that can be used to define new errors
// via const SomeError = flow.ErrorKind("something").
type ErrorKind string

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

const (
	// ErrWrongChain is returned when the node is not running the regression
	// test chain.
	ErrWrongChain = ErrorKind("node is not on the regtest chain")
	// ErrUnexpectedOutputCount is returned when the payment transaction does
	// not have exactly a payment and a change output.
	ErrUnexpectedOutputCount = ErrorKind("unexpected number of transaction outputs")
	// ErrScriptDecode is returned when an output script does not resolve to a
	// single address.
	ErrScriptDecode = ErrorKind("output script does not decode to an address")
	// ErrChangeNotFound is returned when every output pays the recipient.
	ErrChangeNotFound = ErrorKind("change output not found")
	// ErrPaymentNotFound is returned when no output pays the recipient.
	ErrPaymentNotFound = ErrorKind("payment output not found")
	// ErrFeeMissing is returned when the wallet does not report a fee for the
	// payment.
	ErrFeeMissing = ErrorKind("transaction fee not reported")
)

// Error pairs an error with details.
type Error struct {
	wrapped error
	detail  string
}

// Error satisfies the error interface, combining the wrapped error message with
// the details.
func (e Error) Error() string {
	return e.wrapped.Error() + ": " + e.detail
}

// Unwrap returns the wrapped error, allowing errors.Is and errors.As to work.
func (e Error) Unwrap() error {
	return e.wrapped
}

func newError(err error, format string, args ...any) Error {
	return Error{
		wrapped: err,
		detail:  fmt.Sprintf(format, args...),
	}
}
