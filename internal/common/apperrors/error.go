// Package apperrors provides the application error type used across the
// catalog service. It extends the standard error interface with error
// chaining, HTTP status codes, and derived-error creation so packages can
// declare sentinel errors and refine them at the call site.
package apperrors

// Error is the application error interface. Derived errors keep their parent
// as the base error so errors.Is works across the whole chain.
type Error interface {
	error
	Unwrap() error

	New(msg string) Error                  // derive a new sentinel from this one
	Msg(msg string) Error                  // new message, wraps the original
	MsgErr(msg string, err ...error) Error // new message, wraps extra errors
	Err(err ...error) Error                // same message, attaches extra errors
	SetStatusCode(int) Error               // sets the HTTP status code
	StatusCode() int
	ErrorAll() string   // message including all wrapped errors
	UnwrapAll() []error // all wrapped errors in attach order
}
