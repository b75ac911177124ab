package lnurlw

import (
	"errors"
	"fmt"
)

// ErrInsufficientFunds is returned when the card issuer refuses the callback
// because the invoice is outside the withdrawable bounds.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ProtocolMismatchError is returned when a tag or LN SERVICE response does not
// describe a usable withdrawRequest.
type ProtocolMismatchError struct {
	// Tag is the tag LN SERVICE returned, if any.
	Tag Type

	// Reason is the explanation given by LN SERVICE or by the parser.
	Reason string
}

func (e *ProtocolMismatchError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("not a withdrawRequest (tag '%s'): %s",
			e.Tag, e.Reason)
	}

	return fmt.Sprintf("not a withdrawRequest: %s", e.Reason)
}

// TransportError wraps any failure to complete an HTTP exchange.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
