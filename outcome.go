package lnurlw

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Target is what a redemption attempt settles against. The only
// implementations are Invoice and PayoutAmount.
type Target interface {
	target()
}

// Invoice is a bech32 encoded lightning payment request which is handed to the
// withdraw callback as `pr`.
type Invoice string

// PayoutAmount is a currency amount paid out through a pull payment.
type PayoutAmount struct {
	decimal.Decimal
}

func (Invoice) target()      {}
func (PayoutAmount) target() {}

// ParsePayoutAmount reads a decimal amount such as "0.01".
func ParsePayoutAmount(s string) (PayoutAmount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return PayoutAmount{}, fmt.Errorf("invalid payout amount %q: %w",
			s, err)
	}

	return PayoutAmount{Decimal: d}, nil
}

// MustParsePayoutAmount is like ParsePayoutAmount but panics on malformed
// input.
func MustParsePayoutAmount(s string) PayoutAmount {
	a, err := ParsePayoutAmount(s)
	if err != nil {
		panic(err)
	}

	return a
}

// UnmarshalText lets configuration libraries decode amounts.
func (a *PayoutAmount) UnmarshalText(text []byte) error {
	parsed, err := ParsePayoutAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed

	return nil
}

type OutcomeKind uint8

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeInsufficientFunds
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeInsufficientFunds:
		return "insufficient_funds"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a single redemption attempt.
type Outcome struct {
	Kind OutcomeKind

	// Reason is only set for OutcomeFailure.
	Reason string
}

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

func InsufficientFunds() Outcome {
	return Outcome{Kind: OutcomeInsufficientFunds}
}

func Failure(reason string) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason}
}

// Err maps the outcome onto an error, nil for a successful redemption.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeInsufficientFunds:
		return ErrInsufficientFunds
	default:
		return errors.New(o.Reason)
	}
}

func (o Outcome) String() string {
	if o.Kind == OutcomeFailure && o.Reason != "" {
		return o.Kind.String() + ": " + o.Reason
	}

	return o.Kind.String()
}
