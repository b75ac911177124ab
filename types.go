package lnurlw

import (
	"github.com/lightningnetwork/lnd/lnwire"
)

type WithdrawResponse struct {
	// Callback is the URL from LN SERVICE which will accept the withdraw
	// request parameters.
	Callback string `json:"callback"`

	// K1 is a random or non-random string to identify the user's LN WALLET
	// when using the callback URL. It can only be presented once.
	K1 string `json:"k1"`

	// MaxWithdrawable is the max amount the user can withdraw from LN
	// SERVICE.
	MaxWithdrawable lnwire.MilliSatoshi `json:"maxWithdrawable"`

	// MinWithdrawable is the min amount the user can withdraw, can not be
	// less than 1 or more than `maxWithdrawable`.
	MinWithdrawable lnwire.MilliSatoshi `json:"minWithdrawable"`

	// DefaultDescription is a default withdrawal invoice description.
	DefaultDescription string `json:"defaultDescription,omitempty"`

	// Type of LNURL
	Tag Type `json:"tag"`

	// Status and Reason are only set when LN SERVICE refuses to hand out
	// withdraw parameters.
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// WithdrawParams are the validated parameters of a withdrawRequest. They can
// only be obtained through ParseWithdrawParams.
type WithdrawParams struct {
	Tag                Type
	Callback           string
	K1                 string
	Reason             string
	MinWithdrawable    lnwire.MilliSatoshi
	MaxWithdrawable    lnwire.MilliSatoshi
	DefaultDescription string
}

type Type string

const (
	TypeWithdrawRequest Type = "withdrawRequest"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

type Error struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}
