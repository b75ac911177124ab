package lnurlw

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

// Network is the only network invoices are accepted on. Flashcards are issued
// against mainnet and this is deliberately not configurable.
var Network = &chaincfg.MainNetParams

// Destination is what can be learned about a payment request without talking
// to the network.
type Destination struct {
	Network     string
	PaymentHash lntypes.Hash
	Payee       string
	Description string

	// MilliSat is zero for amountless invoices.
	MilliSat lnwire.MilliSatoshi
	Amount   btcutil.Amount

	CreatedAt time.Time
	ExpiresAt time.Time
}

// HasAmount reports whether the invoice specifies an amount.
func (d *Destination) HasAmount() bool {
	return d.MilliSat > 0
}

// InspectInvoice decodes a payment request on Network.
func InspectInvoice(invoice string) (*Destination, error) {
	inv, err := zpay32.Decode(invoice, Network)
	if err != nil {
		return nil, fmt.Errorf("could not decode invoice for %s: %w",
			Network.Name, err)
	}

	dest := &Destination{
		Network:   Network.Name,
		CreatedAt: inv.Timestamp,
		ExpiresAt: inv.Timestamp.Add(inv.Expiry()),
	}
	if inv.PaymentHash != nil {
		dest.PaymentHash = lntypes.Hash(*inv.PaymentHash)
	}
	if inv.Destination != nil {
		dest.Payee = hex.EncodeToString(
			inv.Destination.SerializeCompressed(),
		)
	}
	if inv.Description != nil {
		dest.Description = *inv.Description
	}
	if inv.MilliSat != nil {
		dest.MilliSat = *inv.MilliSat
		dest.Amount = inv.MilliSat.ToSatoshis()
	}

	return dest, nil
}
