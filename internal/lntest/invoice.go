// Package lntest creates signed payment requests for tests.
package lntest

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/stretchr/testify/require"
)

// NewInvoice returns a mainnet invoice for msat, amountless if zero.
func NewInvoice(t *testing.T, msat lnwire.MilliSatoshi) string {
	return NewInvoiceFor(t, &chaincfg.MainNetParams, msat)
}

// NewInvoiceFor returns an invoice for msat on net.
func NewInvoiceFor(t *testing.T, net *chaincfg.Params,
	msat lnwire.MilliSatoshi) string {

	t.Helper()

	privKey, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)

	var hash [32]byte
	_, err = rand.Read(hash[:])
	require.NoError(t, err)

	opts := []func(*zpay32.Invoice){zpay32.Description("flashcard test")}
	if msat > 0 {
		opts = append(opts, zpay32.Amount(msat))
	}

	inv, err := zpay32.NewInvoice(net, hash, time.Now(), opts...)
	require.NoError(t, err)

	pr, err := inv.Encode(zpay32.MessageSigner{
		SignCompact: func(hash []byte) ([]byte, error) {
			return btcec.SignCompact(btcec.S256(), privKey, hash, true)
		},
	})
	require.NoError(t, err)

	return pr
}
