package devissuer

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcutil"
	"github.com/lightninglabs/lndclient"
)

// Payer settles the invoices presented on the withdraw callback.
type Payer interface {
	Pay(ctx context.Context, invoice string) error
}

// LndPayer pays through an lnd node.
type LndPayer struct {
	client lndclient.LightningClient
	maxFee btcutil.Amount
}

func NewLndPayer(client lndclient.LightningClient,
	maxFee btcutil.Amount) *LndPayer {

	return &LndPayer{client: client, maxFee: maxFee}
}

func (p *LndPayer) Pay(ctx context.Context, invoice string) error {
	res := <-p.client.PayInvoice(ctx, invoice, p.maxFee, nil)
	if res.Err != nil {
		return fmt.Errorf("could not pay invoice: %w", res.Err)
	}

	return nil
}

// PayerFunc adapts a function to the Payer interface.
type PayerFunc func(ctx context.Context, invoice string) error

func (f PayerFunc) Pay(ctx context.Context, invoice string) error {
	return f(ctx, invoice)
}
