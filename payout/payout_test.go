package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const cardLNURL = "lnurl1dp68gurn8ghj7mrww4exctnzd9nhxatw9eu8j730d3h82unv94cxz7flw3skw0tvdankjm3lx5"

type navigator struct {
	n int32
}

func (n *navigator) NavigateBack() {
	atomic.AddInt32(&n.n, 1)
}

func (n *navigator) count() int32 {
	return atomic.LoadInt32(&n.n)
}

type btcpay struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []Request
	auth     []string
	status   int
	pageHits int32
}

func newBTCPay(t *testing.T) *btcpay {
	b := &btcpay{status: http.StatusOK}
	b.srv = httptest.NewTLSServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/boltcards/balance":
				atomic.AddInt32(&b.pageHits, 1)
				if r.URL.Query().Get("p") == "" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Write([]byte(`<html><a href="lightning:` +
					cardLNURL + `">Claim</a></html>`))

			case r.Method == http.MethodPost &&
				r.URL.Path == "/api/v1/pull-payments/pp1/payouts":

				var req Request
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}

				b.mu.Lock()
				b.requests = append(b.requests, req)
				b.auth = append(b.auth, r.Header.Get("Authorization"))
				status := b.status
				b.mu.Unlock()

				w.WriteHeader(status)
				w.Write([]byte(`{"id":"x"}`))

			default:
				http.NotFound(w, r)
			}
		},
	))
	t.Cleanup(b.srv.Close)

	return b
}

func (b *btcpay) domain() string {
	return strings.TrimPrefix(b.srv.URL, "https://")
}

func (b *btcpay) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Request(nil), b.requests...)
}

func newRedeemer(t *testing.T, b *btcpay, nav Navigator,
	m *metrics.Metrics) *Redeemer {

	r, err := New(Config{
		PullPaymentID: "pp1",
		ServerDomain:  b.srv.URL,
	}, lnurlw.NewClient(b.srv.Client()), nav, m)
	require.NoError(t, err)

	return r
}

func TestNewNotConfigured(t *testing.T) {
	_, err := New(Config{ServerDomain: "btcpay.example.com"}, nil, nil, nil)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Config{PullPaymentID: "pp1", ServerDomain: "https://"},
		nil, nil, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestPayoutURL(t *testing.T) {
	r, err := New(Config{
		PullPaymentID: "abc",
		ServerDomain:  "https://btcpay.example.com/",
	}, lnurlw.NewClient(nil), nil, nil)
	require.NoError(t, err)
	require.Equal(t,
		"https://btcpay.example.com/api/v1/pull-payments/abc/payouts",
		r.PayoutURL())
}

func TestHandleTextBalancePage(t *testing.T) {
	b := newBTCPay(t)
	nav := &navigator{}
	r := newRedeemer(t, b, nav, nil)
	ctx := context.Background()
	amount := lnurlw.MustParsePayoutAmount("0.01")

	text := "lnurlw://" + b.domain() + "/boltcards/withdraw?p=A1B2&c=C3D4"

	require.True(t, r.HandleText(ctx, text, amount))
	require.Equal(t, []Request{{
		Destination:   cardLNURL,
		Amount:        "0.01",
		PaymentMethod: PaymentMethod,
	}}, b.Requests())
	require.Equal(t, int32(1), nav.count())
	require.Equal(t, StateRedeemed, r.State())
	require.True(t, r.HasRedeemed())

	// Further taps are ignored until the redeemer is reset.
	require.False(t, r.HandleText(ctx, text, amount))
	require.Len(t, b.Requests(), 1)
	require.Equal(t, int32(1), nav.count())
	require.Equal(t, int32(1), atomic.LoadInt32(&b.pageHits))
}

func TestHandleTextDirect(t *testing.T) {
	b := newBTCPay(t)
	r := newRedeemer(t, b, &navigator{}, nil)

	require.True(t, r.HandleText(
		context.Background(), "lnurlw://card.example.com/w",
		lnurlw.MustParsePayoutAmount("1.5"),
	))
	require.Equal(t, []Request{{
		Destination:   "lnurlw://card.example.com/w",
		Amount:        "1.50",
		PaymentMethod: PaymentMethod,
	}}, b.Requests())
}

func TestRedeemAmountRounding(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{amount: "2.675", want: "2.68"},
		{amount: "1.005", want: "1.01"},
		{amount: "0.285", want: "0.29"},
		{amount: "0.004", want: "0.00"},
		{amount: "10", want: "10.00"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.amount, func(t *testing.T) {
			b := newBTCPay(t)
			r := newRedeemer(t, b, &navigator{}, nil)

			require.True(t, r.Redeem(context.Background(), cardLNURL,
				lnurlw.MustParsePayoutAmount(test.amount)))

			reqs := b.Requests()
			require.Len(t, reqs, 1)
			require.Equal(t, test.want, reqs[0].Amount)
		})
	}
}

func TestHandleTextIgnored(t *testing.T) {
	b := newBTCPay(t)
	nav := &navigator{}
	r := newRedeemer(t, b, nav, nil)
	ctx := context.Background()
	amount := lnurlw.MustParsePayoutAmount("0.01")

	require.False(t, r.HandleText(ctx, "hello", amount))

	// Balance page without a lightning link.
	text := "https://" + b.domain() + "/x?nothing"
	require.False(t, r.HandleText(ctx, text, amount))

	require.Empty(t, b.Requests())
	require.Zero(t, nav.count())
	require.Equal(t, StateIdle, r.State())
	require.False(t, r.HasRedeemed())
}

func TestHandleTextSameCard(t *testing.T) {
	b := newBTCPay(t)
	r := newRedeemer(t, b, &navigator{}, nil)
	ctx := context.Background()

	require.True(t, r.guard.Changed("lnurlw://card.example.com/w"))
	require.False(t, r.HandleText(ctx, "lnurlw://card.example.com/w",
		lnurlw.MustParsePayoutAmount("0.01")))
	require.Empty(t, b.Requests())
}

func TestRedeemFailureStillNavigates(t *testing.T) {
	b := newBTCPay(t)
	b.status = http.StatusForbidden
	nav := &navigator{}
	reg := prometheus.NewRegistry()
	r := newRedeemer(t, b, nav, metrics.New(reg))

	require.True(t, r.Redeem(context.Background(), cardLNURL,
		lnurlw.MustParsePayoutAmount("0.01")))
	require.Equal(t, int32(1), nav.count())
	require.True(t, r.HasRedeemed())

	count, err := testutil.GatherAndCount(reg, "flashpos_redemptions_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRedeemTransportFailure(t *testing.T) {
	b := newBTCPay(t)
	nav := &navigator{}
	r := newRedeemer(t, b, nav, nil)
	b.srv.Close()

	require.True(t, r.Redeem(context.Background(), cardLNURL,
		lnurlw.MustParsePayoutAmount("0.01")))
	require.Equal(t, int32(1), nav.count())
	require.Equal(t, StateRedeemed, r.State())
}

func TestRedeemConcurrentTaps(t *testing.T) {
	b := newBTCPay(t)
	nav := &navigator{}
	r := newRedeemer(t, b, nav, nil)

	var (
		wg       sync.WaitGroup
		redeemed int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Redeem(context.Background(), cardLNURL,
				lnurlw.MustParsePayoutAmount("0.01")) {

				atomic.AddInt32(&redeemed, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), redeemed)
	require.Len(t, b.Requests(), 1)
	require.Equal(t, int32(1), nav.count())
}

func TestResetAndAPIKey(t *testing.T) {
	b := newBTCPay(t)
	r, err := New(Config{
		PullPaymentID: "pp1",
		ServerDomain:  b.domain(),
		APIKey:        "secret",
	}, lnurlw.NewClient(b.srv.Client()), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.True(t, r.Redeem(ctx, cardLNURL,
		lnurlw.MustParsePayoutAmount("0.01")))
	r.Reset()
	require.False(t, r.HasRedeemed())
	require.Equal(t, StateIdle, r.State())
	require.True(t, r.Redeem(ctx, cardLNURL,
		lnurlw.MustParsePayoutAmount("0.02")))

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Equal(t, []string{"token secret", "token secret"}, b.auth)
	require.Equal(t, "0.02", b.requests[1].Amount)
}
