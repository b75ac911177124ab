package pos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/metrics"
	"github.com/ellemouton/lnurlw/nfc"
	"github.com/ellemouton/lnurlw/nfc/nfctest"
	"github.com/ellemouton/lnurlw/payout"
	"github.com/ellemouton/lnurlw/withdraw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond

	cardLNURL = "lnurl1dp68gurn8ghj7um9wfmxjcm99e3k7mf0v9cxj0m385ekvcenxc6r2c35xvukxefcv5mkvv34x5ekzd3ev56nyd3hxqurzepexejxxepnxscrvwfnv9nxzcn9xq6xyefhvgcxxcmyxymnserxfq5fns"
)

type display struct {
	mu       sync.Mutex
	alerts   []string
	loading  []bool
	navigate int
}

func (d *display) Alert(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.alerts = append(d.alerts, msg)
}

func (d *display) SetLoading(loading bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.loading = append(d.loading, loading)
}

func (d *display) PlaySound() error {
	return nil
}

func (d *display) NavigateBack() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.navigate++
}

func (d *display) Alerts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.alerts...)
}

func (d *display) Navigations() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.navigate
}

// server plays both the card issuer and the BTCPay instance.
type server struct {
	srv *httptest.Server

	callbacks int32
	payouts   int32
}

func newServer(t *testing.T) *server {
	s := &server{}
	s.srv = httptest.NewTLSServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/withdraw":
				fmt.Fprintf(w, `{"tag":"withdrawRequest","k1":"%d",`+
					`"callback":"%s/cb"}`, time.Now().UnixNano(),
					s.srv.URL)

			case "/cb":
				atomic.AddInt32(&s.callbacks, 1)
				w.Write([]byte(`{"status":"OK"}`))

			case "/boltcards/balance":
				w.Write([]byte(`<a href="lightning:` + cardLNURL +
					`">claim</a>`))

			case "/api/v1/pull-payments/pp1/payouts":
				atomic.AddInt32(&s.payouts, 1)
				w.Write([]byte(`{"id":"1"}`))

			default:
				http.NotFound(w, r)
			}
		},
	))
	t.Cleanup(s.srv.Close)

	return s
}

func (s *server) domain() string {
	return strings.TrimPrefix(s.srv.URL, "https://")
}

func (s *server) lnurl(t *testing.T) string {
	lnurl, err := lnurlw.EncodeURL(s.srv.URL + "/withdraw")
	require.NoError(t, err)

	return lnurl
}

func newSession(t *testing.T, srv *server, p nfc.Platform,
	d Display) *Session {

	s := New(Config{
		Payout: payout.Config{
			PullPaymentID: "pp1",
			ServerDomain:  srv.domain(),
		},
		HTTPClient: srv.srv.Client(),
	}, p, d)
	t.Cleanup(func() {
		s.Unmount()
		s.Wait()
	})

	return s
}

func TestMountQueryFails(t *testing.T) {
	p := nfctest.New(nfc.PermissionGranted)
	p.QueryErr = errors.New("permission query threw")
	s := newSession(t, newServer(t), p, &display{})

	require.Equal(t, nfc.PermissionUnknown, s.Mount(context.Background()))

	// Give the dispatcher a chance to act on any stray event.
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, p.Scans())
	require.False(t, s.Scanning())
}

func TestMountGrantedStartsOneScan(t *testing.T) {
	p := nfctest.New(nfc.PermissionGranted)
	s := newSession(t, newServer(t), p, &display{})

	require.Equal(t, nfc.PermissionGranted, s.Mount(context.Background()))
	require.Eventually(t, s.Scanning, waitFor, tick)

	p.SetPermission(nfc.PermissionGranted)
	p.SetPermission(nfc.PermissionGranted)
	require.NoError(t, s.Activate(context.Background()))

	require.Equal(t, 1, p.Scans())
}

func TestMountGrantedLater(t *testing.T) {
	p := nfctest.New(nfc.PermissionDenied)
	s := newSession(t, newServer(t), p, &display{})

	require.Equal(t, nfc.PermissionDenied, s.Mount(context.Background()))
	require.False(t, s.Scanning())

	p.SetPermission(nfc.PermissionGranted)
	require.Eventually(t, s.Scanning, waitFor, tick)
	require.Equal(t, nfc.PermissionGranted, s.Permission())
}

func TestActivate(t *testing.T) {
	p := nfctest.New(nfc.PermissionUnknown)
	d := &display{}
	s := newSession(t, newServer(t), p, d)
	s.Mount(context.Background())

	require.NoError(t, s.Activate(context.Background()))
	require.True(t, s.Scanning())
	require.Equal(t, []string{MsgActivated}, d.Alerts())

	unsupported := nfctest.New(nfc.PermissionGranted)
	unsupported.Unsupported = true
	d = &display{}
	s = newSession(t, newServer(t), unsupported, d)
	s.Mount(context.Background())

	require.ErrorIs(t, s.Activate(context.Background()), nfc.ErrUnsupported)
	require.Empty(t, d.Alerts())
}

func TestInvoiceFlow(t *testing.T) {
	srv := newServer(t)
	p := nfctest.New(nfc.PermissionGranted)
	d := &display{}
	s := newSession(t, srv, p, d)

	s.Mount(context.Background())
	require.Eventually(t, s.Scanning, waitFor, tick)
	require.NoError(t, s.SetTarget(lnurlw.Invoice("lnbc1...")))

	require.True(t, p.TapText(srv.lnurl(t)))
	require.Eventually(t, func() bool {
		return s.WithdrawState() == withdraw.StateSuccess
	}, waitFor, tick)

	require.Empty(t, d.Alerts())
	require.Equal(t, int32(1), atomic.LoadInt32(&srv.callbacks))
}

func TestTapWithoutTarget(t *testing.T) {
	srv := newServer(t)
	p := nfctest.New(nfc.PermissionGranted)
	d := &display{}
	s := newSession(t, srv, p, d)

	s.Mount(context.Background())
	require.Eventually(t, s.Scanning, waitFor, tick)

	require.True(t, p.TapText(srv.lnurl(t)))
	require.Eventually(t, func() bool {
		return len(d.Alerts()) == 1
	}, waitFor, tick)
	require.Equal(t, []string{withdraw.MsgNoInvoice}, d.Alerts())
	require.Zero(t, atomic.LoadInt32(&srv.callbacks))

	// Tags without text are dropped before they reach a redeemer.
	require.True(t, p.Tap(nfc.Message{}))
	time.Sleep(20 * time.Millisecond)
	require.Len(t, d.Alerts(), 1)
}

func TestPayoutFlow(t *testing.T) {
	srv := newServer(t)
	p := nfctest.New(nfc.PermissionGranted)
	d := &display{}
	s := newSession(t, srv, p, d)

	s.Mount(context.Background())
	require.Eventually(t, s.Scanning, waitFor, tick)
	require.NoError(t, s.SetTarget(lnurlw.MustParsePayoutAmount("0.01")))

	text := "lnurlw://" + srv.domain() + "/withdraw?p=AA&c=BB"
	require.True(t, p.TapText(text))
	require.Eventually(t, func() bool {
		return d.Navigations() == 1
	}, waitFor, tick)
	require.Equal(t, payout.StateRedeemed, s.PayoutState())

	// Overlapping reads of the same card settle once.
	require.True(t, p.TapText(text))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&srv.payouts))
	require.Equal(t, 1, d.Navigations())

	// Leaving payout mode re-arms it.
	require.NoError(t, s.SetTarget(lnurlw.Invoice("lnbc1...")))
	require.Equal(t, payout.StateIdle, s.PayoutState())
}

func TestPayoutNotConfigured(t *testing.T) {
	s := New(Config{}, nfctest.New(nfc.PermissionGranted), &display{})
	defer s.Unmount()

	err := s.SetTarget(lnurlw.MustParsePayoutAmount("0.01"))
	require.ErrorIs(t, err, payout.ErrNotConfigured)
	require.Nil(t, s.Target())

	require.NoError(t, s.SetTarget(lnurlw.Invoice("lnbc1...")))
}

func TestReadErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := newServer(t)
	p := nfctest.New(nfc.PermissionGranted)
	d := &display{}
	s := New(Config{HTTPClient: srv.srv.Client(), Metrics: m}, p, d)
	defer s.Unmount()

	s.Mount(context.Background())
	require.Eventually(t, s.Scanning, waitFor, tick)

	require.True(t, p.FailRead(errors.New("tag lost")))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ReadErrors()) == 1
	}, waitFor, tick)
	require.Empty(t, d.Alerts())
}

func TestUnmount(t *testing.T) {
	srv := newServer(t)
	p := nfctest.New(nfc.PermissionGranted)
	d := &display{}
	s := newSession(t, srv, p, d)

	s.Mount(context.Background())
	require.Eventually(t, s.Scanning, waitFor, tick)

	s.Unmount()
	require.False(t, s.Scanning())
	require.False(t, p.TapText(srv.lnurl(t)))

	require.NoError(t, s.Activate(context.Background()))
	require.Empty(t, d.Alerts())
}
