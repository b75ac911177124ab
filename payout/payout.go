// Package payout claims a fixed amount from a BTCPay pull payment into the
// flashcard that was tapped.
package payout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/logger"
	"github.com/ellemouton/lnurlw/metrics"
	"github.com/ellemouton/lnurlw/resolver"
)

// PaymentMethod is the BTCPay payment method id of LNURL destinations.
const PaymentMethod = "BTC-LightningLike"

// ErrNotConfigured is returned when the pull payment or its server is not
// set.
var ErrNotConfigured = errors.New("payout: pull payment is not configured")

type Config struct {
	PullPaymentID string

	// ServerDomain is the host of the BTCPay server. A scheme prefix is
	// stripped.
	ServerDomain string

	// APIKey is sent as a Greenfield token when set.
	APIKey string

	// Scheme used to reach the server and balance pages, https if empty.
	Scheme string
}

func (c Config) Validate() error {
	if c.PullPaymentID == "" {
		return fmt.Errorf("%w: missing pull payment id", ErrNotConfigured)
	}
	if stripScheme(c.ServerDomain) == "" {
		return fmt.Errorf("%w: missing server domain", ErrNotConfigured)
	}

	return nil
}

// Request is the body of a pull payment payout.
type Request struct {
	Destination   string `json:"destination"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"paymentMethod"`
}

type State uint8

const (
	StateIdle State = iota
	StateBalanceLookup
	StateRedeeming
	StateRedeemed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBalanceLookup:
		return "BalanceLookup"
	case StateRedeeming:
		return "Redeeming"
	case StateRedeemed:
		return "Redeemed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Navigator leaves the payout screen.
type Navigator interface {
	NavigateBack()
}

// Redeemer settles at most one payout until it is Reset.
type Redeemer struct {
	cfg      Config
	client   *lnurlw.Client
	resolver *resolver.Resolver
	nav      Navigator
	metrics  *metrics.Metrics

	guard resolver.Guard

	mu          sync.Mutex
	state       State
	hasRedeemed bool
}

func New(cfg Config, client *lnurlw.Client, nav Navigator,
	m *metrics.Metrics) (*Redeemer, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ServerDomain = stripScheme(cfg.ServerDomain)
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}

	return &Redeemer{
		cfg:    cfg,
		client: client,
		resolver: resolver.New(resolver.Config{
			BalancePages: true,
			Scheme:       cfg.Scheme,
		}, client),
		nav:     nav,
		metrics: m,
	}, nil
}

// PayoutURL is the endpoint payouts are POSTed to.
func (r *Redeemer) PayoutURL() string {
	return fmt.Sprintf("%s://%s/api/v1/pull-payments/%s/payouts",
		r.cfg.Scheme, r.cfg.ServerDomain, r.cfg.PullPaymentID)
}

func (r *Redeemer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

func (r *Redeemer) HasRedeemed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hasRedeemed
}

// Reset allows the next tap to settle again.
func (r *Redeemer) Reset() {
	r.mu.Lock()
	r.hasRedeemed = false
	r.state = StateIdle
	r.mu.Unlock()

	r.guard.Reset()
}

func (r *Redeemer) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = s
}

// HandleText resolves the text of a tap and redeems amount into it. It
// reports whether a payout was attempted.
func (r *Redeemer) HandleText(ctx context.Context, text string,
	amount lnurlw.PayoutAmount) bool {

	if r.HasRedeemed() {
		logger.Logger.Debug().Msg("Payout already redeemed, ignoring tap")
		return false
	}

	r.setState(StateBalanceLookup)

	res, ok := r.resolver.Resolve(ctx, text)
	if !ok {
		logger.Logger.Debug().Msg("Tag text is not a payout destination")
		r.finishLookup()
		return false
	}

	if !r.guard.Changed(res.LNURL) {
		logger.Logger.Debug().Str("lnurl", res.LNURL).
			Msg("Same card read again, ignoring")
		r.finishLookup()
		return false
	}

	logger.Logger.Info().Str("lnurl", res.LNURL).
		Str("shape", res.Shape.String()).Msg("Resolved payout destination")

	return r.Redeem(ctx, res.LNURL, amount)
}

func (r *Redeemer) finishLookup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateBalanceLookup {
		r.state = StateIdle
	}
}

// Redeem POSTs a payout of amount to lnurl. Once called the redeemer ignores
// every further tap until Reset, whatever the server answers.
func (r *Redeemer) Redeem(ctx context.Context, lnurl string,
	amount lnurlw.PayoutAmount) bool {

	r.mu.Lock()
	if r.hasRedeemed {
		r.mu.Unlock()
		return false
	}
	r.hasRedeemed = true
	r.state = StateRedeeming
	r.mu.Unlock()

	req := &Request{
		Destination:   lnurl,
		Amount:        amount.StringFixed(2),
		PaymentMethod: PaymentMethod,
	}

	header := make(http.Header)
	if r.cfg.APIKey != "" {
		header.Set("Authorization", "token "+r.cfg.APIKey)
	}

	err := r.post(ctx, req, header)
	if err != nil {
		logger.Logger.Error().Err(err).Str("lnurl", lnurl).
			Msg("Payout failed")
	} else {
		logger.Logger.Info().Str("lnurl", lnurl).Str("amount", req.Amount).
			Msg("Payout submitted")
	}
	r.metrics.ObservePayout(err)

	r.setState(StateRedeemed)

	if r.nav != nil {
		r.nav.NavigateBack()
	}

	return true
}

func (r *Redeemer) post(ctx context.Context, req *Request,
	header http.Header) error {

	resp, err := r.client.PostJSON(ctx, r.PayoutURL(), req, header)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("HTTP error code: %d: %s", resp.StatusCode,
			strings.TrimSpace(string(resp.Body)))
	}

	return nil
}

func stripScheme(domain string) string {
	if i := strings.Index(domain, "://"); i >= 0 {
		domain = domain[i+3:]
	}

	return strings.TrimRight(domain, "/")
}
