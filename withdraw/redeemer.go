// Package withdraw settles an invoice against a flashcard using
// LNURL-withdraw (LUD-03).
package withdraw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/logger"
	"github.com/ellemouton/lnurlw/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrIncompatibleCard is returned for tags that carry no LNURL.
	ErrIncompatibleCard = errors.New("withdraw: not a compatible flashcard")

	// ErrNoInvoice is returned when a card is tapped before an invoice
	// was created.
	ErrNoInvoice = errors.New("withdraw: no invoice to settle")

	// ErrInFlight is returned when a card is tapped while the previous
	// attempt has not finished yet.
	ErrInFlight = errors.New("withdraw: a redemption is already in flight")
)

// Display is the part of the screen the redeemer drives.
type Display interface {
	Alert(msg string)
	SetLoading(loading bool)
	PlaySound() error
}

// Redeemer runs one redemption attempt at a time. Every k1 it is handed is
// presented at most once.
type Redeemer struct {
	client  *lnurlw.Client
	display Display
	metrics *metrics.Metrics

	mu     sync.Mutex
	state  State
	usedK1 map[string]struct{}
}

func New(client *lnurlw.Client, display Display, m *metrics.Metrics) *Redeemer {
	return &Redeemer{
		client:  client,
		display: display,
		metrics: m,
		usedK1:  make(map[string]struct{}),
	}
}

// State returns the state of the current or last attempt.
func (r *Redeemer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

func (r *Redeemer) transition(to State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !canTransition(r.state, to) {
		logger.Logger.Error().Str("from", r.state.String()).
			Str("to", to.String()).Msg("Invalid withdraw transition")
		return
	}
	r.state = to
}

func (r *Redeemer) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.InFlight() {
		return ErrInFlight
	}
	r.state = StateValidating

	return nil
}

// reject returns to Idle after a tap failed validation. An attempt in flight
// keeps its state.
func (r *Redeemer) reject() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.InFlight() {
		r.state = StateIdle
	}
}

func (r *Redeemer) claimK1(k1 string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.usedK1[k1]; ok {
		return false
	}
	r.usedK1[k1] = struct{}{}

	return true
}

// Redeem settles target with the flashcard that emitted text. Taps that fail
// validation return an error and leave no outcome; everything after that
// ends in an outcome which has already been reported to the operator.
func (r *Redeemer) Redeem(ctx context.Context, text string,
	target lnurlw.Target) (lnurlw.Outcome, error) {

	if !strings.Contains(strings.ToLower(text), "lnurl") {
		r.display.Alert(MsgIncompatibleCard)
		r.reject()
		return lnurlw.Outcome{}, ErrIncompatibleCard
	}

	invoice, ok := target.(lnurlw.Invoice)
	if !ok || invoice == "" {
		r.display.Alert(MsgNoInvoice)
		r.reject()
		return lnurlw.Outcome{}, ErrNoInvoice
	}

	if err := r.begin(); err != nil {
		return lnurlw.Outcome{}, err
	}

	log := logger.Logger.With().Str("attempt", uuid.NewString()).Logger()

	if err := r.display.PlaySound(); err != nil {
		log.Error().Err(err).Msg("Playback failed")
	}

	r.display.SetLoading(true)
	defer r.display.SetLoading(false)

	outcome := r.redeem(ctx, log, text, invoice)
	r.metrics.ObserveWithdraw(outcome)

	log.Info().Str("outcome", outcome.String()).Msg("Redemption finished")

	return outcome, nil
}

func (r *Redeemer) redeem(ctx context.Context, log zerolog.Logger, text string,
	invoice lnurlw.Invoice) lnurlw.Outcome {

	var (
		params *lnurlw.WithdrawParams
		dest   *lnurlw.Destination
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.client.FetchWithdrawParams(gctx, text)
		if err != nil {
			return err
		}
		params = p

		return nil
	})
	g.Go(func() error {
		u, err := lnurlw.ToURL(text)
		if err != nil {
			log.Warn().Err(err).Msg("Could not parse tap destination")
		} else {
			log.Info().Str("destination", u).Msg("Tap destination")
		}

		d, err := lnurlw.InspectInvoice(string(invoice))
		if err != nil {
			log.Warn().Err(err).Msg("Could not inspect payment destination")
			return nil
		}
		dest = d

		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Could not fetch withdraw params")
		return r.fail(text, err)
	}

	logDestination(log, params, dest)

	if !r.claimK1(params.K1) {
		log.Warn().Msg("k1 was already presented")
		return r.fail(text, errors.New(MsgRetry))
	}

	r.transition(StateRequesting)

	res, err := r.client.Callback(ctx, params, string(invoice))
	if err != nil {
		log.Error().Err(err).Msg("Withdraw callback failed")
		return r.fail(text, err)
	}

	outcome, msg := Classify(res)
	if msg != "" {
		log.Error().Int("status", res.HTTPStatus).Str("reason", res.Reason).
			Msg("Error with redeeming")
		r.display.Alert(msg)
	}

	switch outcome.Kind {
	case lnurlw.OutcomeSuccess:
		r.transition(StateSuccess)
	case lnurlw.OutcomeInsufficientFunds:
		r.transition(StateInsufficientFunds)
	default:
		r.transition(StateFailed)
	}

	return outcome
}

func (r *Redeemer) fail(text string, err error) lnurlw.Outcome {
	var (
		mismatch  *lnurlw.ProtocolMismatchError
		transport *lnurlw.TransportError
		msg       string
	)
	switch {
	case errors.As(err, &mismatch):
		msg = mismatchMessage(text, mismatch.Reason)
	case errors.As(err, &transport):
		msg = transportMessage(err)
	default:
		msg = err.Error()
	}

	r.display.Alert(msg)
	r.transition(StateFailed)

	return lnurlw.Failure(msg)
}

func logDestination(log zerolog.Logger, params *lnurlw.WithdrawParams,
	dest *lnurlw.Destination) {

	if dest == nil {
		return
	}

	log.Info().
		Str("network", dest.Network).
		Str("payment_hash", dest.PaymentHash.String()).
		Str("amount", dest.Amount.String()).
		Msg("Payment destination")

	if !dest.HasAmount() || params.MaxWithdrawable == 0 {
		return
	}

	if dest.MilliSat < params.MinWithdrawable ||
		dest.MilliSat > params.MaxWithdrawable {

		log.Warn().
			Str("amount", fmt.Sprintf("%v", dest.MilliSat)).
			Str("min", fmt.Sprintf("%v", params.MinWithdrawable)).
			Str("max", fmt.Sprintf("%v", params.MaxWithdrawable)).
			Msg("Invoice amount is outside the withdrawable bounds")
	}
}
