// Package pos wires the NFC reader to the redeemers for one point of sale
// screen.
package pos

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/logger"
	"github.com/ellemouton/lnurlw/metrics"
	"github.com/ellemouton/lnurlw/nfc"
	"github.com/ellemouton/lnurlw/payout"
	"github.com/ellemouton/lnurlw/withdraw"
)

// MsgActivated is shown once the operator activated scanning.
const MsgActivated = "Flashcard is now active. There will be no need to " +
	"activate it again. Please tap your card to redeem the payment"

// Display is the screen a session drives.
type Display interface {
	Alert(msg string)
	SetLoading(loading bool)
	PlaySound() error
	NavigateBack()
}

// screen drops every side effect once the session is unmounted.
type screen struct {
	d       Display
	mounted atomic.Bool
}

func (s *screen) Alert(msg string) {
	if s.mounted.Load() {
		s.d.Alert(msg)
	}
}

func (s *screen) SetLoading(loading bool) {
	if s.mounted.Load() {
		s.d.SetLoading(loading)
	}
}

func (s *screen) PlaySound() error {
	if !s.mounted.Load() {
		return nil
	}

	return s.d.PlaySound()
}

func (s *screen) NavigateBack() {
	if s.mounted.Load() {
		s.d.NavigateBack()
	}
}

type Config struct {
	// Payout configures the pull payment. Payout targets are rejected when
	// it is not valid.
	Payout payout.Config

	// HTTPClient is used for every outbound request, http.DefaultClient if
	// nil.
	HTTPClient *http.Client

	Metrics *metrics.Metrics
}

// Session owns the mutable state of one mounted screen.
type Session struct {
	screen     *screen
	metrics    *metrics.Metrics
	dispatcher *nfc.Dispatcher
	gate       *nfc.Gate
	reader     *nfc.Reader
	withdraw   *withdraw.Redeemer

	payout    *payout.Redeemer
	payoutErr error

	wg sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	target  lnurlw.Target
	unsubs  []func()
	mounted bool
}

func New(cfg Config, platform nfc.Platform, display Display) *Session {
	client := lnurlw.NewClient(cfg.HTTPClient)
	d := nfc.NewDispatcher(0)
	scr := &screen{d: display}

	s := &Session{
		screen:     scr,
		metrics:    cfg.Metrics,
		dispatcher: d,
		gate:       nfc.NewGate(platform, d),
		reader:     nfc.NewReader(platform, d),
		withdraw:   withdraw.New(client, scr, cfg.Metrics),
		ctx:        context.Background(),
	}

	s.payout, s.payoutErr = payout.New(cfg.Payout, client, scr, cfg.Metrics)
	if s.payoutErr != nil {
		logger.Logger.Debug().Err(s.payoutErr).Msg("Payout flow disabled")
	}

	return s
}

// Mount starts the session and returns the permission state the platform
// reported. Scanning starts as soon as the permission is granted.
func (s *Session) Mount(ctx context.Context) nfc.PermissionState {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return s.gate.State()
	}
	s.mounted = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.unsubs = append(s.unsubs,
		s.gate.OnChange(s.onPermission),
		s.reader.OnText(s.onText),
		s.reader.OnError(s.onReadError),
	)
	s.mu.Unlock()

	s.screen.mounted.Store(true)
	s.dispatcher.Start()

	if !s.gate.CheckCapability() {
		logger.Logger.Warn().Msg("NFC is not supported on this platform")
	}

	return s.gate.Query(ctx)
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ctx
}

func (s *Session) onPermission(state nfc.PermissionState) {
	if state != nfc.PermissionGranted {
		return
	}

	if _, err := s.reader.StartScan(s.context()); err != nil {
		logger.Logger.Error().Err(err).Msg("Could not start scanning")
	}
}

// Activate starts scanning on operator request. The error is
// nfc.ErrUnsupported when the platform cannot scan, the caller should disable
// activation then.
func (s *Session) Activate(ctx context.Context) error {
	scanCtx := s.context()
	if !s.isMounted() {
		scanCtx = ctx
	}

	if _, err := s.reader.StartScan(scanCtx); err != nil {
		return err
	}

	s.screen.Alert(MsgActivated)

	return nil
}

func (s *Session) isMounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mounted
}

// SetTarget selects what the next tap settles. Selecting anything but a
// payout re-arms the payout flow.
func (s *Session) SetTarget(target lnurlw.Target) error {
	_, isPayout := target.(lnurlw.PayoutAmount)
	if isPayout && s.payout == nil {
		return s.payoutErr
	}

	s.mu.Lock()
	s.target = target
	s.mu.Unlock()

	if !isPayout && s.payout != nil {
		s.payout.Reset()
	}

	return nil
}

func (s *Session) Target() lnurlw.Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.target
}

func (s *Session) onText(text string) {
	if text == "" {
		logger.Logger.Debug().Msg("Tag carried no text, ignoring")
		return
	}

	s.mu.Lock()
	target := s.target
	ctx := context.WithoutCancel(s.ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.route(ctx, text, target)
	}()
}

func (s *Session) route(ctx context.Context, text string,
	target lnurlw.Target) {

	if amount, ok := target.(lnurlw.PayoutAmount); ok {
		s.payout.HandleText(ctx, text, amount)
		return
	}

	_, err := s.withdraw.Redeem(ctx, text, target)
	switch {
	case errors.Is(err, withdraw.ErrInFlight):
		logger.Logger.Debug().Msg("Redemption in flight, ignoring tap")
	case err != nil:
		logger.Logger.Info().Err(err).Msg("Tap rejected")
	}
}

func (s *Session) onReadError(error) {
	s.metrics.ObserveReadError()
}

// Permission is the last permission state reported by the platform.
func (s *Session) Permission() nfc.PermissionState {
	return s.gate.State()
}

func (s *Session) Scanning() bool {
	return s.reader.Active()
}

func (s *Session) WithdrawState() withdraw.State {
	return s.withdraw.State()
}

// PayoutState is StateIdle when the payout flow is disabled.
func (s *Session) PayoutState() payout.State {
	if s.payout == nil {
		return payout.StateIdle
	}

	return s.payout.State()
}

// Unmount stops scanning and silences the display. Redemptions already
// running finish in the background, see Wait.
func (s *Session) Unmount() {
	s.screen.mounted.Store(false)

	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	cancel := s.cancel
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	s.reader.Stop()
	s.gate.Close()
	if cancel != nil {
		cancel()
	}
	s.dispatcher.Stop()
}

// Wait blocks until every redemption started by a tap has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Drain waits until every tap read so far has been handled. It must be
// called before Unmount.
func (s *Session) Drain() {
	done := make(chan struct{})
	if s.dispatcher.Post(func() { close(done) }) {
		<-done
	}

	s.wg.Wait()
}
