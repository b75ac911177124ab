// Package devissuer is a minimal card issuer and pull payment server for
// trying the point of sale locally. It is not meant for production.
package devissuer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/logger"
	"github.com/ellemouton/lnurlw/payout"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"golang.org/x/sync/errgroup"
)

const (
	ReasonAboveMaximum = "Amount is bigger than the maximum"
	ReasonOutOfBounds  = "Amount not within bounds"

	defaultChallengeTTL = 10 * time.Minute
)

type Config struct {
	// BaseURL is where the server is reachable, e.g. http://localhost:8080.
	BaseURL    string
	ListenAddr string

	MinWithdrawable lnwire.MilliSatoshi
	MaxWithdrawable lnwire.MilliSatoshi

	// Network the presented invoices must be for.
	Network *chaincfg.Params

	// PullPaymentID is the only pull payment payouts are accepted for.
	PullPaymentID string

	// APIKey, if set, is required on payout requests.
	APIKey string

	// ChallengeTTL is how long a k1 can be presented, 10 minutes if zero.
	ChallengeTTL time.Duration
}

// Payout is a payout accepted on the pull payment.
type Payout struct {
	ID            string    `json:"id"`
	Destination   string    `json:"destination"`
	Amount        string    `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	State         string    `json:"state"`
	CreatedAt     time.Time `json:"date"`
}

type Server struct {
	cfg    *Config
	payer  Payer
	router *mux.Router

	challenges   map[string]time.Time
	challengesMu sync.Mutex

	payouts   []*Payout
	payoutsMu sync.Mutex
}

func NewServer(cfg *Config, payer Payer) *Server {
	if cfg.Network == nil {
		cfg.Network = &chaincfg.MainNetParams
	}
	if cfg.ChallengeTTL == 0 {
		cfg.ChallengeTTL = defaultChallengeTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &Server{
		cfg:        cfg,
		payer:      payer,
		router:     mux.NewRouter(),
		challenges: make(map[string]time.Time),
	}

	s.router.HandleFunc("/withdraw", s.withdraw).Methods(http.MethodGet)
	s.router.HandleFunc("/withdraw/cb", s.callback).Methods(http.MethodGet)
	s.router.HandleFunc("/boltcards/balance", s.balance).
		Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/pull-payments/{id}/payouts", s.payout).
		Methods(http.MethodPost)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// LNURL is the bech32 LNURL a card of this issuer carries.
func (s *Server) LNURL() (string, error) {
	return lnurlw.EncodeURL(s.cfg.BaseURL + "/withdraw")
}

// Payouts returns the payouts accepted so far.
func (s *Server) Payouts() []*Payout {
	s.payoutsMu.Lock()
	defer s.payoutsMu.Unlock()

	return append([]*Payout(nil), s.payouts...)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.printHello(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) printHello() error {
	withdrawURL := s.cfg.BaseURL + "/withdraw"

	lnurl, err := lnurlw.EncodeURL(withdrawURL)
	if err != nil {
		return err
	}

	scheme := strings.SplitN(withdrawURL, "://", 2)[0]
	fmt.Printf(
		""+
			"=======================================\n"+
			"Dev card issuer listening on %s\n"+
			"Your card LNURL-withdraw code is: \n"+
			"- %s\n"+
			"- lightning:%s\n"+
			"- %s\n"+
			"Balance page card text: \n"+
			"- %s\n"+
			"=======================================\n",
		s.cfg.ListenAddr, lnurl, lnurl,
		strings.Replace(withdrawURL, scheme, "lnurlw", 1),
		strings.Replace(s.cfg.BaseURL, scheme, "lnurlw", 1)+
			"/boltcards/withdraw?p=dev&c=dev",
	)

	return nil
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	k1 := hex.EncodeToString(b[:])

	s.challengesMu.Lock()
	s.expireChallenges()
	s.challenges[k1] = time.Now()
	s.challengesMu.Unlock()

	writeJSON(w, http.StatusOK, &lnurlw.WithdrawResponse{
		Callback:           s.cfg.BaseURL + "/withdraw/cb",
		K1:                 k1,
		MinWithdrawable:    s.cfg.MinWithdrawable,
		MaxWithdrawable:    s.cfg.MaxWithdrawable,
		DefaultDescription: "dev flashcard",
		Tag:                lnurlw.TypeWithdrawRequest,
	})
}

// expireChallenges must be called with challengesMu held.
func (s *Server) expireChallenges() {
	for k1, createdAt := range s.challenges {
		if time.Since(createdAt) > s.cfg.ChallengeTTL {
			delete(s.challenges, k1)
		}
	}
}

func (s *Server) takeChallenge(k1 string) bool {
	s.challengesMu.Lock()
	defer s.challengesMu.Unlock()

	createdAt, ok := s.challenges[k1]
	if !ok {
		return false
	}
	delete(s.challenges, k1)

	return time.Since(createdAt) <= s.cfg.ChallengeTTL
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	k1 := query.Get("k1")
	if k1 == "" || !s.takeChallenge(k1) {
		writeError(w, http.StatusBadRequest, "unknown or used k1")
		return
	}

	pr := query.Get("pr")
	if pr == "" {
		writeError(w, http.StatusBadRequest, "expected 'pr' field")
		return
	}

	inv, err := zpay32.Decode(pr, s.cfg.Network)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid invoice: %v", err))
		return
	}

	switch {
	case inv.MilliSat == nil || *inv.MilliSat < s.cfg.MinWithdrawable:
		writeError(w, http.StatusBadRequest, ReasonOutOfBounds)
		return

	case *inv.MilliSat > s.cfg.MaxWithdrawable:
		writeError(w, http.StatusBadRequest, ReasonAboveMaximum)
		return
	}

	if err := s.payer.Pay(ctx, pr); err != nil {
		logger.Logger.Error().Err(err).Msg("Withdraw payment failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Logger.Info().Str("amount", inv.MilliSat.String()).
		Msg("Withdraw paid")

	writeJSON(w, http.StatusOK, &lnurlw.Error{Status: lnurlw.StatusOK})
}

var balanceTemplate = template.Must(template.New("balance").Parse(
	`<!DOCTYPE html>
<html>
<head><title>Flashcard balance</title></head>
<body>
<p>Card {{.Card}}</p>
<a href="lightning:{{.LNURL}}">Claim with a lightning wallet</a>
</body>
</html>
`))

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	card := r.URL.Query().Get("p")
	if card == "" {
		http.NotFound(w, r)
		return
	}

	lnurl, err := s.LNURL()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = balanceTemplate.Execute(w, struct {
		Card  string
		LNURL template.URL
	}{
		Card:  card,
		LNURL: template.URL(strings.ToLower(lnurl)),
	})
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Could not render balance page")
	}
}

func (s *Server) payout(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["id"] != s.cfg.PullPaymentID {
		writeError(w, http.StatusNotFound, "pull payment not found")
		return
	}

	if s.cfg.APIKey != "" &&
		r.Header.Get("Authorization") != "token "+s.cfg.APIKey {

		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req payout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid request: %v", err))
		return
	}

	if req.PaymentMethod != payout.PaymentMethod {
		writeError(w, http.StatusBadRequest, "unsupported payment method")
		return
	}
	if req.Destination == "" {
		writeError(w, http.StatusBadRequest, "expected 'destination'")
		return
	}

	amount, err := lnurlw.ParsePayoutAmount(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	p := &Payout{
		ID:            uuid.NewString(),
		Destination:   req.Destination,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		State:         "AwaitingApproval",
		CreatedAt:     time.Now(),
	}

	s.payoutsMu.Lock()
	s.payouts = append(s.payouts, p)
	s.payoutsMu.Unlock()

	logger.Logger.Info().Str("id", p.ID).Str("destination", p.Destination).
		Str("amount", p.Amount).Msg("Payout accepted")

	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Error().Err(err).Msg("Could not write response")
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, &lnurlw.Error{
		Status: lnurlw.StatusError,
		Reason: reason,
	})
}
