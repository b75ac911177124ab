// Package resolver turns decoded tag text into an LNURL-withdraw string,
// following boltcard balance pages where needed.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/logger"
)

const (
	directPrefix = "lnurlw"
	balancePath  = "/boltcards/balance"
)

var anchorRegexp = regexp.MustCompile(`href="lightning:(lnurl\w+)"`)

type Shape uint8

const (
	ShapeDirect Shape = iota
	ShapeBalancePage
)

func (s Shape) String() string {
	if s == ShapeBalancePage {
		return "balance_page"
	}

	return "direct"
}

type Resolution struct {
	LNURL string
	Shape Shape
}

type Config struct {
	// BalancePages enables following boltcard balance page URLs. Only the
	// payout flow sets it.
	BalancePages bool

	// Scheme of the balance page URL, https if empty.
	Scheme string
}

type Resolver struct {
	cfg    Config
	client *lnurlw.Client
}

func New(cfg Config, client *lnurlw.Client) *Resolver {
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}

	return &Resolver{cfg: cfg, client: client}
}

// Resolve classifies text. It returns false for text that is not a
// recognised shape and for balance pages that could not be followed; the
// latter are logged but never reported to the operator.
func (r *Resolver) Resolve(ctx context.Context, text string) (Resolution,
	bool) {

	if r.cfg.BalancePages {
		if u, ok := BalancePageURL(text, r.cfg.Scheme); ok {
			lnurl, err := r.followBalancePage(ctx, u)
			if err != nil {
				logger.Logger.Error().Err(err).Str("url", u).
					Msg("Could not resolve balance page")
				return Resolution{}, false
			}

			return Resolution{LNURL: lnurl, Shape: ShapeBalancePage}, true
		}
	}

	if strings.HasPrefix(text, directPrefix) {
		return Resolution{LNURL: text, Shape: ShapeDirect}, true
	}

	return Resolution{}, false
}

func (r *Resolver) followBalancePage(ctx context.Context, u string) (string,
	error) {

	resp, err := r.client.Get(ctx, u)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("HTTP error code: %d", resp.StatusCode)
	}

	lnurl, ok := ExtractLNURL(resp.Body)
	if !ok {
		return "", fmt.Errorf("no lightning link on balance page")
	}

	return lnurl, nil
}

// BalancePageURL builds the balance page URL of a boltcard from the host and
// the first query segment of the text the card emitted.
func BalancePageURL(text, scheme string) (string, bool) {
	segments := strings.Split(text, "/")
	if len(segments) < 3 {
		return "", false
	}
	host := strings.SplitN(segments[2], "?", 2)[0]
	if host == "" {
		return "", false
	}

	query := strings.Split(text, "?")
	if len(query) < 2 || query[1] == "" {
		return "", false
	}

	return fmt.Sprintf("%s://%s%s?%s", scheme, host, balancePath,
		query[1]), true
}

// ExtractLNURL returns the first lightning: link of a balance page.
func ExtractLNURL(html []byte) (string, bool) {
	m := anchorRegexp.FindSubmatch(html)
	if m == nil {
		return "", false
	}

	return string(m[1]), true
}

// Guard remembers the last resolved LNURL so that overlapping reads of the
// same card do not settle twice.
type Guard struct {
	mu   sync.Mutex
	last string
}

// Changed records lnurl and reports whether it differs from the previous
// one.
func (g *Guard) Changed(lnurl string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if lnurl == g.last {
		return false
	}
	g.last = lnurl

	return true
}

func (g *Guard) Last() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.last
}

func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.last = ""
}
