package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/config"
	"github.com/ellemouton/lnurlw/logger"
	"github.com/ellemouton/lnurlw/metrics"
	"github.com/ellemouton/lnurlw/nfc"
	"github.com/ellemouton/lnurlw/pos"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var withdrawCommand = &cli.Command{
	Name:  "withdraw",
	Usage: "Settle an invoice with the next tapped card",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "invoice",
			Usage: "the payment request the card should pay",
		},
	},
	Action: withdraw,
}

var payoutCommand = &cli.Command{
	Name:  "payout",
	Usage: "Pay the pull payment amount into the next tapped card",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "amount",
			Usage: "the amount to pay out, overrides PAYOUT_AMOUNT",
		},
	},
	Action: payoutToCard,
}

var encodeCommand = &cli.Command{
	Name:  "encode",
	Usage: "Encode a URL as a bech32 LNURL",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "url",
			Usage: "the URL to encode",
		},
	},
	Action: func(ctx *cli.Context) error {
		u := ctx.String("url")
		if u == "" {
			return fmt.Errorf("missing '--url' flag")
		}

		lnurl, err := lnurlw.EncodeURL(u)
		if err != nil {
			return fmt.Errorf("error encoding URL: %w", err)
		}

		fmt.Println(lnurl)
		return nil
	},
}

var decodeCommand = &cli.Command{
	Name:  "decode",
	Usage: "Show the URL an LNURL points to",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "lnurl",
			Usage: "a bech32 LNURL or a LUD-17 URL",
		},
	},
	Action: func(ctx *cli.Context) error {
		lnurl := ctx.String("lnurl")
		if lnurl == "" {
			return fmt.Errorf("missing '--lnurl' flag")
		}

		u, err := lnurlw.ToURL(lnurl)
		if err != nil {
			return fmt.Errorf("error decoding LNURL: %w", err)
		}

		fmt.Println(u)
		return nil
	},
}

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "Show where a mainnet invoice pays to",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "invoice",
			Usage: "the payment request to inspect",
		},
	},
	Action: func(ctx *cli.Context) error {
		invoice := ctx.String("invoice")
		if invoice == "" {
			return fmt.Errorf("missing '--invoice' flag")
		}

		dest, err := lnurlw.InspectInvoice(invoice)
		if err != nil {
			return err
		}

		amount := "any"
		if dest.HasAmount() {
			amount = dest.Amount.String()
		}

		fmt.Printf("network:      %s\n"+
			"payee:        %s\n"+
			"payment hash: %s\n"+
			"amount:       %s\n"+
			"description:  %s\n"+
			"expires:      %s\n",
			dest.Network, dest.Payee, dest.PaymentHash, amount,
			dest.Description, dest.ExpiresAt.Format(time.DateTime))

		return nil
	},
}

func withdraw(ctx *cli.Context) error {
	invoice := ctx.String("invoice")
	if invoice == "" {
		return fmt.Errorf("missing '--invoice' flag")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	return runSession(ctx, cfg, lnurlw.Invoice(invoice))
}

func payoutToCard(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	if ctx.IsSet("amount") {
		amount, err := lnurlw.ParsePayoutAmount(ctx.String("amount"))
		if err != nil {
			return err
		}
		cfg.PayoutAmount = amount
	}
	if err := cfg.ValidatePayout(); err != nil {
		return err
	}

	return runSession(ctx, cfg, cfg.Payout())
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("loglevel") {
		cfg.LogLevel = ctx.String("loglevel")
	}
	if ctx.IsSet("logfile") {
		cfg.LogFile = ctx.String("logfile")
	}
	if ctx.IsSet("metricsaddr") {
		cfg.MetricsAddr = ctx.String("metricsaddr")
	}

	logger.Init(cfg.LogLevel)
	if cfg.LogFile != "" {
		logger.AddFileLogger(cfg.LogFile)
	}

	return cfg, nil
}

func runSession(cliCtx *cli.Context, cfg *config.Config,
	target lnurlw.Target) error {

	ctx, cancel := signal.NotifyContext(cliCtx.Context, os.Interrupt)
	defer cancel()

	var (
		reg *prometheus.Registry
		m   *metrics.Metrics
	)
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		m = metrics.New(reg)
	}

	payoutCfg := cfg.PayoutConfig()
	if cliCtx.Bool("notls") {
		payoutCfg.Scheme = "http"
	}

	console := nfc.NewConsole(os.Stdin)
	session := pos.New(pos.Config{
		Payout:     payoutCfg,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Metrics:    m,
	}, console, &terminal{w: os.Stdout, back: cancel})

	if err := session.SetTarget(target); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if reg != nil {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, reg)
		})
	}
	g.Go(func() error {
		defer cancel()

		state := session.Mount(gctx)
		if state != nfc.PermissionGranted {
			session.Unmount()
			return fmt.Errorf("NFC permission is %v", state)
		}

		fmt.Println("Tap a card (one line per tap), Ctrl-D to finish.")

		select {
		case <-gctx.Done():
		case <-console.Done():
		}

		session.Drain()
		session.Unmount()

		return nil
	})

	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string,
	reg *prometheus.Registry) error {

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Logger.Info().Str("addr", addr).Msg("Serving metrics")

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
