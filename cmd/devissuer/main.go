package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
	"github.com/ellemouton/lnurlw/devissuer"
	"github.com/ellemouton/lnurlw/logger"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()

	app.Name = "devissuer"
	app.Usage = "Local flashcard issuer and pull payment server"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Value: ":8080",
			Usage: "address to listen on",
		},
		&cli.StringFlag{
			Name:  "baseurl",
			Value: "http://localhost:8080",
			Usage: "the URL the server is reachable at",
		},
		&cli.Int64Flag{
			Name:  "minwithdrawable",
			Value: 1000,
			Usage: "min withdrawable amount in millisats",
		},
		&cli.Int64Flag{
			Name:  "maxwithdrawable",
			Value: 100000,
			Usage: "max withdrawable amount in millisats",
		},
		&cli.StringFlag{
			Name:  "pullpaymentid",
			Value: "dev",
			Usage: "the pull payment payouts are accepted for",
		},
		&cli.StringFlag{
			Name:  "apikey",
			Usage: "require this token on payout requests",
		},
		&cli.StringFlag{
			Name:  "host",
			Value: "localhost:10011",
			Usage: "lnd instance rpc address",
		},
		&cli.StringFlag{
			Name:  "network",
			Value: "regtest",
			Usage: "the network",
		},
		&cli.StringFlag{
			Name:  "macpath",
			Usage: "Path to lnd's mac dir",
		},
		&cli.StringFlag{
			Name:  "tlspath",
			Usage: "Path to lnd's tls cert",
		},
		&cli.Int64Flag{
			Name:  "maxfee",
			Value: 10,
			Usage: "max fee to pay per withdrawal (in sats)",
		},
		&cli.StringFlag{
			Name:  "loglevel",
			Value: "info",
			Usage: "log level",
		},
	}
	app.Action = run

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[devissuer] %v\n", err)
	os.Exit(1)
}

func run(ctx *cli.Context) error {
	logger.Init(ctx.String("loglevel"))

	network := lndclient.Network(ctx.String("network"))
	params, err := chainParams(network)
	if err != nil {
		return err
	}

	lnd, err := lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:  ctx.String("host"),
		Network:     network,
		MacaroonDir: ctx.String("macpath"),
		TLSPath:     ctx.String("tlspath"),
	})
	if err != nil {
		return fmt.Errorf("could not connect to LND: %w", err)
	}
	defer lnd.Close()

	info, err := lnd.Client.GetInfo(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Println("Connected to node with alias:", info.Alias)

	server := devissuer.NewServer(&devissuer.Config{
		BaseURL:         ctx.String("baseurl"),
		ListenAddr:      ctx.String("listen"),
		MinWithdrawable: lnwire.MilliSatoshi(ctx.Int64("minwithdrawable")),
		MaxWithdrawable: lnwire.MilliSatoshi(ctx.Int64("maxwithdrawable")),
		Network:         params,
		PullPaymentID:   ctx.String("pullpaymentid"),
		APIKey:          ctx.String("apikey"),
	}, devissuer.NewLndPayer(
		lnd.Client, btcutil.Amount(ctx.Int64("maxfee")),
	))

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	return server.Run(runCtx)
}

func chainParams(network lndclient.Network) (*chaincfg.Params, error) {
	switch network {
	case lndclient.NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case lndclient.NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	case lndclient.NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	case lndclient.NetworkSimnet:
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}
