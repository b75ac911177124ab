package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()

	app.Name = "flashpos"
	app.Usage = "Redeem flashcards from the terminal"
	app.Description = "Every line read from stdin is handled as one card " +
		"tap. Lines of the form '@<encoding> <hex>' carry raw record " +
		"bytes."
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "log level, overrides LOG_LEVEL",
		},
		&cli.StringFlag{
			Name:  "logfile",
			Usage: "also log to this file, overrides LOG_FILE",
		},
		&cli.StringFlag{
			Name:  "metricsaddr",
			Usage: "serve prometheus metrics on this address, " +
				"overrides METRICS_ADDR",
		},
		&cli.BoolFlag{
			Name: "notls",
			Usage: "set to true to use http instead of https for " +
				"balance pages and the pull payment server",
		},
	}
	app.Commands = append(app.Commands,
		withdrawCommand,
		payoutCommand,
		encodeCommand,
		decodeCommand,
		inspectCommand,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[flashpos] %v\n", err)
	os.Exit(1)
}
