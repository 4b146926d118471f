package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spacenet/pkg/log"
	"spacenet/pkg/loopback"
	"spacenet/pkg/node"

	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run a game host until interrupted",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "Server `NAME` announced to clients"},
		&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "Game listen `ADDR`"},
		&cli.StringFlag{Name: "api", Usage: "Stats API listen `ADDR`, empty to disable"},
		&cli.StringFlag{Name: "log-level", Usage: "Minimum log `LEVEL`"},
		&cli.BoolFlag{Name: "console", Usage: "Log to stderr instead of the log database"},
	},
	Action: serveCmd,
}

func serveCmd(c *cli.Context) error {
	cfg, err := node.LoadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error loading configuration: %v", err), 1)
	}
	if c.IsSet("name") {
		cfg.Name = c.String("name")
	}
	if c.IsSet("listen") {
		cfg.ListenAddr = c.String("listen")
	}
	if c.IsSet("api") {
		cfg.APIListenAddr = c.String("api")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	if c.Bool("console") {
		log.SetStd()
	} else {
		log.MustInit("spacenet")
		defer log.Close()
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if cfg.ConfigFile != "" {
		log.Printf("using config file %s", cfg.ConfigFile)
	}

	h, err := node.NewHost(*cfg, node.NewRegistry(), loopback.NewNetwork())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error creating host: %v", err), 1)
	}
	if err := h.Start(); err != nil {
		return cli.Exit(fmt.Sprintf("Error starting host: %v", err), 1)
	}
	transport := "plain"
	if cfg.Encrypt {
		transport = "encrypted"
	}
	fmt.Fprintf(os.Stderr, "spacenet %s: %q listening on %s, %s transport (server id %s). Press Ctrl+C to stop.\n",
		Version, cfg.Name, h.Addr(), transport, h.ID())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("host has been shut down")
	return nil
}
