package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"spacenet/pkg/node"

	"github.com/urfave/cli/v2"
)

var pingCommand = &cli.Command{
	Name:      "ping",
	Usage:     "Connect to a host and measure round trips",
	ArgsUsage: "HOST:PORT",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "Number of pings", Value: 4},
		&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Usage: "Delay between pings", Value: time.Second},
		&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "Timeout of the handshake and of each ping", Value: 5 * time.Second},
		&cli.StringFlag{Name: "name", Usage: "Player `NAME` sent in the handshake", Value: "spacenet-ping"},
	},
	Action: pingCmd,
}

func pingCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Error: ping needs exactly one HOST:PORT argument.", 1)
	}
	addr := c.Args().First()
	cfg, err := node.LoadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error loading configuration: %v", err), 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	client, err := node.Dial(ctx, *cfg, addr, c.String("name"), node.NewRegistry())
	cancel()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error connecting: %v", err), 1)
	}
	defer client.Close()

	w := client.Welcome()
	fmt.Printf("connected to %q (server %s), session %s\n", w.ServerName, w.ServerID, w.SessionID)

	var total time.Duration
	ok := 0
	for i := 0; i < c.Int("count"); i++ {
		if i > 0 {
			time.Sleep(c.Duration("interval"))
		}
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		rtt, err := client.Ping(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ping %d: %v\n", i+1, err)
			continue
		}
		ok++
		total += rtt
		fmt.Printf("ping %d: rtt=%v\n", i+1, rtt.Round(time.Microsecond))
	}
	if ok == 0 {
		return cli.Exit("No ping answered.", 1)
	}
	st := client.Stats()
	fmt.Printf("%d/%d answered, avg rtt %v, %d bytes out, %d bytes in\n",
		ok, c.Int("count"), (total / time.Duration(ok)).Round(time.Microsecond), st.BytesOut, st.BytesIn)
	return nil
}
