package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"text/tabwriter"
	"time"

	"spacenet/pkg/node"

	"github.com/urfave/cli/v2"
)

var discoverCommand = &cli.Command{
	Name:  "discover",
	Usage: "Find hosts answering discovery queries",
	Description: `Sends a discovery query to every --target. Without targets the query goes
to the configured multicast group, or is broadcast on the discovery port.`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "target", Aliases: []string{"t"}, Usage: "Discovery `ADDR` to query, repeatable"},
		&cli.DurationFlag{Name: "wait", Aliases: []string{"w"}, Usage: "How long to collect answers", Value: time.Second},
	},
	Action: discoverCmd,
}

func discoveryTargets(c *cli.Context, cfg *node.Config) ([]*net.UDPAddr, error) {
	specs := c.StringSlice("target")
	if len(specs) == 0 {
		if cfg.Discovery.MulticastGroup != "" {
			specs = []string{cfg.Discovery.MulticastGroup}
		} else {
			_, port, err := net.SplitHostPort(cfg.Discovery.Address)
			if err != nil {
				return nil, fmt.Errorf("discovery address %q: %w", cfg.Discovery.Address, err)
			}
			specs = []string{net.JoinHostPort(net.IPv4bcast.String(), port)}
		}
	}
	targets := make([]*net.UDPAddr, 0, len(specs))
	for _, s := range specs {
		addr, err := net.ResolveUDPAddr("udp4", s)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", s, err)
		}
		targets = append(targets, addr)
	}
	return targets, nil
}

func discoverCmd(c *cli.Context) error {
	cfg, err := node.LoadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error loading configuration: %v", err), 1)
	}
	targets, err := discoveryTargets(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("wait"))
	defer cancel()
	found, err := node.Discover(ctx, nil, targets)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error discovering: %v", err), 1)
	}
	if len(found) == 0 {
		fmt.Fprintln(os.Stderr, "No host answered.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tPLAYERS\tSERVER ID")
	for _, s := range found {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", s.Name, s.Addr, s.Players, s.MaxPlayers, s.ServerID)
	}
	return tw.Flush()
}
