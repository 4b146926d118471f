// Command spacenet runs spacenet game hosts and queries them.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Set at build time with -ldflags "-X main.Version=... -X main.BuildTime=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "spacenet",
		Usage:   "game session host and network tools",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file `PATH` (default: spacenet.yaml in . or the state directory)",
				EnvVars: []string{"SPACENET_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			pingCommand,
			discoverCommand,
			logsCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
