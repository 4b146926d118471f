package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"spacenet/pkg/log"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// timeFormats are tried in order for absolute time specifications.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

// parseTimeSpec reads spec as a duration before now ("90m", "2d", "1w") or
// as an absolute timestamp in local time unless a zone is given.
func parseTimeSpec(spec string, now time.Time) (time.Time, error) {
	if d, err := parseDuration(spec); err == nil {
		return now.Add(-d), nil
	}
	for _, layout := range timeFormats {
		if ts, err := time.ParseInLocation(layout, spec, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time specification %q: use a duration (e.g. '1h', '2d') or a timestamp (e.g. '2024-10-27T15:04:05Z')", spec)
}

// parseDuration extends time.ParseDuration with whole days and weeks.
func parseDuration(spec string) (time.Duration, error) {
	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if n, ok := strings.CutSuffix(spec, suffix); ok {
			v, err := strconv.Atoi(n)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid duration %q", spec)
			}
			return time.Duration(v) * unit, nil
		}
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", spec)
	}
	return d, nil
}

const logsCommandHelpTemplate = `NAME:
   {{.HelpName}} - {{.Usage}}

USAGE:
   {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[command options]{{end}}
{{if .Description}}
DESCRIPTION:
   {{.Description | Indent 4}}
{{end}}
MODES (choose one; defaults to --last):
     --last                 Retrieve the most recent N log entries.
     --since                Retrieve logs since a start time up to now.
     --between              Retrieve logs between a start and an end time.
     --component            Retrieve the most recent N entries of one component.

OPTIONS:
{{range .VisibleFlags}}   {{.}}
{{end}}
TIME SPECIFICATION:
     1. Relative: a duration before now, e.g. "5m", "1h30m", "2d", "1w".
     2. Absolute: "2024-10-27T15:04:05Z", "2024-10-27 10:00:00", "2024-10-27".
        Local time is assumed when no zone is given.

EXAMPLES:
     spacenet logs -n 50
     spacenet logs --since -s 1h --pretty
     spacenet logs --between -s 2d -e 1d --limit 2000
     spacenet logs --component node -n 20
`

var logsCommand = &cli.Command{
	Name:               "logs",
	Usage:              "Read entries from the log database",
	UsageText:          "spacenet logs [--last|--since|--between|--component NAME] [mode options]",
	Description:        `Reads the JSON log entries written by "spacenet serve".`,
	CustomHelpTemplate: logsCommandHelpTemplate,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "dbfile",
			Aliases: []string{"f"},
			Usage:   "Log database `PATH`, relative paths live in the state directory",
			Value:   "spacenet.db",
		},
		&cli.BoolFlag{Name: "pretty", Aliases: []string{"p"}, Usage: "Human readable output instead of raw JSON"},
		&cli.BoolFlag{Name: "last", Usage: "Mode: most recent N entries (default)"},
		&cli.BoolFlag{Name: "since", Usage: "Mode: entries since a start time"},
		&cli.BoolFlag{Name: "between", Usage: "Mode: entries between a start and an end time"},
		&cli.StringFlag{Name: "component", Usage: "Mode: most recent N entries of component `NAME`"},
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "Entries for --last and --component `NUMBER`", Value: log.DefaultLimit},
		&cli.StringFlag{Name: "start", Aliases: []string{"s"}, Usage: "Start `TIME_SPEC` for --since and --between"},
		&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "End `TIME_SPEC` for --between"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Max entries for --since and --between `NUMBER`", Value: 1000},
	},
	Action: logsCmd,
}

func logsCmd(c *cli.Context) error {
	modes := 0
	for _, m := range []string{"last", "since", "between", "component"} {
		if c.IsSet(m) {
			modes++
		}
	}
	if modes > 1 {
		return cli.Exit("Error: only one of --last, --since, --between and --component can be used.", 1)
	}

	if err := log.Init(c.String("dbfile")); err != nil {
		return cli.Exit(fmt.Sprintf("Error opening log database: %v", err), 1)
	}
	defer log.Close()

	now := time.Now()
	var (
		results []log.LogEntry
		err     error
	)
	switch {
	case c.Bool("since"):
		if !c.IsSet("start") {
			return cli.Exit("Error: --start (-s) is required for --since.", 1)
		}
		start, perr := parseTimeSpec(c.String("start"), now)
		if perr != nil {
			return cli.Exit(fmt.Sprintf("Error parsing start time: %v", perr), 1)
		}
		results, err = log.GetLogsSince(start, c.Int("limit"))
	case c.Bool("between"):
		if !c.IsSet("start") || !c.IsSet("end") {
			return cli.Exit("Error: --start (-s) and --end (-e) are required for --between.", 1)
		}
		start, perr := parseTimeSpec(c.String("start"), now)
		if perr != nil {
			return cli.Exit(fmt.Sprintf("Error parsing start time: %v", perr), 1)
		}
		end, perr := parseTimeSpec(c.String("end"), now)
		if perr != nil {
			return cli.Exit(fmt.Sprintf("Error parsing end time: %v", perr), 1)
		}
		if start.After(end) {
			fmt.Fprintf(os.Stderr, "Warning: start (%s) is after end (%s).\n", start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		results, err = log.GetLogsBetween(start, end, c.Int("limit"))
	case c.IsSet("component"):
		results, err = log.GetComponentLogs(c.String("component"), c.Int("count"))
	default:
		if c.Int("count") <= 0 {
			return cli.Exit("Error: --count (-n) must be positive.", 1)
		}
		results, err = log.GetLastNLogs(c.Int("count"))
	}
	if err != nil {
		if errors.Is(err, log.ErrNotInitialized) {
			return cli.Exit("Internal error: log database handle unavailable.", 2)
		}
		return cli.Exit(fmt.Sprintf("Error reading logs: %v", err), 1)
	}

	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "No log entries match.")
		return nil
	}
	if c.Bool("pretty") {
		pretty := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
		for _, e := range results {
			if _, err := pretty.Write([]byte(e.LogData)); err != nil {
				fmt.Println(e.LogData)
			}
		}
		return nil
	}
	for _, e := range results {
		fmt.Println(e.LogData)
	}
	return nil
}
