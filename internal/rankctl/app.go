// Package rankctl implements the rankd admin command line.
package rankctl

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
)

const defaultTimeout = 10 * time.Second

// NewApp builds the CLI. Output goes to out.
func NewApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "rankctl",
		Usage:     "administer a rankd server",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:9080", Usage: "base URL of the server", EnvVars: []string{"RANKD_URL"}},
			&cli.StringFlag{Name: "api-key", Usage: "key for job submission", EnvVars: []string{"RANKD_API_KEY"}},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "HTTP request timeout"},
		},
		Commands: []*cli.Command{
			jobCommand("restore", "restore_stats", "recompute a player's stats in every mode"),
			jobCommand("restore-hidden", "restore_hidden", "resolve a player's hidden scores"),
			rankCommand(),
			topCommand(),
			countriesCommand(),
		},
	}
}

func client(c *cli.Context) *Client {
	return NewClient(c.String("url"), c.String("api-key"), c.Duration("timeout"))
}

func playerArg(c *cli.Context) (int64, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("%w: expected one player id", ErrUsage)
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid player id %q", ErrUsage, c.Args().First())
	}
	return id, nil
}

var (
	modeFlag    = &cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "std, taiko, catch or mania"}
	metricFlag  = &cli.StringFlag{Name: "metric", Usage: "ranking metric, default performance"}
	countryFlag = &cli.StringFlag{Name: "country", Aliases: []string{"c"}, Usage: "country code for a country ranking"}
)

func jobCommand(name, kind, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<player-id>...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("%w: expected player ids", ErrUsage)
			}
			api := client(c)
			for _, raw := range c.Args().Slice() {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("%w: invalid player id %q", ErrUsage, raw)
				}
				res, err := api.SubmitJob(c.Context, kind, id, "")
				if err != nil {
					return err
				}
				if res.Coalesced {
					fmt.Fprintf(c.App.Writer, "%d: already pending\n", id)
					continue
				}
				fmt.Fprintf(c.App.Writer, "%d: queued %s\n", id, res.JobID)
			}
			return nil
		},
	}
}

func rankCommand() *cli.Command {
	return &cli.Command{
		Name:      "rank",
		Usage:     "show a player's rank",
		ArgsUsage: "<player-id>",
		Flags:     []cli.Flag{modeFlag, metricFlag, countryFlag},
		Action: func(c *cli.Context) error {
			id, err := playerArg(c)
			if err != nil {
				return err
			}
			e, err := client(c).Rank(c.Context, id, c.String("mode"), c.String("metric"), c.String("country"))
			if err != nil {
				return err
			}
			if e.Rank == 0 {
				fmt.Fprintf(c.App.Writer, "player %d is unranked\n", e.PlayerID)
				return nil
			}
			fmt.Fprintf(c.App.Writer, "#%d player %d %.2f\n", e.Rank, e.PlayerID, e.Value)
			return nil
		},
	}
}

func topCommand() *cli.Command {
	return &cli.Command{
		Name:  "top",
		Usage: "list the top of a ranking",
		Flags: []cli.Flag{
			modeFlag, metricFlag, countryFlag,
			&cli.IntFlag{Name: "offset", Usage: "entries to skip"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 50, Usage: "entries to show"},
		},
		Action: func(c *cli.Context) error {
			page, err := client(c).Top(c.Context, c.String("mode"), c.String("metric"), c.String("country"), c.Int("offset"), c.Int("limit"))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tPLAYER\tVALUE")
			for _, e := range page.Entries {
				fmt.Fprintf(tw, "%d\t%d\t%.2f\n", e.Rank, e.PlayerID, e.Value)
			}
			fmt.Fprintf(tw, "\t%d ranked\t\n", page.Total)
			return tw.Flush()
		},
	}
}

func countriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "countries",
		Usage: "list countries by total performance",
		Flags: []cli.Flag{modeFlag},
		Action: func(c *cli.Context) error {
			list, err := client(c).Countries(c.Context, c.String("mode"))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COUNTRY\tPLAYERS\tPERFORMANCE\tAVERAGE")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\n", s.Country, s.Players, s.Performance, s.AverageRating)
			}
			return tw.Flush()
		},
	}
}
