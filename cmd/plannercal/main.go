package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"plannercal/internal/config"
	"plannercal/internal/ics"
	appLog "plannercal/internal/log"
	"plannercal/internal/recurrence"
	"plannercal/internal/refresh"
	"plannercal/internal/store"
	"plannercal/internal/web"
)

const version = "0.3.0"

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "plannercal",
		Usage:   "Calendar planner with recurring events and ICS subscriptions.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath(),
				Usage:   "Path to config file",
				EnvVars: []string{"PLANNERCAL_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			appLog.SetOutput(c.App.ErrWriter)
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			expandCommand(),
			importCommand(),
			refreshCommand(),
			hashPasswordCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLog.Error("plannercal failed", err)
		os.Exit(1)
	}
}

// loadConfig reads --config and applies the configured log level.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	conf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	return conf, nil
}

func sourcesFromConfig(conf *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(conf.Subscriptions))
	for _, sub := range conf.Subscriptions {
		out = append(out, ics.Source{ID: sub.ID, Name: sub.Name, URL: sub.URL, Color: sub.Color})
	}
	return out
}

func newRefresher(conf *config.Config, st *store.Store) *refresh.Refresher {
	fetcher := ics.NewFetcher(conf.CacheDir, &http.Client{Timeout: 30 * time.Second})
	return refresh.New(fetcher, st, sourcesFromConfig(conf))
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the subscription refresh schedule.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}
			if l := c.String("listen"); l != "" {
				conf.Listen = l
			}

			appLog.Info("effective config",
				"listen", conf.Listen,
				"database", conf.Database,
				"timezone", conf.Timezone,
				"refresh", conf.RefreshCron,
				"max_occurrences", conf.MaxOccurrences,
				"subscriptions", len(conf.Subscriptions),
			)

			st, err := store.Open(conf.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			srv := web.NewServer(conf, st)

			if len(conf.Subscriptions) > 0 {
				r := newRefresher(conf, st)
				r.OnChange = srv.Invalidate
				if err := r.Start(ctx, conf.RefreshCron); err != nil {
					return err
				}
				// Cancel first so in-flight fetches give up, then wait for
				// them before the store closes.
				defer func() {
					cancel()
					r.Stop()
				}()
			}

			err = srv.ListenAndServe(ctx)
			appLog.Info("plannercal exiting")
			return err
		},
	}
}

func expandCommand() *cli.Command {
	return &cli.Command{
		Name:  "expand",
		Usage: "Print the occurrences of a month.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "month", Usage: "Month as YYYY-MM (default: current month)"},
			&cli.BoolFlag{Name: "visible", Usage: "Only print occurrences inside the month itself"},
		},
		Action: func(c *cli.Context) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}
			loc, err := conf.Location()
			if err != nil {
				appLog.Warn("using UTC", "error", err)
			}

			var view recurrence.MonthView
			if m := c.String("month"); m != "" {
				if view, err = recurrence.ParseMonth(m, loc); err != nil {
					return err
				}
			} else {
				now := time.Now().In(loc)
				view = recurrence.MonthWindow(now.Year(), now.Month(), loc)
			}
			window := view.Query
			if c.Bool("visible") {
				window = view.Visible
			}

			st, err := store.Open(conf.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.ListWindow(c.Context, window.Start, window.End)
			if err != nil {
				return err
			}
			res := recurrence.Expander{MaxOccurrences: conf.MaxOccurrences}.Run(events, window.Start, window.End)

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "START\tEND\tID\tTITLE\tREPEATS")
			for _, occ := range res.Occurrences {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					occ.Start.In(loc).Format("2006-01-02 15:04"),
					occ.End.In(loc).Format("2006-01-02 15:04"),
					occ.ID(),
					occ.Event.Title,
					recurrence.Label(recurrence.Parse(occ.Event.RecurrenceRule)),
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(res.Truncated) > 0 {
				appLog.Warn("series stopped at the occurrence ceiling", "event_ids", strings.Join(res.Truncated, ","))
			}
			if len(res.Degraded) > 0 {
				appLog.Warn("malformed recurrence treated as non-recurring", "event_ids", strings.Join(res.Degraded, ","))
			}
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import an .ics file, replacing the events of a previous import of the same source.",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "Source ID (default: file:<basename>)"},
			&cli.StringFlag{Name: "color", Usage: "Color for the imported events"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("import: exactly one .ics file is required")
			}
			path := c.Args().First()

			conf, err := loadConfig(c)
			if err != nil {
				return err
			}

			body, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			src := ics.Source{
				ID:    c.String("source"),
				Name:  filepath.Base(path),
				URL:   path,
				Color: c.String("color"),
			}
			if src.ID == "" {
				src.ID = "file:" + src.Name
			}

			events, err := ics.ParseEvents(src, body)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}

			st, err := store.Open(conf.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.ReplaceSource(c.Context, src.ID, events); err != nil {
				return err
			}
			appLog.Info("imported calendar file", "path", path, "source", src.ID, "events", len(events))
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Fetch every configured subscription once and exit.",
		Action: func(c *cli.Context) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}
			if len(conf.Subscriptions) == 0 {
				appLog.Info("no subscriptions configured")
				return nil
			}

			st, err := store.Open(conf.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			return newRefresher(conf, st).RefreshOnce(c.Context)
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "Print a bcrypt hash for basic_auth.password_hash.",
		ArgsUsage: "PASSWORD",
		Action: func(c *cli.Context) error {
			pw := c.Args().First()
			if pw == "" {
				return errors.New("hash-password: a password is required")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			fmt.Fprintln(c.App.Writer, string(hash))
			return nil
		},
	}
}
