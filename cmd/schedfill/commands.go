package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"

	"schedfill/internal/config"
	"schedfill/internal/fill"
	appLog "schedfill/internal/log"
	"schedfill/internal/model"
	"schedfill/internal/schedule"
	"schedfill/internal/surface"
	"schedfill/internal/surface/browser"
	"schedfill/internal/surface/dom"
	"schedfill/internal/watch"
	"schedfill/internal/web"
)

func fillCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	url := fs.String("url", "", "Scheduling page URL (overrides config)")
	asJSON := fs.Bool("json", false, "Print the report as JSON")

	return func(ctx context.Context, e *env) error {
		if *url != "" {
			e.cfg.URL = *url
		}
		text, err := e.readText(ctx)
		if err != nil {
			return err
		}
		events := schedule.Parse(text)
		if len(events) == 0 {
			appLog.Warn("no events found in input", "in", e.in)
		}

		tab, err := openTab(ctx, e.cfg)
		if err != nil {
			return err
		}
		defer tab.Close()

		proc, err := newProcessor(tab, tab, e.cfg)
		if err != nil {
			return err
		}

		report := proc.Run(ctx, events)
		if err := printReport(report, *asJSON); err != nil {
			return err
		}
		if len(report.Errors) > 0 {
			return errFailedEvents
		}
		return nil
	}
}

func planCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	htmlPath := fs.String("html", "", "Plan against a saved HTML snapshot instead of the live page")
	asJSON := fs.Bool("json", false, "Print the plan as JSON")

	return func(ctx context.Context, e *env) error {
		text, err := e.readText(ctx)
		if err != nil {
			return err
		}
		events := schedule.Parse(text)

		var s surface.Surface
		if *htmlPath != "" {
			doc, err := dom.LoadFile(*htmlPath)
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			s = doc
		} else {
			tab, err := openTab(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer tab.Close()
			s = tab
		}

		proc, err := newProcessor(s, nil, e.cfg)
		if err != nil {
			return err
		}
		items := proc.Plan(ctx, events)

		if *asJSON {
			return writeJSON(items)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACTION\tEVENT\tNOTE")
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Action, it.Event.String(), it.Message)
		}
		return tw.Flush()
	}
}

func parseCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		text, err := e.readText(ctx)
		if err != nil {
			return err
		}
		return writeJSON(schedule.Parse(text))
	}
}

func generateCmd(_ *flag.FlagSet) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		text, err := e.readText(ctx)
		if err != nil {
			return err
		}
		lines, err := schedule.Generate(text)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Println(l)
		}
		return nil
	}
}

func exportCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	out := fs.String("out", "./ics", "Directory to write calendars into")
	title := fs.String("title", "", "SUMMARY of every exported event")

	return func(ctx context.Context, e *env) error {
		text, err := e.readText(ctx)
		if err != nil {
			return err
		}
		events := schedule.Parse(text)
		if len(events) == 0 {
			return errors.New("no events found in input")
		}
		paths, err := schedule.ExportDir(*out, events, schedule.ExportOptions{
			Title:    *title,
			Location: e.cfg.Location(),
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		appLog.Info("exported calendars", "dir", *out, "people", len(paths), "events", len(events))
		return nil
	}
}

func serveCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	listen := fs.String("listen", "", "HTTP listen address (overrides config)")

	return func(ctx context.Context, e *env) error {
		if *listen != "" {
			e.cfg.Listen = *listen
		}

		var runner web.Runner
		if e.cfg.URL != "" || e.cfg.Browser.RemoteURL != "" {
			tab, err := openTab(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer tab.Close()
			proc, err := newProcessor(tab, tab, e.cfg)
			if err != nil {
				return err
			}
			runner = proc
		} else {
			appLog.Warn("no url or browser.remote_url configured; fill and plan are disabled")
		}

		return web.StartServer(ctx, e.cfg, runner)
	}
}

func watchCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	refresh := fs.String("refresh", "", "Cron expression for timed runs (overrides config; \"off\" disables)")

	return func(ctx context.Context, e *env) error {
		expr := e.cfg.Refresh
		switch *refresh {
		case "":
		case "off":
			expr = ""
		default:
			expr = *refresh
		}

		tab, err := openTab(ctx, e.cfg)
		if err != nil {
			return err
		}
		defer tab.Close()

		proc, err := newProcessor(tab, tab, e.cfg)
		if err != nil {
			return err
		}

		w, err := watch.New(watch.Options{
			Source:   e.in,
			Refresh:  expr,
			Location: e.cfg.Location(),
			Fetcher:  e.fetcher,
		}, func(ctx context.Context, events []model.Event) {
			report := proc.Run(ctx, events)
			if err := printReport(report, false); err != nil {
				appLog.Error("failed to print report", err)
			}
		})
		if err != nil {
			return err
		}
		return w.Run(ctx)
	}
}

func openTab(ctx context.Context, cfg *config.Config) (*browser.Tab, error) {
	if cfg.URL == "" && cfg.Browser.RemoteURL == "" {
		return nil, errors.New("set url (or browser.remote_url) in the config")
	}
	return browser.Open(ctx, browser.Options{
		URL:         cfg.URL,
		RemoteURL:   cfg.Browser.RemoteURL,
		UserDataDir: cfg.Browser.UserDataDir,
		ExecPath:    cfg.Browser.ExecPath,
		Headless:    cfg.Browser.Headless,
	})
}

// newProcessor builds the batch processor for s. When tab is non-nil and
// dump_dir is set, failed events leave a screenshot behind.
func newProcessor(s surface.Surface, tab *browser.Tab, cfg *config.Config) (*fill.Processor, error) {
	timings, err := cfg.FillTimings()
	if err != nil {
		return nil, err
	}
	var opts []fill.Option
	if tab != nil && cfg.DumpDir != "" {
		opts = append(opts, fill.WithFailureHook(screenshotHook(tab, cfg.DumpDir)))
	}
	return fill.NewProcessor(s, cfg.Selectors, timings, opts...), nil
}

func screenshotHook(tab *browser.Tab, dir string) fill.FailureHook {
	return func(ctx context.Context, ev model.Event, _ model.Outcome) {
		path := filepath.Join(dir, dumpName(ev, time.Now()))
		if err := tab.Screenshot(ctx, path); err != nil {
			appLog.Warn("failure screenshot not saved", "err", err, "event", ev.String())
			return
		}
		appLog.Info("saved failure screenshot", "path", path)
	}
}

// dumpName is a file name for a screenshot of ev taken at now.
func dumpName(ev model.Event, now time.Time) string {
	safe := func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
				return r
			}
			return '_'
		}, s)
	}
	return fmt.Sprintf("%s_%s_%s_%s_%s.png",
		now.Format("20060102-150405"),
		ev.Date,
		strings.ReplaceAll(ev.Start, ":", ""),
		safe(ev.Room),
		safe(ev.Name),
	)
}

func printReport(r *model.Report, asJSON bool) error {
	if asJSON {
		return writeJSON(r)
	}
	_, err := fmt.Print(r.String())
	return err
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
