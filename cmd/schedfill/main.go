package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"schedfill/internal/config"
	appLog "schedfill/internal/log"
	"schedfill/internal/schedule"
)

const version = "0.3.0"

// errFailedEvents makes main exit with status 1 after a complete run.
var errFailedEvents = errors.New("one or more events failed")

// env is what every command body gets after flags and config are loaded.
type env struct {
	cfg     *config.Config
	in      string
	fetcher *schedule.Fetcher
}

// readText reads the -in source.
func (e *env) readText(ctx context.Context) (string, error) {
	text, err := schedule.ReadInput(ctx, e.fetcher, e.in)
	if err != nil {
		return "", fmt.Errorf("read input %s: %w", e.in, err)
	}
	return text, nil
}

type command struct {
	name    string
	summary string
	// setup registers the command's own flags and returns its body.
	setup func(fs *flag.FlagSet) func(ctx context.Context, e *env) error
}

var commands = []command{
	{"fill", "fill the scheduling page from schedule text (default)", fillCmd},
	{"plan", "show what fill would do without opening any dialog", planCmd},
	{"parse", "print the events parsed from schedule text as JSON", parseCmd},
	{"generate", "expand a compact slot description into slot header lines", generateCmd},
	{"export", "write one .ics calendar per person", exportCmd},
	{"serve", "serve the local control panel", serveCmd},
	{"watch", "re-run fill on a schedule and when the input changes", watchCmd},
}

func main() {
	name, args := "fill", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}

	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "schedfill: unknown command %q\n\n", name)
		printUsage()
		os.Exit(2)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	err := dispatch(ctx, cmd, args)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	case errors.Is(err, errFailedEvents):
		os.Exit(1)
	default:
		appLog.Error("command failed", err, "command", cmd.name)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, cmd command, args []string) error {
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	configPath := fs.String("config", "./schedfill.yaml", "Path to config file")
	in := fs.String("in", "-", "Schedule input: file path, http(s) URL, or - for stdin")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (overrides config)")
	body := cmd.setup(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "schedfill %s: unexpected arguments %v\n", cmd.name, fs.Args())
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", *configPath, err)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	appLog.Info("schedfill starting",
		"version", version,
		"command", cmd.name,
		"config_path", *configPath,
		"in", *in,
	)

	e := &env{
		cfg:     cfg,
		in:      *in,
		fetcher: schedule.NewFetcher(cfg.CacheDir),
	}

	started := time.Now()
	err = body(ctx, e)
	appLog.Debug("command finished", "command", cmd.name, "elapsed", time.Since(started))
	return err
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: schedfill [command] [flags]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr, "\nrun 'schedfill <command> -h' for command flags")
}
