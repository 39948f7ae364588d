// Command distctl drives the distribution console's stores from the command
// line: it validates and submits preset files, tracks the resulting
// distribution and lists or exports the submission history.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"distconsole/internal/config"
	"distconsole/internal/constructor"
	"distconsole/internal/distribution"
	apperrors "distconsole/internal/errors"
	"distconsole/internal/exporter"
	"distconsole/internal/history"
	"distconsole/internal/infrastructure"
	"distconsole/internal/preset"
	"distconsole/internal/upstream"
	"distconsole/pkg/contracts"
	"distconsole/pkg/contracts/domain"
)

const usage = `usage: distctl [flags] <command> [args]

commands:
  validate <preset>   check a preset and print the submission payload
  submit <preset>     submit a preset and wait for the distribution to settle
  status [id]         show a distribution, the latest one when id is omitted
  history             list past submissions, or export them with -out
  dump <preset>       print a preset in the YAML layout

flags:
`

type options struct {
	configFile string
	upstream   string
	dataframe  string
	interval   time.Duration
	timeout    time.Duration
	out        string
	format     string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "distctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	ctx = infrastructure.EnsureTraceID(ctx)
	fs := flag.NewFlagSet("distctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configFile, "config", os.Getenv(config.EnvPrefix+"_CONFIG_FILE"), "YAML config file")
	fs.StringVar(&opts.upstream, "upstream", "", "data-source API base URL, overrides the config")
	fs.StringVar(&opts.dataframe, "dataframe", "", "dataframe to submit against, overrides the preset and the config")
	fs.DurationVar(&opts.interval, "interval", 2*time.Second, "refresh interval while a distribution is pending")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "stop waiting for a distribution after this long")
	fs.StringVar(&opts.out, "out", "", "history: write an export to this file")
	fs.StringVar(&opts.format, "format", "", "history: export format, csv or xlsx (default from -out extension)")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	showVersion := fs.Bool("version", false, "print the version and exit")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintln(stdout, contracts.GetFullVersionString("distctl"))
		return nil
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	c, err := newCLI(cfg, opts, logger, stdout)
	if err != nil {
		return err
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "validate":
		path, err := single(command, rest)
		if err != nil {
			return err
		}
		return c.validate(path)
	case "submit":
		path, err := single(command, rest)
		if err != nil {
			return err
		}
		return c.submit(ctx, path)
	case "status":
		if len(rest) > 1 {
			return fmt.Errorf("status takes at most one distribution id")
		}
		id := ""
		if len(rest) == 1 {
			id = rest[0]
		}
		return c.status(ctx, id)
	case "history":
		return c.history(ctx)
	case "dump":
		path, err := single(command, rest)
		if err != nil {
			return err
		}
		return c.dump(path)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func single(command string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s takes exactly one preset file", command)
	}
	return args[0], nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.upstream != "" {
		cfg.Upstream.BaseURL = opts.upstream
	}
	cfg.Logging.Output = "console"
	cfg.Logging.Format = "text"
	cfg.Logging.Level = opts.logLevel
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type cli struct {
	cfg      *config.Config
	opts     options
	client   *upstream.Client
	builder  *constructor.Builder
	store    *history.Store
	machine  *distribution.Machine
	poller   *distribution.Poller
	exporter *exporter.Exporter
	out      io.Writer
	logger   *slog.Logger
}

func newCLI(cfg *config.Config, opts options, logger *slog.Logger, out io.Writer) (*cli, error) {
	client, err := upstream.New(cfg.Upstream, logger)
	if err != nil {
		return nil, err
	}
	store := history.NewStore(client, nil, logger)
	machine := distribution.NewMachine(client, store, nil, nil, logger)
	return &cli{
		cfg:      cfg,
		opts:     opts,
		client:   client,
		builder:  constructor.NewBuilder(client, logger),
		store:    store,
		machine:  machine,
		poller:   distribution.NewPoller(machine, opts.interval, logger),
		exporter: exporter.New(logger),
		out:      out,
		logger:   logger,
	}, nil
}

// load reads path into the builder, validates it and returns the preset's
// dataframe with the submission payload
func (c *cli) load(path string) (string, domain.ConfigurationSet, error) {
	p, err := preset.LoadFile(path)
	if err != nil {
		return "", domain.ConfigurationSet{}, err
	}
	if err := c.builder.Load(p.Set); err != nil {
		return "", domain.ConfigurationSet{}, c.reportValidation(err)
	}
	set, err := c.builder.Serialize()
	if err != nil {
		return "", domain.ConfigurationSet{}, c.reportValidation(err)
	}
	return p.Dataframe, set, nil
}

func (c *cli) reportValidation(err error) error {
	var verrs *apperrors.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, v := range verrs.Errors {
		fmt.Fprintf(c.out, "invalid %s: %s\n", v.Field, v.Message)
	}
	return fmt.Errorf("preset has %d validation error(s)", len(verrs.Errors))
}

func (c *cli) validate(path string) error {
	_, set, err := c.load(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}

func (c *cli) submit(ctx context.Context, path string) error {
	var dataframe string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		df, _, err := c.load(path)
		dataframe = df
		return err
	})
	g.Go(func() error {
		return c.client.Ping(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	switch {
	case c.opts.dataframe != "":
		dataframe = c.opts.dataframe
	case dataframe == "":
		dataframe = c.cfg.Upstream.DefaultDataframe
	}
	if dataframe == "" {
		return fmt.Errorf("no dataframe: set -dataframe, the preset's dataframe or the configured default")
	}

	result, err := c.builder.Submit(ctx, dataframe)
	if err != nil {
		return c.reportValidation(err)
	}
	fmt.Fprintf(c.out, "submitted %d configuration(s) to %s: %s\n", c.builder.Len(), dataframe, result.Message)
	if result.ConfigID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	if err := c.machine.Fetch(ctx, result.ConfigID); err != nil {
		return err
	}
	view, err := c.poller.Until(ctx)
	c.printSnapshot(c.machine.Snapshot())
	if err != nil {
		return fmt.Errorf("waiting for distribution %s: %w", result.ConfigID, err)
	}
	if view.Status == distribution.ViewFailure {
		return fmt.Errorf("distribution %s failed", result.ConfigID)
	}
	return nil
}

func (c *cli) status(ctx context.Context, id string) error {
	if err := c.machine.Fetch(ctx, id); err != nil {
		return err
	}
	snap := c.machine.Snapshot()
	if snap.Empty {
		fmt.Fprintln(c.out, "no distributions yet")
		return nil
	}
	c.printSnapshot(snap)
	return nil
}

func (c *cli) printSnapshot(snap distribution.Snapshot) {
	fmt.Fprintln(c.out, snap.Title)
	if snap.Description != "" {
		fmt.Fprintln(c.out, snap.Description)
	}
	fmt.Fprintf(c.out, "status: %s", snap.View.Status)
	if snap.View.Disagreement {
		fmt.Fprintf(c.out, " (server reports %s)", snap.View.Server)
	}
	fmt.Fprintln(c.out)
	if res := snap.Item.Artifacts(); res != nil {
		if res.DistributedBills != "" {
			fmt.Fprintf(c.out, "distributed bills: %s\n", res.DistributedBills)
		}
		if res.ExportDistributedBills != "" {
			fmt.Fprintf(c.out, "export: %s\n", res.ExportDistributedBills)
		}
	}
}

func (c *cli) history(ctx context.Context) error {
	if err := c.store.Load(ctx); err != nil {
		return err
	}
	entries := c.store.Entries()

	if c.opts.out != "" {
		return c.exportHistory(ctx)
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no distributions yet")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONFIG ID\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.ConfigID, e.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (c *cli) exportHistory(ctx context.Context) error {
	raw := c.opts.format
	if raw == "" {
		raw = strings.TrimPrefix(filepath.Ext(c.opts.out), ".")
	}
	format, err := exporter.ParseFormat(raw)
	if err != nil {
		return err
	}

	f, err := os.Create(c.opts.out)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.opts.out, err)
	}
	if err := c.exporter.Write(ctx, f, format, exporter.HistoryTable(c.store.Entries())); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "wrote %d entries to %s\n", c.store.Len(), c.opts.out)
	return nil
}

func (c *cli) dump(path string) error {
	p, err := preset.LoadFile(path)
	if err != nil {
		return err
	}
	return preset.WriteYAML(c.out, p)
}
