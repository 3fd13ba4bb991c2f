package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/desktop/cache"
	"fintrack/internal/log"
	"fintrack/internal/reconcile"
	"fintrack/internal/storage"
)

type desktopApp struct {
	cfg    *config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	now    func() time.Time
	client *http.Client
}

func newDesktopApp(cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) *desktopApp {
	return &desktopApp{
		cfg:    cfg,
		logger: logger,
		in:     in,
		out:    out,
		now:    time.Now,
		client: &http.Client{Timeout: cfg.SyncTimeout + 20*time.Second},
	}
}

func (a *desktopApp) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

// parse returns errSkip when -h was requested.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errSkip
		}
		return fmt.Errorf("%s: %v: %w", fs.Name(), err, errUsage)
	}
	return nil
}

var errSkip = errors.New("skip")

func (a *desktopApp) openCache() (*cache.Cache, error) {
	return cache.Open(a.cfg.DesktopDBPath, cache.WithOwner(a.cfg.DesktopOwner), cache.WithClock(a.now))
}

func (a *desktopApp) runner(c *cache.Cache, interval time.Duration) *reconcile.Runner {
	logger := log.New(log.Config{Handler: a.logger.Handler(), Component: log.ComponentSync})
	remote := reconcile.NewHTTPRemote(a.cfg.RemoteURL, a.cfg.DesktopOwner, a.client)
	rec := reconcile.New(c, remote,
		reconcile.WithFetchTimeout(a.cfg.SyncTimeout),
		reconcile.WithLogger(logger),
		reconcile.WithClock(a.now))
	return reconcile.NewRunner(rec, c, interval)
}

func (a *desktopApp) add(ctx context.Context, args []string) error {
	fs := a.flags("add")
	amount := fs.String("amount", "", "signed amount, negative for expenses (required)")
	category := fs.String("category", "", "category; suggested from the description when empty")
	desc := fs.String("desc", "", "description")
	date := fs.String("date", "", "date as YYYY-MM-DD or RFC3339 (default now)")
	tags := fs.String("tags", "", "comma separated tags")
	if err := parse(fs, args); err != nil {
		return skipHelp(err)
	}
	if *amount == "" {
		return fmt.Errorf("add: -amount is required: %w", errUsage)
	}

	value, err := core.ParseAmount(*amount)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	tx := core.Transaction{
		Amount:      value,
		Category:    *category,
		Description: *desc,
		Tags:        strings.Split(*tags, ","),
	}
	if *date != "" {
		if tx.Date, err = api.ParseDate(*date); err != nil {
			return fmt.Errorf("add: invalid date %q", *date)
		}
	}
	if strings.TrimSpace(tx.Category) == "" {
		suggestion := cli.NewClassifier(a.logger, a.cfg.ClassifierRulesFile).Classify(tx.Description, tx.Amount)
		tx.Category = suggestion.Category
		note := ""
		if suggestion.NeedsReview() {
			note = " (low confidence, review it)"
		}
		a.printf("Category %s suggested: %s%s\n", suggestion.Category, suggestion.Reason, note)
	}

	c, err := a.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	saved, err := c.Add(ctx, tx)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	a.printf("Added %s %s %s (%s), not synced yet\n",
		string(saved.Type), core.FormatAmount(saved.Amount), saved.Category, saved.Date.Format(time.DateOnly))
	return nil
}

func (a *desktopApp) list(ctx context.Context, args []string) error {
	fs := a.flags("list")
	limit := fs.Int("limit", 20, "number of records to show")
	if err := parse(fs, args); err != nil {
		return skipHelp(err)
	}

	c, err := a.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	txs, err := c.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		a.printf("No transactions cached\n")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tAMOUNT\tCATEGORY\tDESCRIPTION\tSYNCED")
	for _, tx := range txs {
		synced := "no"
		if tx.Synced {
			synced = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tx.Date.Format(time.DateOnly), core.FormatAmount(tx.Amount), tx.Category, tx.Description, synced)
	}
	return w.Flush()
}

func (a *desktopApp) totals(ctx context.Context, args []string) error {
	fs := a.flags("totals")
	days := fs.Int("days", 30, "trailing window in days")
	if err := parse(fs, args); err != nil {
		return skipHelp(err)
	}
	if *days <= 0 {
		return fmt.Errorf("totals: -days must be positive: %w", errUsage)
	}

	c, err := a.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	t, err := c.Totals(ctx, a.now().UTC().AddDate(0, 0, -*days))
	if err != nil {
		return err
	}
	a.printf("Last %d days: %d transactions\nIncome:  %s\nExpense: %s\nNet:     %s\n",
		*days, t.Count, core.FormatAmount(t.Income), core.FormatAmount(t.Expense), core.FormatAmount(t.Net))
	return nil
}

func (a *desktopApp) sync(ctx context.Context, args []string) error {
	if err := parse(a.flags("sync"), args); err != nil {
		return skipHelp(err)
	}
	c, err := a.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	runner := a.runner(c, 0)
	res, err := runner.RunOnce(ctx)
	if err != nil {
		var partial *core.PartialCommitError
		if errors.As(err, &partial) {
			for _, f := range partial.Failed {
				a.printf("Rejected %s %s: %s\n", f.Tx.Date.Format(time.DateOnly), core.FormatAmount(f.Tx.Amount), f.Error)
			}
		}
		return fmt.Errorf("sync: %w", err)
	}
	a.printf("Synced: %d fetched, %d new locally, %d uploaded\n", res.Fetched, res.Inserted, res.Confirmed)
	return nil
}

func (a *desktopApp) watch(ctx context.Context, args []string) error {
	fs := a.flags("watch")
	interval := fs.Duration("interval", a.cfg.SyncInterval, "time between sync cycles")
	if err := parse(fs, args); err != nil {
		return skipHelp(err)
	}
	c, err := a.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	runner := a.runner(c, *interval)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	a.printf("Watching %s every %s, press Enter to sync now or Ctrl+C to stop\n", a.cfg.RemoteURL, *interval)
	forwardRefresh(ctx, a.in, runner)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return runner.Stop(stopCtx)
}

func (a *desktopApp) status(ctx context.Context, args []string) error {
	if err := parse(a.flags("status"), args); err != nil {
		return skipHelp(err)
	}
	c, err := a.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	pending, err := c.UnsyncedCount(ctx)
	if err != nil {
		return err
	}
	last, err := c.LastSync(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.printf("Last sync: never\n")
	case err != nil:
		return err
	default:
		a.printf("Last sync: %s (%s)\n%s\n", last.FinishedAt.Format(time.RFC3339), last.State, last.Message)
	}
	a.printf("Waiting for upload: %d\n", pending)
	return nil
}

type triggerer interface {
	Trigger()
}

// forwardRefresh calls Trigger once per line read from in and returns when ctx ends.
func forwardRefresh(ctx context.Context, in io.Reader, t triggerer) {
	lines := make(chan struct{})
	if in != nil {
		go func() {
			sc := bufio.NewScanner(in)
			for sc.Scan() {
				select {
				case lines <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-lines:
			t.Trigger()
		}
	}
}

func skipHelp(err error) error {
	if errors.Is(err, errSkip) {
		return nil
	}
	return err
}
