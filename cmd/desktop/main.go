// Command desktop is the offline-first client: it records transactions in a local
// cache and reconciles them with the transaction service.
//
// Usage:
//
//	desktop add -amount -12.50 [-category Groceries] [-desc text] [-date 2024-03-05] [-tags a,b]
//	desktop list [-limit 20]
//	desktop totals [-days 30]
//	desktop sync
//	desktop watch [-interval 5m]   (Enter syncs immediately)
//	desktop status
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/cli"
)

var errUsage = errors.New("usage: desktop <add|list|totals|sync|watch|status> [flags]")

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newDesktopApp(cfg, logger, os.Stdin, os.Stdout)
	if err := app.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (a *desktopApp) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := a.commands()[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
	return cmd(ctx, args[1:])
}

func (a *desktopApp) commands() map[string]func(context.Context, []string) error {
	return map[string]func(context.Context, []string) error{
		"add":    a.add,
		"list":   a.list,
		"totals": a.totals,
		"sync":   a.sync,
		"watch":  a.watch,
		"status": a.status,
	}
}

func (a *desktopApp) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
