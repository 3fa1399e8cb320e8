/*
main.go - walletctl command-line client

PURPOSE:
  Drives the client-side benefit engine against a running wallet server.
  Every mutation goes through wallet.UsageLedger, so validation, the ignore
  guard and the commit timeout behave exactly as in any other client.

USAGE:
  walletctl [-url URL] [-user ID] <command> [args]

COMMANDS:
  summary                                  Dashboard totals
  eligibility                              Application-limit status
  cards                                    Held cards with current periods
  periods      <card> <benefit>            Every period of one benefit
  log-usage    <card> <benefit> <period> <amount>
  mark-full    <card> <benefit> <period>
  mark-to-date <card> <benefit>            Fill every period through today
  reset        <card> <benefit> <period>
  ignore       <card> <benefit>            Toggle the ignore flag
  anniversary  <card> <YYYY-MM-DD>
  add-card     <card> [YYYY-MM-DD]
  remove-card  <card>
  search       [-q text] [-issuer x] [-category x] [-max-fee n] [-sort name|fee|value]
  scenario     <id>                        Load a demo wallet
  watch                                    Print the summary on every snapshot

ENVIRONMENT:
  WALLET_URL, IGNORE_GUARD, COMMIT_TIMEOUT, MAX_PENDING_ATTEMPTS,
  ELIGIBILITY_WINDOW_MONTHS, ELIGIBILITY_LIMIT, LOG_LEVEL

SEE ALSO:
  - client/client.go: HTTP committer
  - wallet/ledger.go: Usage transitions
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/card-wallet/client"
	"github.com/warp/card-wallet/config"
	"github.com/warp/card-wallet/generic"
)

// clock is the CLI's source of "today".
var clock = generic.Today

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("walletctl", flag.ContinueOnError)
	fs.SetOutput(out)
	url := fs.String("url", cfg.WalletURL, "wallet server base URL")
	user := fs.String("user", "", "wallet user (server default when empty)")
	fs.Usage = func() { usage(out) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		usage(out)
		return flag.ErrHelp
	}

	level, _ := cfg.SlogLevel()
	config.NewLogger(os.Stderr, level, "walletctl", cfg.ServiceEnv)

	opts := []client.Option{}
	if *user != "" {
		opts = append(opts, client.WithUser(generic.UserID(*user)))
	}
	app := &cli{
		cfg:    cfg,
		client: client.New(*url, opts...),
		out:    out,
		now:    clock,
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", name)
	}
	if len(rest) < cmd.args {
		return fmt.Errorf("usage: walletctl %s %s", name, cmd.usage)
	}
	return cmd.run(ctx, app, rest)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: walletctl [-url URL] [-user ID] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-13s %s\n", name, commands[name].usage)
	}
}
