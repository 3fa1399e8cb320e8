package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/warp/card-wallet/client"
	"github.com/warp/card-wallet/config"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

type cli struct {
	cfg    *config.Config
	client *client.Client
	out    io.Writer
	now    func() generic.Date

	catalog *wallet.Catalog
	state   *wallet.State
	ledger  *wallet.UsageLedger
}

type command struct {
	usage string
	args  int // minimum positional args
	run   func(ctx context.Context, c *cli, args []string) error
}

var commandOrder = []string{
	"summary", "eligibility", "cards", "periods",
	"log-usage", "mark-full", "mark-to-date", "reset", "ignore",
	"anniversary", "add-card", "remove-card",
	"search", "scenario", "watch",
}

var commands = map[string]command{
	"summary":      {"", 0, runSummary},
	"eligibility":  {"", 0, runEligibility},
	"cards":        {"", 0, runCards},
	"periods":      {"<card> <benefit>", 2, runPeriods},
	"log-usage":    {"<card> <benefit> <period> <amount>", 4, runLogUsage},
	"mark-full":    {"<card> <benefit> <period>", 3, runMarkFull},
	"mark-to-date": {"<card> <benefit>", 2, runMarkToDate},
	"reset":        {"<card> <benefit> <period>", 3, runReset},
	"ignore":       {"<card> <benefit>", 2, runIgnore},
	"anniversary":  {"<card> <YYYY-MM-DD>", 2, runAnniversary},
	"add-card":     {"<card> [YYYY-MM-DD]", 1, runAddCard},
	"remove-card":  {"<card>", 1, runRemoveCard},
	"search":       {"[-q text] [-issuer x] [-category x] [-max-fee n] [-sort name|fee|value]", 0, runSearch},
	"scenario":     {"<id>", 1, runScenario},
	"watch":        {"", 0, runWatch},
}

// engine loads the catalog and the confirmed snapshot, then builds the
// ledger every mutation goes through.
func (c *cli) engine(ctx context.Context) error {
	if c.ledger != nil {
		return nil
	}
	catalog, err := c.client.FetchCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	state := wallet.NewState(c.cfg.MaxPendingAttempts)
	if _, err := c.client.Sync(ctx, state); err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	c.catalog = catalog
	c.state = state
	c.ledger = wallet.NewUsageLedger(catalog, state, c.client,
		wallet.WithIgnoreGuard(c.cfg.Guard()),
		wallet.WithCommitTimeout(c.cfg.CommitTimeout),
		wallet.WithClock(c.now),
	)
	return nil
}

// =============================================================================
// READ COMMANDS
// =============================================================================

func runSummary(ctx context.Context, c *cli, _ []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	printSummary(c.out, wallet.Summarize(c.state.View(), c.catalog, c.now()))
	return nil
}

func printSummary(w io.Writer, s wallet.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "As of\t%s\n", s.AsOf)
	fmt.Fprintf(tw, "Cards\t%d\n", s.CardCount)
	fmt.Fprintf(tw, "Credits used\t%s\n", s.CreditsUsed)
	fmt.Fprintf(tw, "Annual fees\t%s\n", s.AnnualFees)
	fmt.Fprintf(tw, "YTD potential\t%s\n", s.YtdPotential)
	fmt.Fprintf(tw, "Net\t%s\n", s.NetPerformance)
	tw.Flush()
}

func runEligibility(ctx context.Context, c *cli, _ []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	e := wallet.WalletEligibility(c.state.View(), c.cfg.EligibilityRule(), c.now())
	fmt.Fprintf(c.out, "%d/%d cards opened in the last %d months\n", e.Count, e.Limit, e.WindowMonths)
	if e.Eligible {
		fmt.Fprintln(c.out, "Eligible")
		return nil
	}
	fmt.Fprintf(c.out, "Not eligible until %s\n", e.NextEligibleDate)
	return nil
}

func runCards(ctx context.Context, c *cli, _ []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	now := c.now()
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CARD\tBENEFIT\tPERIOD\tUSED\tREMAINING\tSTATUS")
	for _, h := range c.state.View() {
		card, ok := c.catalog.Card(h.CardID)
		if !ok {
			continue
		}
		v := wallet.ViewCard(h, card, now)
		for _, b := range v.Benefits {
			if b.Current == nil {
				continue
			}
			status := string(b.Current.Status)
			if b.IsIgnored {
				status = "ignored"
			}
			fmt.Fprintf(tw, "%s\t%d %s\t%s\t%s\t%s\t%s\n",
				card.ID, b.Benefit.Index, b.Benefit.Name, b.Current.Key,
				b.Current.Used, b.Current.Remaining, status)
		}
	}
	return tw.Flush()
}

func runPeriods(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	cardID, idx, err := parseTarget(args)
	if err != nil {
		return err
	}
	_, b, err := c.catalog.Lookup(cardID, idx)
	if err != nil {
		return err
	}
	h, ok := c.state.Holding(cardID)
	if !ok {
		return &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLABEL\tMAX\tUSED\tSTATUS")
	for _, p := range wallet.PeriodsFor(h, b, c.now()) {
		marker := ""
		if p.IsCurrent {
			marker = " *"
		}
		if !p.IsAvailable {
			marker = " (n/a)"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\n", p.Key, marker, p.Label, p.MaxValue, p.Used, p.Status)
	}
	return tw.Flush()
}

func runSearch(ctx context.Context, c *cli, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(c.out)
	q := fs.String("q", "", "match name, issuer or category")
	issuer := fs.String("issuer", "", "issuer")
	category := fs.String("category", "", "category")
	maxFee := fs.String("max-fee", "", "highest annual fee")
	sortBy := fs.String("sort", string(wallet.SortByName), "name, fee or value")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := wallet.CardFilter{Query: *q, Issuer: *issuer, Category: *category}
	if *maxFee != "" {
		fee, err := generic.ParseMoney(*maxFee)
		if err != nil {
			return &generic.ValidationError{Field: "max-fee", Message: "not a number", Value: *maxFee}
		}
		filter.MaxFee = &fee
	}

	catalog, err := c.client.FetchCatalog(ctx)
	if err != nil {
		return err
	}
	cards := wallet.FilterCards(catalog.Cards(), filter)
	wallet.SortCards(cards, wallet.SortKey(*sortBy))

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tISSUER\tFEE\tVALUE")
	for _, card := range cards {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", card.ID, card.Name, card.Issuer, card.AnnualFee, card.TotalBenefitValue())
	}
	return tw.Flush()
}

// =============================================================================
// MUTATION COMMANDS
// =============================================================================

func runLogUsage(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	cardID, idx, err := parseTarget(args)
	if err != nil {
		return err
	}
	amount, err := generic.ParseMoney(args[3])
	if err != nil {
		return &generic.ValidationError{Field: "amount", Message: "not a number", Value: args[3]}
	}
	rec, err := c.ledger.LogUsage(ctx, cardID, idx, generic.PeriodKey(args[2]), amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s: %s (%s)\n", cardID, args[2], rec.Used, rec.Status)
	return nil
}

func runMarkFull(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	cardID, idx, err := parseTarget(args)
	if err != nil {
		return err
	}
	rec, err := c.ledger.MarkFull(ctx, cardID, idx, generic.PeriodKey(args[2]))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s: %s (%s)\n", cardID, args[2], rec.Used, rec.Status)
	return nil
}

func runReset(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	cardID, idx, err := parseTarget(args)
	if err != nil {
		return err
	}
	if _, err := c.ledger.Reset(ctx, cardID, idx, generic.PeriodKey(args[2])); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s: reset\n", cardID, args[2])
	return nil
}

func runMarkToDate(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	cardID, idx, err := parseTarget(args)
	if err != nil {
		return err
	}
	result, err := c.ledger.MarkFullToDate(ctx, cardID, idx)
	fmt.Fprintf(c.out, "Marked %d periods full, added %s\n", len(result.Affected), result.TotalAdded)
	for _, key := range result.Failed {
		fmt.Fprintf(c.out, "  failed: %s\n", key)
	}
	return err
}

func runIgnore(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	cardID, idx, err := parseTarget(args)
	if err != nil {
		return err
	}
	ignored, err := c.ledger.ToggleIgnore(ctx, cardID, idx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s benefit %d ignored: %t\n", cardID, idx, ignored)
	return nil
}

func runAnniversary(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	date, err := c.ledger.UpdateAnniversary(ctx, generic.CardID(args[0]), args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s anniversary: %s\n", args[0], date)
	return nil
}

func runAddCard(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	anniversary := ""
	if len(args) > 1 {
		anniversary = args[1]
	}
	p, err := c.ledger.AddCard(ctx, generic.CardID(args[0]), anniversary)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added %s\n", args[0])
	printPersonality(c.out, p)
	return nil
}

func runRemoveCard(ctx context.Context, c *cli, args []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	p, err := c.ledger.RemoveCard(ctx, generic.CardID(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Removed %s\n", args[0])
	printPersonality(c.out, p)
	return nil
}

func runScenario(ctx context.Context, c *cli, args []string) error {
	p, err := c.client.LoadScenario(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Loaded %s\n", args[0])
	printPersonality(c.out, p)
	return nil
}

// =============================================================================
// STREAM
// =============================================================================

func runWatch(ctx context.Context, c *cli, _ []string) error {
	if err := c.engine(ctx); err != nil {
		return err
	}
	return c.client.SubscribeWithRetry(ctx, c.state, func(_ []wallet.Holding, discarded []wallet.DiscardedChange) {
		for _, d := range discarded {
			fmt.Fprintf(c.out, "discarded: %s\n", d.Error())
		}
		printSummary(c.out, wallet.Summarize(c.state.View(), c.catalog, c.now()))
		fmt.Fprintln(c.out)
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseTarget(args []string) (generic.CardID, generic.BenefitIndex, error) {
	n, err := strconv.Atoi(args[1])
	if err != nil {
		idx, err := wallet.ParseBenefitDocumentKey(args[1])
		return generic.CardID(args[0]), idx, err
	}
	if n < 0 {
		return "", 0, &generic.ValidationError{Field: "benefit", Message: "must not be negative", Value: args[1]}
	}
	return generic.CardID(args[0]), generic.BenefitIndex(n), nil
}

func printPersonality(w io.Writer, p *generic.Personality) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "Personality: %s (%.0f%%)\n", p.ID, p.MatchScore*100)
}
