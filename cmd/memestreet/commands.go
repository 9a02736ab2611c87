package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/internal/feed"
	"github.com/memestreet/marketsync/internal/pricing"
	"github.com/memestreet/marketsync/internal/services"
	"github.com/memestreet/marketsync/internal/session"
	"github.com/memestreet/marketsync/internal/trade"
	"github.com/memestreet/marketsync/ledger/types"
)

var errUsage = errors.New("invalid arguments, run without arguments for usage")

func cmdToken(ctx context.Context, m *services.MarketService, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	profile := session.Profile{}
	if len(args) > 1 {
		profile.Username = args[1]
	}
	if err := m.Login(ctx, args[0], profile); err != nil {
		return err
	}
	fmt.Printf("signed in, balance %s\n", m.Balance().Snapshot().Amount.StringFixed(2))
	return nil
}

func cmdLogout(_ context.Context, m *services.MarketService, _ []string) error {
	if err := m.Logout(); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

// waitFeed 等待当前 generation 加载结束
func waitFeed(ctx context.Context, p *feed.Paginator) (feed.State, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s := p.State()
		if s.Status == feed.StatusSuccess || s.Status == feed.StatusError {
			return s, s.Err
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ticker.C:
		}
	}
}

func cmdFeed(ctx context.Context, m *services.MarketService, args []string) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	category := fs.String("category", "", "category filter (all for none)")
	sortBy := fs.String("sort", "", "market_cap|price|volume|change|upvotes|newest")
	order := fs.String("order", "", "asc|desc")
	search := fs.String("search", "", "search text")
	pages := fs.Int("pages", 1, "number of pages to load")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var f feed.Filter
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "category":
			f.Category = category
		case "sort":
			k := types.SortKey(*sortBy)
			f.SortBy = &k
		case "order":
			o := types.SortOrder(*order)
			f.SortOrder = &o
		case "search":
			f.Search = search
		}
	})
	if err := m.SetFilter(f); err != nil {
		return err
	}

	s, err := waitFeed(ctx, m.Feed())
	for i := 1; err == nil && i < *pages && s.HasMore; i++ {
		if err = m.LoadMore(); err != nil {
			break
		}
		s, err = waitFeed(ctx, m.Feed())
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTICKER\tPRICE\t24H\tUP\tDOWN\tVOTE\tOFFERING")
	now := time.Now()
	for _, l := range s.Listings {
		vote := ""
		switch {
		case l.UserHasUpvoted:
			vote = "up"
		case l.UserHasDownvoted:
			vote = "down"
		}
		offering := ""
		if l.PrimaryOfferingActive(now) {
			offering = "ipo @ " + pricing.OfferingPrice(l).StringFixed(4)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s%%\t%d\t%d\t%s\t%s\n",
			l.ID, l.Ticker, l.CurrentPrice.StringFixed(4), l.PriceChangePercent24h.StringFixed(2),
			l.Upvotes, l.Downvotes, vote, offering)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d listings, page %d, more=%v\n", len(s.Listings), s.Page, s.HasMore)
	return nil
}

func cmdVote(ctx context.Context, m *services.MarketService, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	dir := domain.VoteDirection(args[1])
	if !dir.Valid() {
		return errUsage
	}
	// 投票只作用于已加载到列表中的资产
	if _, err := waitFeed(ctx, m.Feed()); err != nil {
		return err
	}
	_, pending, err := m.Vote(ctx, args[0], dir)
	if err != nil {
		return err
	}
	res, err := pending.Wait(ctx)
	if err != nil {
		return err
	}
	state := "removed"
	if res.Active {
		state = "active"
	}
	fmt.Printf("%s (%s vote %s, price %s)\n", res.Message, dir, state, res.NewPrice.StringFixed(4))
	return nil
}

func cmdBuy(ctx context.Context, m *services.MarketService, args []string) error {
	return runTrade(ctx, m, domain.SideBuy, args)
}

func cmdSell(ctx context.Context, m *services.MarketService, args []string) error {
	return runTrade(ctx, m, domain.SideSell, args)
}

func runTrade(ctx context.Context, m *services.MarketService, side domain.Side, args []string) error {
	fs := flag.NewFlagSet(string(side), flag.ContinueOnError)
	limitName := "max"
	if side == domain.SideSell {
		limitName = "min"
	}
	limit := fs.String(limitName, "", "limit price (defaults to the current price)")
	if len(args) < 2 {
		return errUsage
	}
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}
	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errUsage
	}

	ts, err := m.OpenTrade(ctx, args[0], side)
	if err != nil {
		return err
	}
	defer m.CloseTrade(ts)

	clamped, err := ts.SetQuantity(qty)
	if err != nil {
		return err
	}
	if clamped != qty {
		fmt.Fprintf(os.Stderr, "quantity limited to %d\n", clamped)
	}
	if *limit != "" {
		if err := ts.SetLimitPriceText(*limit); err != nil {
			return err
		}
	}

	q := ts.View().Quote
	fmt.Printf("%s %d @ %s (%s), total %s\n", side, q.Quantity, q.EffectivePrice.StringFixed(4), q.Mode, q.TotalCost.StringFixed(2))

	v, err := ts.Submit(ctx)
	if err != nil {
		if v.Kind != trade.KindNone && v.Message != "" {
			return errors.New(v.Message)
		}
		return err
	}
	fmt.Println(v.Message)
	fmt.Printf("balance %s\n", v.NewBalance.StringFixed(2))
	return nil
}

func cmdBalance(ctx context.Context, m *services.MarketService, _ []string) error {
	snap, err := m.WalletBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Println(snap.Amount.StringFixed(2))
	return nil
}

func cmdPortfolio(ctx context.Context, m *services.MarketService, _ []string) error {
	p, err := m.Portfolio().Get(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tQTY\tAVG\tPRICE\tVALUE\tP/L")
	for _, h := range p.Holdings {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s (%s%%)\n",
			h.Ticker, h.Quantity, h.AverageBuyPrice.StringFixed(4), h.CurrentPrice.StringFixed(4),
			h.CurrentValue.StringFixed(2), h.ProfitLoss.StringFixed(2), h.ProfitLossPercent.StringFixed(2))
	}
	if len(p.OpenOrders) > 0 {
		fmt.Fprintln(w, "\nORDER\tTICKER\tSIDE\tQTY\tPRICE\t")
		for _, o := range p.OpenOrders {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t\n", o.ID, o.Ticker, o.Side, o.Quantity, o.Price.StringFixed(4))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("wallet %s, portfolio %s, P/L %s (%s%%)\n",
		p.WalletBalance.StringFixed(2), p.PortfolioValue.StringFixed(2),
		p.TotalProfitLoss.StringFixed(2), p.TotalProfitLossPercent.StringFixed(2))
	return nil
}

func cmdCancel(ctx context.Context, m *services.MarketService, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	resp, p, err := m.Portfolio().CancelOrder(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(resp.Message)
	if p != nil {
		fmt.Printf("wallet %s, %d open orders\n", p.WalletBalance.StringFixed(2), len(p.OpenOrders))
	}
	return nil
}

func cmdHistory(ctx context.Context, m *services.MarketService, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 20, "transactions per page")
	kind := fs.String("type", "", "buy|sell")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !m.Session().IsAuthenticated() {
		return services.ErrUnauthenticated
	}
	h, err := m.Portfolio().History(ctx, types.HistoryParams{Page: *page, PerPage: *perPage, TransactionType: *kind})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTICKER\tTYPE\tQTY\tPRICE\tTOTAL")
	for _, tx := range h.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			tx.CreatedAt.Time.Local().Format("2006-01-02 15:04"), tx.Ticker, tx.TransactionType,
			tx.Quantity, tx.PricePerShare.StringFixed(4), tx.TotalAmount.StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("page %d of %d, %d transactions\n", h.Page, h.TotalPages, h.Total)
	return nil
}

func cmdCategories(ctx context.Context, m *services.MarketService, _ []string) error {
	cats, err := m.Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range cats {
		fmt.Printf("%-10s %s\n", c.Value, c.Label)
	}
	return nil
}

func cmdTrending(ctx context.Context, m *services.MarketService, _ []string) error {
	listings, err := m.Trending(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTICKER\tPRICE\t24H\tVOLUME")
	for _, l := range listings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s%%\t%s\n",
			l.ID, l.Ticker, l.CurrentPrice.StringFixed(4), l.PriceChangePercent24h.StringFixed(2), l.Volume24h.StringFixed(2))
	}
	return w.Flush()
}
