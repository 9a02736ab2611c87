package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/memestreet/marketsync/internal/services"
	"github.com/memestreet/marketsync/pkg/config"
	"github.com/memestreet/marketsync/pkg/logger"
)

const usage = `usage: memestreet [-config file] <command> [args]

commands:
  token <token> [username]     save a bearer credential
  logout                       clear the saved credential
  feed [flags]                 list memes (-category -sort -order -search -pages)
  vote <meme-id> up|down       toggle a vote
  buy <meme> <qty> [-max p]    buy shares by id or ticker (limit ignored during the initial offering)
  sell <meme> <qty> [-min p]
  balance                      wallet balance
  portfolio                    holdings and open orders
  cancel <order-id>            cancel an open order
  history [flags]              past transactions (-page -per-page -type buy|sell)
  categories                   list categories
  trending                     top memes by 24h volume
`

type command func(ctx context.Context, m *services.MarketService, args []string) error

var commands = map[string]command{
	"token":      cmdToken,
	"logout":     cmdLogout,
	"feed":       cmdFeed,
	"vote":       cmdVote,
	"buy":        cmdBuy,
	"sell":       cmdSell,
	"balance":    cmdBalance,
	"portfolio":  cmdPortfolio,
	"cancel":     cmdCancel,
	"history":    cmdHistory,
	"categories": cmdCategories,
	"trending":   cmdTrending,
}

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("MEMESTREET_CONFIG"), "config file (.yaml/.yml/.json)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Output:     os.Stderr,
	}); err != nil {
		fatal(err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := services.New(services.Options{Config: cfg})
	if err != nil {
		fatal(err)
	}
	if err := m.Start(ctx); err != nil {
		fatal(err)
	}
	runErr := cmd(ctx, m, flag.Args()[1:])

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Close(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	if runErr != nil {
		fatal(runErr)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
