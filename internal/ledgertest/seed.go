package ledgertest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/ledger/types"
)

// DemoToken 演示账户的 bearer 凭证
const DemoToken = "demo-token"

// Seed 写入演示数据：若干资产（部分处于首发期）和一个演示账户
func Seed(l *Ledger, now time.Time) {
	type seed struct {
		ticker, name, category string
		price                  string
		shares                 int64
		ipo                    bool
	}
	seeds := []seed{
		{"DOGE", "Doge", "animals", "1.20", 1000, false},
		{"PEPE", "Pepe the Frog", "classic", "0.85", 1500, false},
		{"NYAN", "Nyan Cat", "animals", "2.10", 800, true},
		{"GG", "Good Game", "gaming", "0.40", 2000, false},
		{"HODL", "HODL", "crypto", "3.50", 500, true},
		{"FACEPALM", "Facepalm", "reaction", "0.65", 1200, false},
		{"RICK", "Rickroll", "classic", "1.05", 900, false},
		{"STONKS", "Stonks", "crypto", "4.20", 700, false},
	}
	for i, s := range seeds {
		price := decimal.RequireFromString(s.price)
		m := types.Meme{
			ID:              fmt.Sprintf("meme-%d", i+1),
			Ticker:          s.ticker,
			Name:            s.name,
			Category:        s.category,
			CurrentPrice:    price,
			AvailableShares: s.shares,
			TotalShares:     s.shares,
			Volume24h:       price.Mul(decimal.NewFromInt(int64(10 * (i + 1)))),
			CreatedAt:       types.NewTimestamp(now.Add(-time.Duration(len(seeds)-i) * time.Hour)),
		}
		if s.ipo {
			remaining := s.shares / 2
			ipoPrice := price
			m.IPOEndAt = types.NewTimestamp(now.Add(24 * time.Hour))
			m.IPOSharesRemaining = &remaining
			m.IPOPrice = &ipoPrice
		}
		l.AddMeme(m)
	}
	l.AddAccount(DemoToken, "demo", decimal.NewFromInt(1000))
}
