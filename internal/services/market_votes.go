package services

import (
	"context"

	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/internal/events"
	"github.com/memestreet/marketsync/internal/feed"
	"github.com/memestreet/marketsync/internal/vote"
)

// Vote 乐观投票。返回乐观修改后的资产；服务端结果到达后发布 VoteSettledEvent。
func (m *MarketService) Vote(ctx context.Context, listingID string, dir domain.VoteDirection) (domain.Listing, *vote.Pending, error) {
	if m.votes == nil {
		return domain.Listing{}, nil, feed.ErrClosed
	}
	listing, pending, err := m.votes.ApplyVote(ctx, listingID, dir)
	if err != nil {
		return listing, nil, err
	}

	m.pendingWG.Add(1)
	go func() {
		defer m.pendingWG.Done()
		<-pending.Done()
		res, err := pending.Wait(context.Background())
		events.Publish(m.bus, events.VoteSettledEvent{
			ListingID: listingID,
			Direction: dir,
			Active:    res.Active,
			NewPrice:  res.NewPrice,
			Err:       err,
			Timestamp: m.now(),
		})
	}()
	return listing, pending, nil
}
