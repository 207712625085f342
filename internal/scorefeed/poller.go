package scorefeed

import (
	"context"
	"sync"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher loads one event summary.
type Fetcher interface {
	FetchSummary(ctx context.Context, sportPath, eventID string) (*Summary, error)
}

// Pools is the part of pool.Manager the poller drives.
type Pools interface {
	LinkedPools(ctx context.Context) ([]*pool.Pool, error)
	ApplyFeed(ctx context.Context, poolID string, scores []grid.QuarterScore) (grid.Results, error)
	Finalize(ctx context.Context, poolID, actor string) (*pool.Board, error)
}

// Update is handed to the notifier when a pool changed.
type Update struct {
	Pool     *pool.Pool
	Resolved grid.Results
	// Final is set when the game ended and the pool was finalized.
	Final *pool.Board
}

type Notifier func(ctx context.Context, u Update)

type Poller struct {
	fetcher  Fetcher
	pools    Pools
	notify   Notifier
	interval time.Duration
	limit    int
}

func NewPoller(fetcher Fetcher, pools Pools, notify Notifier, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{fetcher: fetcher, pools: pools, notify: notify, interval: interval, limit: 4}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	obslog.L().Info("scorefeed_start", zap.Duration("interval", p.interval))
	t := time.NewTicker(p.interval)
	defer t.Stop()
	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("scorefeed_stop")
			return
		case <-t.C:
			p.PollOnce(ctx)
		}
	}
}

type eventKey struct{ sportPath, eventID string }

// PollOnce fetches each linked event once and applies it to every pool that
// follows it.
func (p *Poller) PollOnce(ctx context.Context) {
	pools, err := p.pools.LinkedPools(ctx)
	if err != nil {
		obslog.L().Warn("scorefeed_list_error", zap.Error(err))
		return
	}
	if len(pools) == 0 {
		return
	}
	byEvent := make(map[eventKey][]*pool.Pool)
	for _, pl := range pools {
		k := eventKey{pl.SportPath, pl.EventID}
		byEvent[k] = append(byEvent[k], pl)
	}

	var mu sync.Mutex
	var updates []Update
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for k, followers := range byEvent {
		g.Go(func() error {
			sum, err := p.fetcher.FetchSummary(gctx, k.sportPath, k.eventID)
			if err != nil {
				// one bad event must not cancel the others
				obslog.L().Warn("scorefeed_fetch_error", zap.String("sport_path", k.sportPath), zap.String("event_id", k.eventID), zap.Error(err))
				return nil
			}
			for _, pl := range followers {
				if u, ok := p.apply(gctx, pl, sum); ok {
					mu.Lock()
					updates = append(updates, u)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if p.notify == nil {
		return
	}
	for _, u := range updates {
		p.notify(ctx, u)
	}
}

func (p *Poller) apply(ctx context.Context, pl *pool.Pool, sum *Summary) (Update, bool) {
	u := Update{Pool: pl}
	fresh, err := p.pools.ApplyFeed(ctx, pl.ID, sum.Scores)
	if err != nil {
		obslog.L().Warn("scorefeed_apply_error", zap.String("pool_id", pl.ID), zap.Error(err))
		return u, false
	}
	u.Resolved = fresh
	if sum.Final() {
		b, err := p.pools.Finalize(ctx, pl.ID, pool.SystemActor)
		if err != nil {
			obslog.L().Warn("scorefeed_finalize_error", zap.String("pool_id", pl.ID), zap.Error(err))
		}
		// a failed archive still leaves the pool final
		u.Final = b
	}
	if len(u.Resolved) == 0 && u.Final == nil {
		return u, false
	}
	return u, true
}
