package bot

import (
	"context"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/park285/Squares-KakaoTalk-bot/internal/scorefeed"
	"go.uber.org/zap"
)

// NotifyFeed announces feed driven results in the pool's room. It is the
// poller's notifier.
func (r *Router) NotifyFeed(ctx context.Context, u scorefeed.Update) {
	if u.Pool == nil {
		return
	}
	room := u.Pool.Room
	if len(u.Resolved) > 0 {
		b := u.Final
		if b == nil {
			var err error
			if b, err = r.pools.Board(ctx, u.Pool.ID); err != nil {
				obslog.L().Warn("bot_feed_board_error", zap.String("pool_id", u.Pool.ID), zap.Error(err))
				return
			}
		}
		scores := scoresByPeriod(b)
		for _, res := range u.Resolved {
			r.say(ctx, room, r.format.Result(res, scores[res.Period]))
		}
	}
	if u.Final != nil {
		if err := r.present.Board(ctx, room, r.format.Final(u.Final), u.Final); err != nil {
			obslog.L().Warn("bot_feed_final_error", zap.String("pool_id", u.Pool.ID), zap.Error(err))
		}
	}
}

func scoresByPeriod(b *pool.Board) map[int]grid.QuarterScore {
	out := make(map[int]grid.QuarterScore, len(b.Scores))
	for _, q := range b.Scores {
		out[q.Period] = q
	}
	return out
}
