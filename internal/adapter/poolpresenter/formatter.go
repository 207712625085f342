package poolpresenter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/park285/Squares-KakaoTalk-bot/internal/render"
	"github.com/park285/Squares-KakaoTalk-bot/internal/util"
)

type PrefixProvider interface {
	Prefix() string
}

// Formatter turns pool state into chat text through the message catalog.
type Formatter struct {
	cat    *msgcat.Catalog
	prefix PrefixProvider
	loc    *time.Location
}

func NewFormatter(cat *msgcat.Catalog, prefix PrefixProvider, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{cat: cat, prefix: prefix, loc: loc}
}

func (f *Formatter) render(key string, data map[string]any) string {
	return f.cat.RenderOr(key, data, key)
}

func (f *Formatter) prefixText() string {
	if f.prefix == nil {
		return ""
	}
	return f.prefix.Prefix()
}

func (f *Formatter) Help() string {
	return util.FoldLong(f.render("help", map[string]any{"Prefix": f.prefixText()}))
}

func (f *Formatter) Created(p *pool.Pool) string {
	deadline := ""
	if !p.Deadline.IsZero() {
		deadline = p.Deadline.In(f.loc).Format("01/02 15:04")
	}
	mode := "순서 배치"
	if p.AxisMode == grid.AxisRandomized {
		mode = "랜덤 배치"
	}
	return f.render("pool.created", map[string]any{
		"Name":     p.Name,
		"Code":     p.Code,
		"Size":     p.Size,
		"Mode":     mode,
		"Deadline": deadline,
		"Prefix":   f.prefixText(),
	})
}

func (f *Formatter) Claimed(c grid.Claim, cell grid.Cell) string {
	return f.render("pool.claimed", map[string]any{"Name": c.Label(), "Row": cell.Row, "Column": cell.Column})
}

func (f *Formatter) Unclaimed(cell grid.Cell) string {
	return f.render("pool.unclaimed", map[string]any{"Row": cell.Row, "Column": cell.Column})
}

func (f *Formatter) Guest(c grid.Claim, cell grid.Cell) string {
	return f.render("pool.guest", map[string]any{"Name": c.Label(), "Row": cell.Row, "Column": cell.Column})
}

func (f *Formatter) Kicked(owner string, n int) string {
	return f.render("pool.kicked", map[string]any{"Owner": owner, "Count": n})
}

func (f *Formatter) Moderator(id string) string {
	return f.render("pool.moderator", map[string]any{"Moderator": id})
}

func (f *Formatter) Linked(p *pool.Pool) string {
	return f.render("pool.linked", map[string]any{"SportPath": p.SportPath, "EventID": p.EventID})
}

func (f *Formatter) BoardCaption(b *pool.Board, now time.Time) string {
	legend := render.BuildLegend(b.Snapshot.Claims())
	entries := make([]map[string]any, 0, len(legend.Entries))
	for _, e := range legend.Entries {
		entries = append(entries, map[string]any{"Tag": e.Tag, "Name": e.Name, "Cells": e.Cells})
	}
	n := b.Snapshot.Size()
	return util.FoldLong(f.render("pool.board_caption", map[string]any{
		"Name":    b.Pool.Name,
		"Code":    b.Pool.Code,
		"Status":  statusText(b.Pool.StatusAt(now)),
		"Claimed": b.Snapshot.Len(),
		"Total":   n * n,
		"Legend":  entries,
	}))
}

// Result announces one resolved period.
func (f *Formatter) Result(res grid.WinningCellResult, q grid.QuarterScore) string {
	data := map[string]any{
		"Period": res.Period,
		"Label":  PeriodLabel(res.Period),
		"Row":    res.Cell.Row,
		"Column": res.Cell.Column,
		"Home":   scoreText(q.Home),
		"Away":   scoreText(q.Away),
		"Winner": winnerText(res),
	}
	switch res.Status {
	case grid.StatusWon:
		return f.render("score.won", data)
	case grid.StatusNoWinner:
		return f.render("score.no_winner", data)
	default:
		return f.render("score.unresolved", data)
	}
}

// Results lists every recorded period, then a sweep line when one applies.
func (f *Formatter) Results(b *pool.Board) string {
	if len(b.Scores) == 0 {
		return f.render("results.empty", nil)
	}
	out := f.render("results.header", map[string]any{"Name": b.Pool.Name})
	for _, line := range f.resultLines(b) {
		out += "\n" + line
	}
	if who, ok := b.Results.Sweep(); ok {
		out += "\n" + f.render("results.sweep", map[string]any{"Winner": ownerLabel(b, who)})
	}
	return util.FoldLong(out)
}

func (f *Formatter) Final(b *pool.Board) string {
	lines := f.resultLines(b)
	if who, ok := b.Results.Sweep(); ok {
		lines = append(lines, f.render("results.sweep", map[string]any{"Winner": ownerLabel(b, who)}))
	}
	return util.FoldLong(f.render("results.final", map[string]any{"Name": b.Pool.Name, "Lines": lines}))
}

func (f *Formatter) resultLines(b *pool.Board) []string {
	scores := make(map[int]grid.QuarterScore, len(b.Scores))
	for _, q := range b.Scores {
		scores[q.Period] = q
	}
	lines := make([]string, 0, len(b.Results))
	for _, res := range b.Results {
		q := scores[res.Period]
		lines = append(lines, f.render("results.line", map[string]any{
			"Label":  PeriodLabel(res.Period),
			"Home":   scoreText(q.Home),
			"Away":   scoreText(q.Away),
			"Winner": winnerText(res),
		}))
	}
	return lines
}

// History renders archived pools, newest first.
func (f *Formatter) History(pools []pool.ArchivedPool) string {
	if len(pools) == 0 {
		return f.render("results.empty", nil)
	}
	items := make([]map[string]any, 0, len(pools))
	for _, a := range pools {
		periods := make([]int, 0, len(a.Winners))
		for p := range a.Winners {
			periods = append(periods, p)
		}
		sort.Ints(periods)
		winners := make([]string, 0, len(periods))
		for _, p := range periods {
			winners = append(winners, PeriodLabel(p)+": "+a.Winners[p])
		}
		items = append(items, map[string]any{
			"Name":    a.Name,
			"Code":    a.Code,
			"Sweeper": a.Sweeper,
			"Winners": winners,
		})
	}
	return util.FoldLong(f.render("results.history", map[string]any{"Pools": items}))
}

func (f *Formatter) HistoryDisabled() string {
	return f.render("error.history_off", nil)
}

// Error maps domain errors to catalog text. Unknown errors get the generic
// message; callers log the cause.
func (f *Formatter) Error(err error, size, maxPer int) string {
	switch {
	case errors.Is(err, pool.ErrPoolNotFound):
		return f.render("error.no_pool", map[string]any{"Prefix": f.prefixText()})
	case errors.Is(err, pool.ErrRoomBusy):
		return f.render("error.room_busy", nil)
	case errors.Is(err, grid.ErrOutOfBounds):
		return f.render("error.out_of_bounds", map[string]any{"Max": size - 1})
	case errors.Is(err, grid.ErrDeadlinePassed):
		return f.render("error.deadline", nil)
	case errors.Is(err, grid.ErrCellAlreadyClaimed):
		return f.render("error.taken", nil)
	case errors.Is(err, grid.ErrCellNotClaimed):
		return f.render("error.not_claimed", nil)
	case errors.Is(err, grid.ErrNotOwner):
		return f.render("error.not_owner", nil)
	case errors.Is(err, grid.ErrNotModerator), errors.Is(err, pool.ErrNotOrganizer):
		return f.render("error.not_moderator", nil)
	case errors.Is(err, grid.ErrClaimLimit):
		return f.render("error.limit", map[string]any{"Max": maxPer})
	case errors.Is(err, pool.ErrPoolFinal):
		return f.render("error.final", nil)
	case errors.Is(err, pool.ErrConflict):
		return f.render("error.conflict", nil)
	case errors.Is(err, pool.ErrInvalidArgs), errors.Is(err, pool.ErrInvalidPeriod),
		errors.Is(err, grid.ErrInvalidSize), errors.Is(err, grid.ErrInvalidOwner):
		return f.render("error.invalid", nil)
	default:
		return f.render("error.internal", nil)
	}
}

func (f *Formatter) Usage(usage string) string {
	return f.render("error.usage", map[string]any{"Usage": f.prefixText() + " " + usage})
}

// PeriodLabel is "1쿼터".."4쿼터", then "연장1"...
func PeriodLabel(period int) string {
	if period > grid.RegulationPeriods {
		return "연장" + strconv.Itoa(period-grid.RegulationPeriods)
	}
	return fmt.Sprintf("%d쿼터", period)
}

func statusText(s pool.Status) string {
	switch s {
	case pool.StatusLocked:
		return "선택 마감"
	case pool.StatusFinal:
		return "종료"
	default:
		return "선택 중"
	}
}

func scoreText(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func winnerText(res grid.WinningCellResult) string {
	switch res.Status {
	case grid.StatusWon:
		return res.Claim.Label()
	case grid.StatusNoWinner:
		return "당첨자 없음"
	default:
		return "대기"
	}
}

func ownerLabel(b *pool.Board, owner string) string {
	for _, pc := range b.Snapshot.Claims() {
		if pc.Claim.Owner == owner {
			return pc.Claim.Label()
		}
	}
	return owner
}
