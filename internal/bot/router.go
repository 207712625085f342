package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/adapter/poolpresenter"
	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Squares-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"go.uber.org/zap"
)

// Pools is the part of pool.Manager the chat commands use.
type Pools interface {
	Create(ctx context.Context, req pool.CreateRequest) (*pool.Pool, error)
	ActiveInRoom(ctx context.Context, room string) (*pool.Pool, error)
	Claim(ctx context.Context, poolID string, cell grid.Cell, c grid.Claim) (grid.Claim, error)
	Unclaim(ctx context.Context, poolID string, cell grid.Cell, requester string) error
	AddGuest(ctx context.Context, poolID, organizer, name string, cell grid.Cell) (grid.Claim, error)
	AddModerator(ctx context.Context, poolID, organizer, moderator string) error
	Kick(ctx context.Context, poolID, moderator, owner string) ([]grid.Cell, error)
	SetScore(ctx context.Context, poolID, actor string, q grid.QuarterScore) (grid.WinningCellResult, error)
	LinkEvent(ctx context.Context, poolID, actor, sportPath, eventID string) error
	Board(ctx context.Context, poolID string) (*pool.Board, error)
	Finalize(ctx context.Context, poolID, actor string) (*pool.Board, error)
}

// History lists archived pools. *pool.Repository satisfies it.
type History interface {
	RecentByRoom(ctx context.Context, room string, limit int) ([]pool.ArchivedPool, error)
}

type command func(r *Router, ctx context.Context, msg *irisfast.Message, args []string)

var commands = map[string]command{
	"생성": (*Router).create, "new": (*Router).create,
	"선택": (*Router).claim, "claim": (*Router).claim,
	"취소": (*Router).unclaim, "unclaim": (*Router).unclaim,
	"게스트": (*Router).guest, "guest": (*Router).guest,
	"보드": (*Router).board, "board": (*Router).board,
	"점수": (*Router).score, "score": (*Router).score,
	"연결": (*Router).link, "link": (*Router).link,
	"결과": (*Router).results, "results": (*Router).results,
	"강퇴": (*Router).kick, "kick": (*Router).kick,
	"운영자": (*Router).moderator, "mod": (*Router).moderator,
	"종료": (*Router).finalize, "final": (*Router).finalize,
	"기록": (*Router).history, "history": (*Router).history,
	"도움말": (*Router).help, "help": (*Router).help,
}

// Router parses prefixed chat messages and drives the pool manager.
type Router struct {
	prefix  string
	pools   Pools
	present *poolpresenter.Presenter
	format  *poolpresenter.Formatter
	archive History
	allowed func(room string) bool
	now     func() time.Time
	loc     *time.Location
}

type Option func(*Router)

func WithHistory(h History) Option                  { return func(r *Router) { r.archive = h } }
func WithRoomFilter(allow func(string) bool) Option { return func(r *Router) { r.allowed = allow } }
func WithClock(now func() time.Time) Option         { return func(r *Router) { r.now = now } }
func WithLocation(loc *time.Location) Option        { return func(r *Router) { r.loc = loc } }

func NewRouter(prefix string, pools Pools, present *poolpresenter.Presenter, format *poolpresenter.Formatter, opts ...Option) *Router {
	r := &Router{
		prefix:  strings.TrimSpace(prefix),
		pools:   pools,
		present: present,
		format:  format,
		now:     time.Now,
		loc:     time.Local,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Prefix lets the router act as the formatter's prefix provider.
func (r *Router) Prefix() string { return r.prefix }

// Matches reports whether msg is a command for this bot in an allowed room.
func (r *Router) Matches(msg *irisfast.Message) bool {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" || strings.TrimSpace(msg.Room) == "" {
		return false
	}
	if r.allowed != nil && !r.allowed(msg.Room) {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(msg.Msg), r.prefix)
}

// Handle runs one command. Failures are reported to the room, never returned.
func (r *Router) Handle(ctx context.Context, msg *irisfast.Message) {
	if !r.Matches(msg) {
		return
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), r.prefix))
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		r.help(ctx, msg, nil)
		return
	}
	cmd, ok := commands[strings.ToLower(parts[0])]
	if !ok {
		r.help(ctx, msg, nil)
		return
	}
	cmd(r, ctx, msg, parts[1:])
}

func (r *Router) say(ctx context.Context, room, text string) {
	if err := r.present.Text(ctx, room, text); err != nil {
		obslog.L().Warn("bot_send_error", zap.String("room", room), zap.Error(err))
	}
}

// fail reports err to the room. Non-domain errors are logged.
func (r *Router) fail(ctx context.Context, msg *irisfast.Message, p *pool.Pool, err error) {
	size, maxPer := grid.DefaultSize, 0
	if p != nil {
		size, maxPer = p.Size, p.MaxPerPlayer
	}
	if !isDomainError(err) {
		obslog.L().Error("bot_command_error",
			zap.String("room", msg.Room),
			zap.String("user_id", msg.UserID()),
			zap.String("msg", msg.Msg),
			zap.Error(err),
		)
	}
	r.say(ctx, msg.Room, r.format.Error(err, size, maxPer))
}

func (r *Router) active(ctx context.Context, msg *irisfast.Message) (*pool.Pool, bool) {
	p, err := r.pools.ActiveInRoom(ctx, msg.Room)
	if err != nil {
		r.fail(ctx, msg, nil, err)
		return nil, false
	}
	if p == nil {
		r.fail(ctx, msg, nil, pool.ErrPoolNotFound)
		return nil, false
	}
	return p, true
}

func (r *Router) help(ctx context.Context, msg *irisfast.Message, _ []string) {
	r.say(ctx, msg.Room, r.format.Help())
}

// create: <이름...> [순서|랜덤] [마감 <30m|19:30>] [원정@홈] [최대 <n>] [크기 <n>]
func (r *Router) create(ctx context.Context, msg *irisfast.Message, args []string) {
	req := pool.CreateRequest{
		Room:          msg.Room,
		OrganizerID:   msg.UserID(),
		OrganizerName: msg.SenderName(),
	}
	var name []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if mode, ok := grid.ParseAxisMode(a); ok {
			req.AxisMode = mode
			continue
		}
		switch strings.ToLower(a) {
		case "마감", "lock":
			if i+1 >= len(args) {
				r.say(ctx, msg.Room, r.format.Usage(createUsage))
				return
			}
			i++
			d, ok := ParseDeadline(args[i], r.now(), r.loc)
			if !ok {
				r.say(ctx, msg.Room, r.format.Usage(createUsage))
				return
			}
			req.Deadline = d
			continue
		case "최대", "max", "크기", "size":
			if i+1 >= len(args) {
				r.say(ctx, msg.Room, r.format.Usage(createUsage))
				return
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 0 {
				r.say(ctx, msg.Room, r.format.Usage(createUsage))
				return
			}
			if k := strings.ToLower(a); k == "최대" || k == "max" {
				req.MaxPerPlayer = n
			} else {
				req.Size = n
			}
			continue
		}
		if away, home, ok := strings.Cut(a, "@"); ok && away != "" && home != "" {
			req.AwayTeam, req.HomeTeam = strings.ToUpper(away), strings.ToUpper(home)
			continue
		}
		name = append(name, a)
	}
	req.Name = strings.Join(name, " ")
	if req.Name == "" && req.HomeTeam != "" {
		req.Name = req.AwayTeam + " @ " + req.HomeTeam
	}
	p, err := r.pools.Create(ctx, req)
	if err != nil {
		r.fail(ctx, msg, nil, err)
		return
	}
	r.say(ctx, msg.Room, r.format.Created(p))
}

const createUsage = "생성 <이름> [순서|랜덤] [마감 19:30|30m] [원정@홈]"

func (r *Router) claim(ctx context.Context, msg *irisfast.Message, args []string) {
	cell, ok := r.cellArg(ctx, msg, args, "선택 <행,열>")
	if !ok {
		return
	}
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	c, err := r.pools.Claim(ctx, p.ID, cell, grid.Claim{
		Owner:       msg.UserID(),
		DisplayName: msg.SenderName(),
	})
	if err != nil {
		r.fail(ctx, msg, p, err)
		return
	}
	r.say(ctx, msg.Room, r.format.Claimed(c, cell))
}

func (r *Router) unclaim(ctx context.Context, msg *irisfast.Message, args []string) {
	cell, ok := r.cellArg(ctx, msg, args, "취소 <행,열>")
	if !ok {
		return
	}
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	if err := r.pools.Unclaim(ctx, p.ID, cell, msg.UserID()); err != nil {
		r.fail(ctx, msg, p, err)
		return
	}
	r.say(ctx, msg.Room, r.format.Unclaimed(cell))
}

// guest: <이름> <행,열>; the cell is the trailing argument(s).
func (r *Router) guest(ctx context.Context, msg *irisfast.Message, args []string) {
	const usage = "게스트 <이름> <행,열>"
	if len(args) < 2 {
		r.say(ctx, msg.Room, r.format.Usage(usage))
		return
	}
	name, cellArgs := args[:len(args)-1], args[len(args)-1:]
	if _, err := grid.ParseCell(cellArgs[0]); err != nil && len(args) >= 3 {
		name, cellArgs = args[:len(args)-2], args[len(args)-2:]
	}
	cell, ok := r.cellArg(ctx, msg, cellArgs, usage)
	if !ok {
		return
	}
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	c, err := r.pools.AddGuest(ctx, p.ID, msg.UserID(), strings.Join(name, " "), cell)
	if err != nil {
		r.fail(ctx, msg, p, err)
		return
	}
	r.say(ctx, msg.Room, r.format.Guest(c, cell))
}

func (r *Router) board(ctx context.Context, msg *irisfast.Message, _ []string) {
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	b, err := r.pools.Board(ctx, p.ID)
	if err != nil {
		r.fail(ctx, msg, p, err)
		return
	}
	if err := r.present.Board(ctx, msg.Room, r.format.BoardCaption(b, r.now()), b); err != nil {
		obslog.L().Warn("bot_board_error", zap.String("pool_id", p.ID), zap.Error(err))
	}
}

// score: <쿼터> <홈> <원정>
func (r *Router) score(ctx context.Context, msg *irisfast.Message, args []string) {
	const usage = "점수 <쿼터> <홈> <원정>"
	if len(args) != 3 {
		r.say(ctx, msg.Room, r.format.Usage(usage))
		return
	}
	var n [3]int
	for i, a := range args {
		v, err := strconv.Atoi(strings.TrimSuffix(strings.ToUpper(a), "Q"))
		if err != nil || v < 0 {
			r.say(ctx, msg.Room, r.format.Usage(usage))
			return
		}
		n[i] = v
	}
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	q := grid.Score(n[0], n[1], n[2])
	res, err := r.pools.SetScore(ctx, p.ID, msg.UserID(), q)
	if err != nil {
		if errors.Is(err, pool.ErrInvalidPeriod) {
			r.say(ctx, msg.Room, r.format.Usage(usage))
			return
		}
		r.fail(ctx, msg, p, err)
		return
	}
	r.say(ctx, msg.Room, r.format.Result(res, q))
}

func (r *Router) link(ctx context.Context, msg *irisfast.Message, args []string) {
	if len(args) != 2 {
		r.say(ctx, msg.Room, r.format.Usage("연결 <basketball/nba> <eventID>"))
		return
	}
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	if err := r.pools.LinkEvent(ctx, p.ID, msg.UserID(), args[0], args[1]); err != nil {
		r.fail(ctx, msg, p, err)
		return
	}
	p.SportPath, p.EventID = strings.Trim(args[0], "/"), args[1]
	r.say(ctx, msg.Room, r.format.Linked(p))
}

func (r *Router) results(ctx context.Context, msg *irisfast.Message, _ []string) {
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	b, err := r.pools.Board(ctx, p.ID)
	if err != nil {
		r.fail(ctx, msg, p, err)
		return
	}
	r.say(ctx, msg.Room, r.format.Results(b))
}

func (r *Router) kick(ctx context.Context, msg *irisfast.Message, args []string) {
	if len(args) != 1 {
		r.say(ctx, msg.Room, r.format.Usage("강퇴 <사용자ID>"))
		return
	}
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	owner := strings.TrimPrefix(args[0], "@")
	cells, err := r.pools.Kick(ctx, p.ID, msg.UserID(), owner)
	if err != nil {
		r.fail(ctx, msg, p, err)
		return
	}
	r.say(ctx, msg.Room, r.format.Kicked(owner, len(cells)))
}

func (r *Router) moderator(ctx context.Context, msg *irisfast.Message, args []string) {
	if len(args) != 1 {
		r.say(ctx, msg.Room, r.format.Usage("운영자 <사용자ID>"))
		return
	}
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	id := strings.TrimPrefix(args[0], "@")
	if err := r.pools.AddModerator(ctx, p.ID, msg.UserID(), id); err != nil {
		r.fail(ctx, msg, p, err)
		return
	}
	r.say(ctx, msg.Room, r.format.Moderator(id))
}

func (r *Router) finalize(ctx context.Context, msg *irisfast.Message, _ []string) {
	p, ok := r.active(ctx, msg)
	if !ok {
		return
	}
	b, err := r.pools.Finalize(ctx, p.ID, msg.UserID())
	if b == nil {
		r.fail(ctx, msg, p, err)
		return
	}
	if err != nil {
		// archived copy failed; the pool itself is final
		obslog.L().Warn("bot_finalize_archive", zap.String("pool_id", p.ID), zap.Error(err))
	}
	r.say(ctx, msg.Room, r.format.Final(b))
}

func (r *Router) history(ctx context.Context, msg *irisfast.Message, _ []string) {
	if r.archive == nil {
		r.say(ctx, msg.Room, r.format.HistoryDisabled())
		return
	}
	list, err := r.archive.RecentByRoom(ctx, msg.Room, 5)
	if err != nil {
		r.fail(ctx, msg, nil, err)
		return
	}
	r.say(ctx, msg.Room, r.format.History(list))
}

func (r *Router) cellArg(ctx context.Context, msg *irisfast.Message, args []string, usage string) (grid.Cell, bool) {
	cell, err := grid.ParseCell(strings.Join(args, " "))
	if err != nil {
		r.say(ctx, msg.Room, r.format.Usage(usage))
		return grid.Cell{}, false
	}
	return cell, true
}

// ParseDeadline accepts a duration ("30m", "2h") or a wall clock time
// ("19:30"). A clock time already past today means tomorrow.
func ParseDeadline(s string, now time.Time, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, false
		}
		return now.Add(d), true
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("15:04", s, loc)
	if err != nil {
		return time.Time{}, false
	}
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true
}

var domainErrors = []error{
	pool.ErrPoolNotFound, pool.ErrRoomBusy, pool.ErrPoolFinal, pool.ErrNotOrganizer,
	pool.ErrConflict, pool.ErrInvalidArgs, pool.ErrInvalidPeriod,
	grid.ErrInvalidSize, grid.ErrInvalidOwner,
	grid.ErrOutOfBounds, grid.ErrDeadlinePassed, grid.ErrCellAlreadyClaimed,
	grid.ErrCellNotClaimed, grid.ErrNotOwner, grid.ErrNotModerator, grid.ErrClaimLimit,
}

func isDomainError(err error) bool {
	for _, e := range domainErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
