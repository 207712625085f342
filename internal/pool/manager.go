package pool

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"hash/fnv"
	mrand "math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/obslog"
	"go.uber.org/zap"
)

// Archive persists finalized pools. A nil Archive disables archiving.
type Archive interface {
	SaveResult(ctx context.Context, b *Board) error
}

// Defaults apply when a CreateRequest leaves a field unset.
type Defaults struct {
	Size         int
	AxisMode     grid.AxisMode
	LockAfter    time.Duration
	MaxPerPlayer int
}

type Manager struct {
	store    Store
	archive  Archive
	now      func() time.Time
	rng      *mrand.Rand
	defaults Defaults
}

type Option func(*Manager)

func WithArchive(a Archive) Option          { return func(m *Manager) { m.archive = a } }
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }
func WithRand(r *mrand.Rand) Option         { return func(m *Manager) { m.rng = r } }
func WithDefaults(d Defaults) Option        { return func(m *Manager) { m.defaults = d } }

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		now:      time.Now,
		defaults: Defaults{Size: 10, AxisMode: grid.AxisRandomized},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.defaults.Size < 2 || m.defaults.Size > grid.MaxSize {
		m.defaults.Size = grid.DefaultSize
	}
	if m.defaults.AxisMode == "" {
		m.defaults.AxisMode = grid.AxisRandomized
	}
	return m
}

// Create opens a new pool in a room. One open pool per room.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Pool, error) {
	if strings.TrimSpace(req.Room) == "" || strings.TrimSpace(req.OrganizerID) == "" {
		return nil, ErrInvalidArgs
	}
	cur, err := m.ActiveInRoom(ctx, req.Room)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, ErrRoomBusy
	}
	size := req.Size
	if size == 0 {
		size = m.defaults.Size
	}
	mode := req.AxisMode
	if mode == "" {
		mode = m.defaults.AxisMode
	}
	now := m.now()
	deadline := req.Deadline
	if deadline.IsZero() && m.defaults.LockAfter > 0 {
		deadline = now.Add(m.defaults.LockAfter)
	}
	maxPer := req.MaxPerPlayer
	if maxPer == 0 {
		maxPer = m.defaults.MaxPerPlayer
	}

	// labels are drawn once here and persisted; every later load restores them
	g, err := grid.NewGrid(size, mode, grid.WithRand(m.rng))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Squares"
	}
	p := &Pool{
		ID:            uuid.NewString(),
		Name:          name,
		Room:          strings.TrimSpace(req.Room),
		OrganizerID:   strings.TrimSpace(req.OrganizerID),
		OrganizerName: strings.TrimSpace(req.OrganizerName),
		Size:          size,
		AxisMode:      g.Mode(),
		RowLabels:     g.RowLabels(),
		ColumnLabels:  g.ColumnLabels(),
		Deadline:      deadline,
		MaxPerPlayer:  maxPer,
		HomeTeam:      strings.TrimSpace(req.HomeTeam),
		AwayTeam:      strings.TrimSpace(req.AwayTeam),
		Status:        StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.reserveRoom(ctx, p.Room, p.ID); err != nil {
		return nil, err
	}
	if err := m.persistNew(ctx, p); err != nil {
		_ = m.store.ReleaseRoom(ctx, p.Room, p.ID)
		return nil, err
	}
	m.publish(ctx, Event{Type: EventCreated, PoolID: p.ID, Actor: p.OrganizerID})
	obslog.L().Info("pool_create",
		zap.String("pool_id", p.ID),
		zap.String("code", p.Code),
		zap.String("room", p.Room),
		zap.String("organizer_id", p.OrganizerID),
		zap.Int("size", p.Size),
		zap.String("axis_mode", string(p.AxisMode)),
	)
	return p, nil
}

func (m *Manager) persistNew(ctx context.Context, p *Pool) error {
	for i := 0; i < 5; i++ {
		c, err := codeGen()
		if err != nil {
			return err
		}
		ok, err := m.store.ReserveCode(ctx, c, p.ID)
		if err != nil {
			return err
		}
		if ok {
			p.Code = c
			break
		}
	}
	if p.Code == "" {
		return ErrCodeUnavailable
	}
	if err := m.store.SavePool(ctx, p); err != nil {
		return err
	}
	return m.store.IndexRoom(ctx, p.Room, p.ID)
}

// reserveRoom takes the room slot for poolID. A slot still held by a final
// pool (its release failed) is reclaimed; a holder whose meta is not saved yet
// counts as busy.
func (m *Manager) reserveRoom(ctx context.Context, room, poolID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := m.store.ReserveRoom(ctx, room, poolID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		holder, err := m.store.RoomHolder(ctx, room)
		if err != nil {
			return err
		}
		if holder == "" {
			continue
		}
		p, err := m.store.LoadPool(ctx, holder)
		if err != nil {
			return err
		}
		if p == nil || p.Status != StatusFinal {
			return ErrRoomBusy
		}
		if err := m.store.ReleaseRoom(ctx, room, holder); err != nil {
			return err
		}
	}
	return ErrRoomBusy
}

// Get loads a pool by id or by its SQ- code.
func (m *Manager) Get(ctx context.Context, ref string) (*Pool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrInvalidArgs
	}
	id := ref
	if strings.HasPrefix(strings.ToUpper(ref), codePrefix) {
		byCode, err := m.store.PoolIDByCode(ctx, ref)
		if err != nil {
			return nil, err
		}
		id = byCode
	}
	if id == "" {
		return nil, ErrPoolNotFound
	}
	p, err := m.store.LoadPool(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// ActiveInRoom returns the most recent non-final pool of a room, or nil.
func (m *Manager) ActiveInRoom(ctx context.Context, room string) (*Pool, error) {
	ids, err := m.store.PoolsInRoom(ctx, strings.TrimSpace(room))
	if err != nil {
		return nil, err
	}
	var list []*Pool
	for _, id := range ids {
		p, err := m.store.LoadPool(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Status == StatusFinal {
			continue
		}
		list = append(list, p)
	}
	if len(list) == 0 {
		return nil, nil
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list[0], nil
}

// Claim validates against the restored grid, then commits through the store's
// conditional write, which is the source of truth under concurrency.
func (m *Manager) Claim(ctx context.Context, poolID string, cell grid.Cell, c grid.Claim) (grid.Claim, error) {
	p, g, err := m.load(ctx, poolID)
	if err != nil {
		return grid.Claim{}, err
	}
	if p.Status == StatusFinal {
		return grid.Claim{}, ErrPoolFinal
	}
	if c.DisplayColor == "" {
		c.DisplayColor = ColorFor(c.Owner)
	}
	claimed, err := g.ClaimCell(cell.Row, cell.Column, c)
	if err != nil {
		return grid.Claim{}, err
	}
	if err := m.store.PutClaimIfAbsent(ctx, p.ID, grid.PlacedClaim{Cell: cell, Claim: claimed}, p.MaxPerPlayer); err != nil {
		if errors.Is(err, grid.ErrCellAlreadyClaimed) || errors.Is(err, grid.ErrClaimLimit) || errors.Is(err, ErrPoolFinal) {
			return grid.Claim{}, fmt.Errorf("claim %s: %w", cell, err)
		}
		obslog.L().Warn("pool_claim_error", zap.String("pool_id", p.ID), zap.String("cell", cell.Key()), zap.Error(err))
		return grid.Claim{}, err
	}
	m.publish(ctx, Event{Type: EventClaimed, PoolID: p.ID, Actor: claimed.Owner, Owner: claimed.Owner, Cell: &cell})
	obslog.L().Info("pool_claim",
		zap.String("pool_id", p.ID),
		zap.String("owner", claimed.Owner),
		zap.Int("row", cell.Row),
		zap.Int("column", cell.Column),
		zap.Bool("guest", claimed.Guest),
	)
	return claimed, nil
}

// Unclaim removes a claim for its owner or a moderator before the deadline.
func (m *Manager) Unclaim(ctx context.Context, poolID string, cell grid.Cell, requester string) error {
	p, g, err := m.load(ctx, poolID)
	if err != nil {
		return err
	}
	if p.Status == StatusFinal {
		return ErrPoolFinal
	}
	if err := g.UnclaimCell(cell.Row, cell.Column, requester); err != nil {
		return err
	}
	removed, err := m.store.DeleteClaimIf(ctx, p.ID, cell, func(cur grid.Claim) error {
		if cur.Owner != requester && !g.IsModerator(requester) {
			return grid.ErrNotOwner
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unclaim %s: %w", cell, err)
	}
	m.publish(ctx, Event{Type: EventUnclaimed, PoolID: p.ID, Actor: requester, Owner: removed.Owner, Cell: &cell})
	obslog.L().Info("pool_unclaim", zap.String("pool_id", p.ID), zap.String("requester", requester), zap.String("cell", cell.Key()))
	return nil
}

// Kick removes every claim held by owner. This is the moderation path and
// is allowed after the deadline.
func (m *Manager) Kick(ctx context.Context, poolID, moderator, owner string) ([]grid.Cell, error) {
	p, g, err := m.load(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusFinal {
		return nil, ErrPoolFinal
	}
	if !g.IsModerator(moderator) {
		return nil, grid.ErrNotModerator
	}
	var removed []grid.Cell
	for _, cell := range g.CellsOf(owner) {
		if _, err := g.ModerateRemove(cell.Row, cell.Column, moderator); err != nil {
			return removed, err
		}
		_, err := m.store.DeleteClaimIf(ctx, p.ID, cell, func(cur grid.Claim) error {
			if cur.Owner != owner {
				return grid.ErrCellNotClaimed
			}
			return nil
		})
		if err != nil && !errors.Is(err, grid.ErrCellNotClaimed) {
			return removed, err
		}
		if err == nil {
			removed = append(removed, cell)
			c := cell
			m.publish(ctx, Event{Type: EventKicked, PoolID: p.ID, Actor: moderator, Owner: owner, Cell: &c})
		}
	}
	obslog.L().Info("pool_kick", zap.String("pool_id", p.ID), zap.String("moderator", moderator), zap.String("owner", owner), zap.Int("removed", len(removed)))
	return removed, nil
}

// AddGuest claims a cell for a player without an account. The guest gets a
// locally generated owner id.
func (m *Manager) AddGuest(ctx context.Context, poolID, organizer, name string, cell grid.Cell) (grid.Claim, error) {
	p, err := m.Get(ctx, poolID)
	if err != nil {
		return grid.Claim{}, err
	}
	if !isModerator(p, organizer) {
		return grid.Claim{}, ErrNotOrganizer
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return grid.Claim{}, ErrInvalidArgs
	}
	return m.Claim(ctx, p.ID, cell, grid.Claim{
		Owner:       GuestPrefix + uuid.NewString(),
		DisplayName: name,
		Guest:       true,
	})
}

// GuestPrefix marks owner ids minted by AddGuest.
const GuestPrefix = "guest:"

// AddModerator grants moderation rights. Organizer only.
func (m *Manager) AddModerator(ctx context.Context, poolID, organizer, moderator string) error {
	p, err := m.Get(ctx, poolID)
	if err != nil {
		return err
	}
	if p.OrganizerID != strings.TrimSpace(organizer) {
		return ErrNotOrganizer
	}
	moderator = strings.TrimSpace(moderator)
	if moderator == "" {
		return ErrInvalidArgs
	}
	for _, id := range p.Moderators {
		if id == moderator {
			return nil
		}
	}
	p.Moderators = append(p.Moderators, moderator)
	p.UpdatedAt = m.now()
	return m.store.SavePool(ctx, p)
}

// SetScore records a manual score; the entry replaces that period entirely.
func (m *Manager) SetScore(ctx context.Context, poolID, actor string, q grid.QuarterScore) (grid.WinningCellResult, error) {
	p, err := m.Get(ctx, poolID)
	if err != nil {
		return grid.WinningCellResult{}, err
	}
	if actor != SystemActor && !isModerator(p, actor) {
		return grid.WinningCellResult{}, ErrNotOrganizer
	}
	if p.Status == StatusFinal {
		return grid.WinningCellResult{}, ErrPoolFinal
	}
	if q.Period < 1 {
		return grid.WinningCellResult{}, ErrInvalidPeriod
	}
	if err := m.store.PutScore(ctx, p.ID, q); err != nil {
		return grid.WinningCellResult{}, err
	}
	m.publish(ctx, Event{Type: EventScored, PoolID: p.ID, Actor: actor, Period: q.Period})
	b, err := m.Board(ctx, p.ID)
	if err != nil {
		return grid.WinningCellResult{}, err
	}
	res := b.Snapshot.Resolve(q)
	obslog.L().Info("pool_score",
		zap.String("pool_id", p.ID),
		zap.String("actor", actor),
		zap.Int("period", q.Period),
		zap.String("status", string(res.Status)),
		zap.String("winner", res.Owner()),
	)
	return res, nil
}

// ApplyFeed stores feed scores that differ from what is recorded and returns
// the periods that became resolved by this update.
func (m *Manager) ApplyFeed(ctx context.Context, poolID string, scores []grid.QuarterScore) (grid.Results, error) {
	p, err := m.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusFinal {
		return nil, ErrPoolFinal
	}
	old, err := m.store.LoadScores(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	prev := make(map[int]grid.QuarterScore, len(old))
	for _, q := range old {
		prev[q.Period] = q
	}
	var changed []grid.QuarterScore
	for _, q := range scores {
		if q.Period < 1 || sameScore(prev[q.Period], q) {
			continue
		}
		if err := m.store.PutScore(ctx, p.ID, q); err != nil {
			return nil, err
		}
		m.publish(ctx, Event{Type: EventScored, PoolID: p.ID, Actor: SystemActor, Period: q.Period})
		changed = append(changed, q)
	}
	if len(changed) == 0 {
		return nil, nil
	}
	b, err := m.Board(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	var fresh grid.Results
	for _, q := range changed {
		res := b.Snapshot.Resolve(q)
		if res.Status == grid.StatusUnresolved {
			continue
		}
		if before, ok := prev[q.Period]; ok && before.Reported() {
			// corrected score; announce again only when the cell moved
			if b.Snapshot.Resolve(before).Cell == res.Cell {
				continue
			}
		}
		fresh = append(fresh, res)
	}
	obslog.L().Info("pool_feed", zap.String("pool_id", p.ID), zap.Int("changed", len(changed)), zap.Int("resolved", len(fresh)))
	return fresh, nil
}

// LinkEvent attaches a live score event to the pool.
func (m *Manager) LinkEvent(ctx context.Context, poolID, actor, sportPath, eventID string) error {
	p, err := m.Get(ctx, poolID)
	if err != nil {
		return err
	}
	if !isModerator(p, actor) {
		return ErrNotOrganizer
	}
	if p.Status == StatusFinal {
		return ErrPoolFinal
	}
	sportPath, eventID = strings.Trim(strings.TrimSpace(sportPath), "/"), strings.TrimSpace(eventID)
	if sportPath == "" || eventID == "" {
		return ErrInvalidArgs
	}
	p.SportPath, p.EventID = sportPath, eventID
	p.UpdatedAt = m.now()
	if err := m.store.SavePool(ctx, p); err != nil {
		return err
	}
	if err := m.store.SetEventLinked(ctx, p.ID, true); err != nil {
		return err
	}
	m.publish(ctx, Event{Type: EventLinked, PoolID: p.ID, Actor: actor})
	obslog.L().Info("pool_link", zap.String("pool_id", p.ID), zap.String("sport_path", sportPath), zap.String("event_id", eventID))
	return nil
}

// LinkedPools lists non-final pools attached to a score event.
func (m *Manager) LinkedPools(ctx context.Context) ([]*Pool, error) {
	ids, err := m.store.LinkedPools(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Pool
	for _, id := range ids {
		p, err := m.store.LoadPool(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Status == StatusFinal || !p.Linked() {
			// expired or finished; drop from the index
			_ = m.store.SetEventLinked(ctx, id, false)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Board returns the pool with a claims snapshot, scores and results.
func (m *Manager) Board(ctx context.Context, poolID string) (*Board, error) {
	p, g, err := m.load(ctx, poolID)
	if err != nil {
		return nil, err
	}
	scores, err := m.store.LoadScores(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	snap := g.Snapshot()
	return &Board{
		Pool:     p,
		Snapshot: snap,
		Scores:   scores,
		Results:  grid.ResolveAllPeriods(snap, scores),
	}, nil
}

// Results resolves every recorded period.
func (m *Manager) Results(ctx context.Context, poolID string) (grid.Results, error) {
	b, err := m.Board(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return b.Results, nil
}

// Finalize freezes the pool and archives its results.
func (m *Manager) Finalize(ctx context.Context, poolID, actor string) (*Board, error) {
	p, err := m.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if actor != SystemActor && !isModerator(p, actor) {
		return nil, ErrNotOrganizer
	}
	if p.Status == StatusFinal {
		return nil, ErrPoolFinal
	}
	p.Status = StatusFinal
	p.UpdatedAt = m.now()
	if err := m.store.SavePool(ctx, p); err != nil {
		return nil, err
	}
	_ = m.store.SetEventLinked(ctx, p.ID, false)
	if err := m.store.ReleaseRoom(ctx, p.Room, p.ID); err != nil {
		obslog.L().Warn("pool_room_release_error", zap.String("pool_id", p.ID), zap.Error(err))
	}
	b, err := m.Board(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, Event{Type: EventFinalized, PoolID: p.ID, Actor: actor})
	sweeper, sweep := b.Results.Sweep()
	obslog.L().Info("pool_finalize",
		zap.String("pool_id", p.ID),
		zap.String("actor", actor),
		zap.Int("claims", b.Snapshot.Len()),
		zap.Bool("sweep", sweep),
		zap.String("sweeper", sweeper),
	)
	if m.archive != nil {
		if err := m.archive.SaveResult(ctx, b); err != nil {
			obslog.L().Error("pool_archive_error", zap.String("pool_id", p.ID), zap.Error(err))
			return b, err
		}
	}
	return b, nil
}

func (m *Manager) load(ctx context.Context, poolID string) (*Pool, *grid.Grid, error) {
	p, err := m.Get(ctx, poolID)
	if err != nil {
		return nil, nil, err
	}
	claims, err := m.store.LoadClaims(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	g, err := grid.Restore(grid.State{
		Size:         p.Size,
		Mode:         p.AxisMode,
		RowLabels:    p.RowLabels,
		ColumnLabels: p.ColumnLabels,
		Claims:       claims,
	},
		grid.WithDeadline(p.Deadline),
		grid.WithOrganizer(p.OrganizerID),
		grid.WithModerators(p.Moderators...),
		grid.WithMaxPerOwner(p.MaxPerPlayer),
		grid.WithClock(m.now),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("restore pool %s: %w", p.ID, err)
	}
	return p, g, nil
}

func (m *Manager) publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	if err := m.store.Publish(ctx, ev); err != nil {
		obslog.L().Warn("pool_event_publish_error", zap.String("pool_id", ev.PoolID), zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func isModerator(p *Pool, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if id == p.OrganizerID {
		return true
	}
	for _, mod := range p.Moderators {
		if mod == id {
			return true
		}
	}
	return false
}

func sameScore(a, b grid.QuarterScore) bool {
	return a.Period == b.Period && eqPtr(a.Home, b.Home) && eqPtr(a.Away, b.Away)
}

func eqPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

const codePrefix = "SQ-"

// codeGen returns `SQ-` + 6 upper alnum.
func codeGen() (string, error) {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return codePrefix + string(b), nil
}

var palette = []string{
	"#e57373", "#64b5f6", "#81c784", "#ffb74d", "#ba68c8",
	"#4db6ac", "#f06292", "#aed581", "#7986cb", "#ffd54f",
}

// ColorFor picks a stable board color for an owner.
func ColorFor(owner string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(owner))
	return palette[int(h.Sum32()%uint32(len(palette)))]
}
