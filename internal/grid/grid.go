package grid

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"
)

// Grid is one pool's claimable board. Claim and unclaim are check-then-set
// under mu; resolution works on a Snapshot and never takes the lock.
type Grid struct {
	mu sync.RWMutex

	size      int
	mode      AxisMode
	rowLabels []int
	colLabels []int
	rowInv    []int
	colInv    []int

	cells map[Cell]Claim

	deadline    time.Time
	organizer   string
	moderators  map[string]struct{}
	maxPerOwner int
	now         func() time.Time
}

// Option configures a Grid at construction.
type Option func(*options)

type options struct {
	rng         *rand.Rand
	deadline    time.Time
	organizer   string
	moderators  []string
	maxPerOwner int
	now         func() time.Time
}

// WithRand injects the random source used for randomized axes.
func WithRand(r *rand.Rand) Option { return func(o *options) { o.rng = r } }

// WithDeadline freezes claims at t. The zero time means no deadline.
func WithDeadline(t time.Time) Option { return func(o *options) { o.deadline = t } }

// WithOrganizer sets the pool organizer, who may moderate any claim.
func WithOrganizer(id string) Option {
	return func(o *options) { o.organizer = strings.TrimSpace(id) }
}

// WithModerators grants moderation rights to extra players.
func WithModerators(ids ...string) Option {
	return func(o *options) { o.moderators = append(o.moderators, ids...) }
}

// WithMaxPerOwner limits how many cells one owner may hold; 0 is unlimited.
func WithMaxPerOwner(n int) Option { return func(o *options) { o.maxPerOwner = n } }

// WithClock overrides time.Now for deadline checks.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// NewGrid creates an empty grid. Labels are fixed here and never regenerated.
func NewGrid(size int, mode AxisMode, opts ...Option) (*Grid, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	var rows, cols []int
	switch mode {
	case AxisRandomized:
		rng := o.rng
		if rng == nil {
			rng = newRand()
		}
		rows = Shuffle(size, rng)
		cols = Shuffle(size, rng)
	case AxisSequential, "":
		mode = AxisSequential
		rows = Sequence(size)
		cols = Sequence(size)
	default:
		return nil, fmt.Errorf("unknown axis mode %q", mode)
	}
	return newGrid(size, mode, rows, cols, o), nil
}

func checkSize(size int) error {
	if size < 2 || size > MaxSize {
		return fmt.Errorf("size %d not in 2..%d: %w", size, MaxSize, ErrInvalidSize)
	}
	return nil
}

// State is everything needed to rebuild a grid from storage.
type State struct {
	Size         int
	Mode         AxisMode
	RowLabels    []int
	ColumnLabels []int
	Claims       []PlacedClaim
}

// Restore rebuilds a grid from persisted labels and claims. Labels are taken
// as given and validated, never regenerated.
func Restore(st State, opts ...Option) (*Grid, error) {
	if err := checkSize(st.Size); err != nil {
		return nil, err
	}
	if !isPermutation(st.RowLabels, st.Size) || !isPermutation(st.ColumnLabels, st.Size) {
		return nil, ErrInvalidLabels
	}
	g := newGrid(st.Size, st.Mode, append([]int(nil), st.RowLabels...), append([]int(nil), st.ColumnLabels...), buildOptions(opts))
	for _, pc := range st.Claims {
		if !g.inBounds(pc.Cell.Row, pc.Cell.Column) {
			return nil, fmt.Errorf("restore %s: %w", pc.Cell, ErrOutOfBounds)
		}
		if _, dup := g.cells[pc.Cell]; dup {
			return nil, fmt.Errorf("restore %s: %w", pc.Cell, ErrCellAlreadyClaimed)
		}
		g.cells[pc.Cell] = pc.Claim
	}
	return g, nil
}

func newGrid(size int, mode AxisMode, rows, cols []int, o options) *Grid {
	g := &Grid{
		size:        size,
		mode:        mode,
		rowLabels:   rows,
		colLabels:   cols,
		rowInv:      inverse(rows),
		colInv:      inverse(cols),
		cells:       make(map[Cell]Claim),
		deadline:    o.deadline,
		organizer:   o.organizer,
		moderators:  make(map[string]struct{}),
		maxPerOwner: o.maxPerOwner,
		now:         o.now,
	}
	for _, id := range o.moderators {
		if id = strings.TrimSpace(id); id != "" {
			g.moderators[id] = struct{}{}
		}
	}
	return g
}

func (g *Grid) Size() int           { return g.size }
func (g *Grid) Mode() AxisMode      { return g.mode }
func (g *Grid) Deadline() time.Time { return g.deadline }
func (g *Grid) RowLabels() []int    { return append([]int(nil), g.rowLabels...) }
func (g *Grid) ColumnLabels() []int { return append([]int(nil), g.colLabels...) }

// Closed reports whether the deadline has passed.
func (g *Grid) Closed() bool {
	return !g.deadline.IsZero() && !g.now().Before(g.deadline)
}

// IsModerator reports whether id may moderate claims on this grid.
func (g *Grid) IsModerator(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if id == g.organizer {
		return true
	}
	_, ok := g.moderators[id]
	return ok
}

func (g *Grid) inBounds(row, col int) bool {
	return row >= 0 && row < g.size && col >= 0 && col < g.size
}

// ClaimCell records c at (row, col). The check order is bounds, deadline,
// occupancy, then the per-owner limit.
func (g *Grid) ClaimCell(row, col int, c Claim) (Claim, error) {
	cell := Cell{Row: row, Column: col}
	if !g.inBounds(row, col) {
		return Claim{}, fmt.Errorf("claim %s: %w", cell, ErrOutOfBounds)
	}
	c.Owner = strings.TrimSpace(c.Owner)
	if c.Owner == "" {
		return Claim{}, ErrInvalidOwner
	}
	if g.Closed() {
		return Claim{}, fmt.Errorf("claim %s: %w", cell, ErrDeadlinePassed)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.cells[cell]; taken {
		return Claim{}, fmt.Errorf("claim %s: %w", cell, ErrCellAlreadyClaimed)
	}
	if g.maxPerOwner > 0 && g.countLocked(c.Owner) >= g.maxPerOwner {
		return Claim{}, fmt.Errorf("claim %s: %w", cell, ErrClaimLimit)
	}
	if c.ClaimedAt.IsZero() {
		c.ClaimedAt = g.now()
	}
	g.cells[cell] = c
	return c, nil
}

// UnclaimCell removes the claim at (row, col) on behalf of requester, who
// must own it or moderate the grid. Not allowed after the deadline; see
// ModerateRemove for that path.
func (g *Grid) UnclaimCell(row, col int, requester string) error {
	cell := Cell{Row: row, Column: col}
	if !g.inBounds(row, col) {
		return fmt.Errorf("unclaim %s: %w", cell, ErrOutOfBounds)
	}
	requester = strings.TrimSpace(requester)

	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.cells[cell]
	if !ok {
		return fmt.Errorf("unclaim %s: %w", cell, ErrCellNotClaimed)
	}
	if cur.Owner != requester && !g.IsModerator(requester) {
		return fmt.Errorf("unclaim %s: %w", cell, ErrNotOwner)
	}
	if g.Closed() {
		return fmt.Errorf("unclaim %s: %w", cell, ErrDeadlinePassed)
	}
	delete(g.cells, cell)
	return nil
}

// ModerateRemove is the organizer/moderator removal path. It ignores the
// deadline so a player can be kicked retroactively.
func (g *Grid) ModerateRemove(row, col int, moderator string) (Claim, error) {
	cell := Cell{Row: row, Column: col}
	if !g.inBounds(row, col) {
		return Claim{}, fmt.Errorf("moderate %s: %w", cell, ErrOutOfBounds)
	}
	if !g.IsModerator(moderator) {
		return Claim{}, fmt.Errorf("moderate %s: %w", cell, ErrNotModerator)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.cells[cell]
	if !ok {
		return Claim{}, fmt.Errorf("moderate %s: %w", cell, ErrCellNotClaimed)
	}
	delete(g.cells, cell)
	return cur, nil
}

// CellsOf lists the cells held by owner in row-major order.
func (g *Grid) CellsOf(owner string) []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Cell
	for cell, c := range g.cells {
		if c.Owner == owner {
			out = append(out, cell)
		}
	}
	sortCells(out)
	return out
}

func (g *Grid) countLocked(owner string) int {
	n := 0
	for _, c := range g.cells {
		if c.Owner == owner {
			n++
		}
	}
	return n
}

// Snapshot copies the current claims for lock-free resolution and rendering.
func (g *Grid) Snapshot() Snapshot {
	g.mu.RLock()
	cells := make(map[Cell]Claim, len(g.cells))
	for k, v := range g.cells {
		cells[k] = v
	}
	g.mu.RUnlock()
	return Snapshot{
		size:      g.size,
		rowLabels: g.rowLabels,
		colLabels: g.colLabels,
		rowInv:    g.rowInv,
		colInv:    g.colInv,
		cells:     cells,
	}
}

// Snapshot is an immutable view of a grid. Label slices are shared with the
// grid, which never mutates them.
type Snapshot struct {
	size      int
	rowLabels []int
	colLabels []int
	rowInv    []int
	colInv    []int
	cells     map[Cell]Claim
}

func (s Snapshot) Size() int           { return s.size }
func (s Snapshot) RowLabels() []int    { return append([]int(nil), s.rowLabels...) }
func (s Snapshot) ColumnLabels() []int { return append([]int(nil), s.colLabels...) }
func (s Snapshot) Len() int            { return len(s.cells) }

// ClaimAt returns the claim at cell, if any.
func (s Snapshot) ClaimAt(cell Cell) (Claim, bool) {
	c, ok := s.cells[cell]
	return c, ok
}

// Claims lists every claim in row-major order.
func (s Snapshot) Claims() []PlacedClaim {
	out := make([]PlacedClaim, 0, len(s.cells))
	for cell, c := range s.cells {
		out = append(out, PlacedClaim{Cell: cell, Claim: c})
	}
	sort.Slice(out, func(i, j int) bool { return cellLess(out[i].Cell, out[j].Cell) })
	return out
}

// CellFor maps score digits to the raw cell that displays them.
// Away digit picks the row, home digit the column.
func (s Snapshot) CellFor(homeDigit, awayDigit int) Cell {
	return Cell{Row: s.rowInv[awayDigit], Column: s.colInv[homeDigit]}
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool { return cellLess(cells[i], cells[j]) })
}

func cellLess(a, b Cell) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Column < b.Column
}
