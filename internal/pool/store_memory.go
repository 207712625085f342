package pool

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
)

// MemoryStore is an in-process Store for tests. A single mutex makes every
// conditional write atomic.
type MemoryStore struct {
	mu sync.RWMutex

	pools  map[string]Pool
	codes  map[string]string
	rooms  map[string]map[string]struct{}
	slots  map[string]string
	cells  map[string]map[grid.Cell]grid.Claim
	scores map[string]map[int]grid.QuarterScore
	linked map[string]struct{}
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:  make(map[string]Pool),
		codes:  make(map[string]string),
		rooms:  make(map[string]map[string]struct{}),
		slots:  make(map[string]string),
		cells:  make(map[string]map[grid.Cell]grid.Claim),
		scores: make(map[string]map[int]grid.QuarterScore),
		linked: make(map[string]struct{}),
	}
}

func (m *MemoryStore) ReserveCode(ctx context.Context, code, poolID string) (bool, error) {
	key := strings.ToUpper(strings.TrimSpace(code))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.codes[key]; exists {
		return false, nil
	}
	m.codes[key] = poolID
	return true, nil
}

func (m *MemoryStore) PoolIDByCode(ctx context.Context, code string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codes[strings.ToUpper(strings.TrimSpace(code))], nil
}

func (m *MemoryStore) SavePool(ctx context.Context, p *Pool) error {
	if p == nil {
		return ErrInvalidArgs
	}
	cp := *p
	cp.Moderators = append([]string(nil), p.Moderators...)
	cp.RowLabels = append([]int(nil), p.RowLabels...)
	cp.ColumnLabels = append([]int(nil), p.ColumnLabels...)
	m.mu.Lock()
	m.pools[p.ID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadPool(ctx context.Context, poolID string) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[poolID]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (m *MemoryStore) IndexRoom(ctx context.Context, room, poolID string) error {
	if strings.TrimSpace(room) == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rooms[room]
	if !ok {
		set = make(map[string]struct{})
		m.rooms[room] = set
	}
	set[poolID] = struct{}{}
	return nil
}

func (m *MemoryStore) PoolsInRoom(ctx context.Context, room string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.rooms[room]))
	for id := range m.rooms[room] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) ReserveRoom(ctx context.Context, room, poolID string) (bool, error) {
	room = strings.TrimSpace(room)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.slots[room]; taken {
		return false, nil
	}
	m.slots[room] = poolID
	return true, nil
}

func (m *MemoryStore) RoomHolder(ctx context.Context, room string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slots[strings.TrimSpace(room)], nil
}

func (m *MemoryStore) ReleaseRoom(ctx context.Context, room, poolID string) error {
	room = strings.TrimSpace(room)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[room] == poolID {
		delete(m.slots, room)
	}
	return nil
}

// checkOpen must be called with mu held.
func (m *MemoryStore) checkOpen(poolID string) error {
	p, ok := m.pools[poolID]
	if !ok {
		return ErrPoolNotFound
	}
	if p.Status == StatusFinal {
		return ErrPoolFinal
	}
	return nil
}

func (m *MemoryStore) LoadClaims(ctx context.Context, poolID string) ([]grid.PlacedClaim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]grid.PlacedClaim, 0, len(m.cells[poolID]))
	for cell, c := range m.cells[poolID] {
		out = append(out, grid.PlacedClaim{Cell: cell, Claim: c})
	}
	return out, nil
}

func (m *MemoryStore) PutClaimIfAbsent(ctx context.Context, poolID string, pc grid.PlacedClaim, maxPerOwner int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(poolID); err != nil {
		return err
	}
	cells, ok := m.cells[poolID]
	if !ok {
		cells = make(map[grid.Cell]grid.Claim)
		m.cells[poolID] = cells
	}
	if _, taken := cells[pc.Cell]; taken {
		return grid.ErrCellAlreadyClaimed
	}
	if maxPerOwner > 0 {
		n := 0
		for _, c := range cells {
			if c.Owner == pc.Claim.Owner {
				n++
			}
		}
		if n >= maxPerOwner {
			return grid.ErrClaimLimit
		}
	}
	cells[pc.Cell] = pc.Claim
	return nil
}

func (m *MemoryStore) DeleteClaimIf(ctx context.Context, poolID string, cell grid.Cell, allow func(grid.Claim) error) (grid.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(poolID); err != nil {
		return grid.Claim{}, err
	}
	cur, ok := m.cells[poolID][cell]
	if !ok {
		return grid.Claim{}, grid.ErrCellNotClaimed
	}
	if allow != nil {
		if err := allow(cur); err != nil {
			return grid.Claim{}, err
		}
	}
	delete(m.cells[poolID], cell)
	return cur, nil
}

func (m *MemoryStore) LoadScores(ctx context.Context, poolID string) ([]grid.QuarterScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]grid.QuarterScore, 0, len(m.scores[poolID]))
	for _, q := range m.scores[poolID] {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

func (m *MemoryStore) PutScore(ctx context.Context, poolID string, q grid.QuarterScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPeriod, ok := m.scores[poolID]
	if !ok {
		byPeriod = make(map[int]grid.QuarterScore)
		m.scores[poolID] = byPeriod
	}
	byPeriod[q.Period] = q
	return nil
}

func (m *MemoryStore) SetEventLinked(ctx context.Context, poolID string, linked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if linked {
		m.linked[poolID] = struct{}{}
	} else {
		delete(m.linked, poolID)
	}
	return nil
}

func (m *MemoryStore) LinkedPools(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.linked))
	for id := range m.linked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Publish(ctx context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// Events returns the published events for poolID in order.
func (m *MemoryStore) Events(poolID string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, ev := range m.events {
		if ev.PoolID == poolID {
			out = append(out, ev)
		}
	}
	return out
}
