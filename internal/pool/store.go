package pool

import (
	"context"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
)

// Store is the persistence collaborator. Claim writes are conditioned on the
// current cell state so two players can never hold the same cell.
type Store interface {
	ReserveCode(ctx context.Context, code, poolID string) (bool, error)
	PoolIDByCode(ctx context.Context, code string) (string, error)

	SavePool(ctx context.Context, p *Pool) error
	// LoadPool returns nil, nil when the pool does not exist.
	LoadPool(ctx context.Context, poolID string) (*Pool, error)

	IndexRoom(ctx context.Context, room, poolID string) error
	PoolsInRoom(ctx context.Context, room string) ([]string, error)
	// ReserveRoom takes the room's open-pool slot if it is free.
	ReserveRoom(ctx context.Context, room, poolID string) (bool, error)
	// RoomHolder returns "" when the slot is free.
	RoomHolder(ctx context.Context, room string) (string, error)
	// ReleaseRoom frees the slot only while poolID still holds it.
	ReleaseRoom(ctx context.Context, room, poolID string) error

	LoadClaims(ctx context.Context, poolID string) ([]grid.PlacedClaim, error)
	// PutClaimIfAbsent is atomic per pool. It fails with ErrPoolFinal once the
	// pool is final, grid.ErrCellAlreadyClaimed when the cell is taken and
	// grid.ErrClaimLimit when maxPerOwner would be exceeded.
	PutClaimIfAbsent(ctx context.Context, poolID string, pc grid.PlacedClaim, maxPerOwner int) error
	// DeleteClaimIf removes the claim at cell when allow returns nil and the
	// pool is not final.
	DeleteClaimIf(ctx context.Context, poolID string, cell grid.Cell, allow func(grid.Claim) error) (grid.Claim, error)

	LoadScores(ctx context.Context, poolID string) ([]grid.QuarterScore, error)
	PutScore(ctx context.Context, poolID string, q grid.QuarterScore) error

	SetEventLinked(ctx context.Context, poolID string, linked bool) error
	LinkedPools(ctx context.Context) ([]string, error)

	Publish(ctx context.Context, ev Event) error
}

// EventType names an entry of the pool event stream.
type EventType string

const (
	EventCreated   EventType = "created"
	EventClaimed   EventType = "claimed"
	EventUnclaimed EventType = "unclaimed"
	EventKicked    EventType = "kicked"
	EventScored    EventType = "scored"
	EventLinked    EventType = "linked"
	EventFinalized EventType = "finalized"
)

// Event is appended to squares.events.<poolID> for fan-out consumers.
type Event struct {
	Type   EventType  `json:"type"`
	PoolID string     `json:"pool_id"`
	Actor  string     `json:"actor,omitempty"`
	Owner  string     `json:"owner,omitempty"`
	Cell   *grid.Cell `json:"cell,omitempty"`
	Period int        `json:"period,omitempty"`
	At     time.Time  `json:"at"`
}
