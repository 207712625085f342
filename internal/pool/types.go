package pool

import (
	"errors"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
)

// Status represents a pool lifecycle state.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusLocked Status = "LOCKED"
	StatusFinal  Status = "FINAL"
)

// SystemActor is used for score-feed driven updates.
const SystemActor = "system"

// Pool is stored as JSON under sq:pool:<id>. Claims and scores live in
// companion hashes so they can be updated without rewriting the meta.
type Pool struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Room          string        `json:"room"`
	OrganizerID   string        `json:"organizer_id"`
	OrganizerName string        `json:"organizer_name"`
	Moderators    []string      `json:"moderators,omitempty"`
	Size          int           `json:"size"`
	AxisMode      grid.AxisMode `json:"axis_mode"`
	RowLabels     []int         `json:"row_labels"`
	ColumnLabels  []int         `json:"column_labels"`
	Deadline      time.Time     `json:"deadline,omitempty"`
	MaxPerPlayer  int           `json:"max_per_player,omitempty"`
	HomeTeam      string        `json:"home_team,omitempty"`
	AwayTeam      string        `json:"away_team,omitempty"`
	SportPath     string        `json:"sport_path,omitempty"`
	EventID       string        `json:"event_id,omitempty"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// StatusAt folds the deadline into the stored status.
func (p *Pool) StatusAt(now time.Time) Status {
	if p.Status == StatusFinal {
		return StatusFinal
	}
	if !p.Deadline.IsZero() && !now.Before(p.Deadline) {
		return StatusLocked
	}
	return StatusOpen
}

// Linked reports whether a live score event is attached.
func (p *Pool) Linked() bool { return p.EventID != "" && p.SportPath != "" }

// CreateRequest carries the organizer's choices for a new pool.
type CreateRequest struct {
	Room          string
	Name          string
	OrganizerID   string
	OrganizerName string
	Size          int
	AxisMode      grid.AxisMode
	Deadline      time.Time
	MaxPerPlayer  int
	HomeTeam      string
	AwayTeam      string
}

// Board is a read-only view of a pool at one point in time.
type Board struct {
	Pool     *Pool
	Snapshot grid.Snapshot
	Scores   []grid.QuarterScore
	Results  grid.Results
}

// Errors
var (
	ErrInvalidArgs     = errors.New("invalid arguments")
	ErrPoolNotFound    = errors.New("pool not found or expired")
	ErrPoolFinal       = errors.New("pool already finalized")
	ErrNotOrganizer    = errors.New("only the organizer or a moderator can do that")
	ErrRoomBusy        = errors.New("room already has an open pool")
	ErrInvalidPeriod   = errors.New("period must be 1 or greater")
	ErrConflict        = errors.New("concurrent update detected, try again")
	ErrCodeUnavailable = errors.New("failed to allocate pool code")
)
