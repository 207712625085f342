package grid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AxisMode selects how digit labels are laid out along each axis.
type AxisMode string

const (
	AxisSequential AxisMode = "sequential"
	AxisRandomized AxisMode = "randomized"
)

// ParseAxisMode accepts the chat/HTTP spellings of an axis mode.
func ParseAxisMode(s string) (AxisMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "seq", "순서":
		return AxisSequential, true
	case "randomized", "random", "rand", "랜덤":
		return AxisRandomized, true
	default:
		return "", false
	}
}

// Cell is a raw grid coordinate. Row is indexed by the away digit axis,
// Column by the home digit axis.
type Cell struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Key is the compact "row:column" form used as a storage field name.
func (c Cell) Key() string { return strconv.Itoa(c.Row) + ":" + strconv.Itoa(c.Column) }

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Column) }

// ParseCell parses "r:c", "r,c" or "r c".
func ParseCell(s string) (Cell, error) {
	s = strings.TrimSpace(s)
	sep := strings.IndexAny(s, ":, ")
	if sep <= 0 || sep == len(s)-1 {
		return Cell{}, fmt.Errorf("invalid cell %q", s)
	}
	r, err := strconv.Atoi(strings.TrimSpace(s[:sep]))
	if err != nil {
		return Cell{}, fmt.Errorf("invalid cell row %q", s)
	}
	c, err := strconv.Atoi(strings.TrimSpace(s[sep+1:]))
	if err != nil {
		return Cell{}, fmt.Errorf("invalid cell column %q", s)
	}
	return Cell{Row: r, Column: c}, nil
}

// Claim is one player's ownership of one cell. Display fields are carried for
// rendering only and never affect resolution.
type Claim struct {
	Owner        string    `json:"owner"`
	DisplayName  string    `json:"display_name,omitempty"`
	DisplayColor string    `json:"display_color,omitempty"`
	DisplayStyle string    `json:"display_style,omitempty"`
	Guest        bool      `json:"guest,omitempty"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

// Label returns the name shown on the board.
func (c Claim) Label() string {
	if n := strings.TrimSpace(c.DisplayName); n != "" {
		return n
	}
	return c.Owner
}

// PlacedClaim pairs a claim with its coordinate.
type PlacedClaim struct {
	Cell  Cell  `json:"cell"`
	Claim Claim `json:"claim"`
}

// QuarterScore holds cumulative scores at the end of a period. A nil score
// means the period has not been reported yet.
type QuarterScore struct {
	Period int  `json:"period"`
	Home   *int `json:"home"`
	Away   *int `json:"away"`
}

// Score is a convenience constructor for a fully reported period.
func Score(period, home, away int) QuarterScore {
	return QuarterScore{Period: period, Home: &home, Away: &away}
}

// Reported reports whether both sides have a usable score.
func (q QuarterScore) Reported() bool {
	return q.Home != nil && q.Away != nil && *q.Home >= 0 && *q.Away >= 0
}

// Overtime reports whether the period is past regulation.
func (q QuarterScore) Overtime() bool { return q.Period > RegulationPeriods }

// DefaultSize is the classic 10x10 board.
const DefaultSize = 10

// MaxSize bounds the board so a rendered image stays small.
const MaxSize = 20

// RegulationPeriods is the number of periods a sweep has to cover.
const RegulationPeriods = 4

// ResultStatus is the resolution state of one period.
type ResultStatus string

const (
	StatusUnresolved ResultStatus = "unresolved"
	StatusNoWinner   ResultStatus = "no_winner"
	StatusWon        ResultStatus = "won"
)

// WinningCellResult is derived per period and never stored by the engine.
type WinningCellResult struct {
	Period    int          `json:"period"`
	Status    ResultStatus `json:"status"`
	HomeDigit int          `json:"home_digit"`
	AwayDigit int          `json:"away_digit"`
	Cell      Cell         `json:"cell"`
	Claim     *Claim       `json:"claim,omitempty"`
}

// Owner returns the winning owner id, or "" when the period has no winner.
func (r WinningCellResult) Owner() string {
	if r.Status != StatusWon || r.Claim == nil {
		return ""
	}
	return r.Claim.Owner
}
