package scorefeed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
)

// GameState mirrors ESPN status.type.state.
type GameState string

const (
	StatePre  GameState = "pre"
	StateIn   GameState = "in"
	StatePost GameState = "post"
)

// ESPN status.type.name values for a break after a period ended.
const (
	StatusEndPeriod = "STATUS_END_PERIOD"
	StatusHalftime  = "STATUS_HALFTIME"
)

// Summary is the subset of an ESPN event summary the pools need.
type Summary struct {
	EventID   string
	HomeTeam  string
	AwayTeam  string
	State     GameState
	Status    string
	Completed bool
	Period    int
	Scores    []grid.QuarterScore
}

// Final reports whether the game is over.
func (s *Summary) Final() bool { return s.Completed || s.State == StatePost }

// Break reports whether play is stopped between periods.
func (s *Summary) Break() bool {
	return s.Status == StatusEndPeriod || s.Status == StatusHalftime
}

type summaryDoc struct {
	Header struct {
		ID           string        `json:"id"`
		Competitions []competition `json:"competitions"`
	} `json:"header"`
}

type competition struct {
	Competitors []competitor `json:"competitors"`
	Status      struct {
		Period int `json:"period"`
		Type   struct {
			Name      string `json:"name"`
			State     string `json:"state"`
			Completed bool   `json:"completed"`
		} `json:"type"`
	} `json:"status"`
}

type competitor struct {
	HomeAway string `json:"homeAway"`
	Team     struct {
		Abbreviation string `json:"abbreviation"`
		DisplayName  string `json:"displayName"`
	} `json:"team"`
	Linescores []Linescore `json:"linescores"`
}

// Linescore is one period of a competitor's points.
type Linescore struct {
	Value        *float64 `json:"value"`
	DisplayValue string   `json:"displayValue"`
}

func (l Linescore) points() (int, bool) {
	if l.Value != nil {
		return int(*l.Value), true
	}
	n, err := strconv.Atoi(strings.TrimSpace(l.DisplayValue))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseSummary decodes an ESPN summary body.
func ParseSummary(body []byte) (*Summary, error) {
	var doc summaryDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	if len(doc.Header.Competitions) == 0 {
		return nil, fmt.Errorf("summary %s: no competitions", doc.Header.ID)
	}
	comp := doc.Header.Competitions[0]
	var home, away *competitor
	for i := range comp.Competitors {
		switch strings.ToLower(comp.Competitors[i].HomeAway) {
		case "home":
			home = &comp.Competitors[i]
		case "away":
			away = &comp.Competitors[i]
		}
	}
	if home == nil || away == nil {
		return nil, fmt.Errorf("summary %s: missing home/away competitor", doc.Header.ID)
	}
	s := &Summary{
		EventID:   doc.Header.ID,
		HomeTeam:  teamName(home),
		AwayTeam:  teamName(away),
		State:     GameState(strings.ToLower(comp.Status.Type.State)),
		Status:    strings.ToUpper(strings.TrimSpace(comp.Status.Type.Name)),
		Completed: comp.Status.Type.Completed,
		Period:    comp.Status.Period,
	}
	s.Scores = ParseLinescores(home.Linescores, away.Linescores, s.completedPeriods())
	return s, nil
}

// completedPeriods is how many leading periods are settled. The period in
// progress carries a partial linescore and is left out. During a break ESPN
// still reports the period that just ended.
func (s *Summary) completedPeriods() int {
	switch {
	case s.Final():
		return -1
	case s.State == StateIn && s.Period > 0 && s.Break():
		return s.Period
	case s.State == StateIn && s.Period > 0:
		return s.Period - 1
	default:
		return 0
	}
}

// ParseLinescores turns per-period points into cumulative period-end scores.
// limit < 0 takes every period both sides reported.
func ParseLinescores(home, away []Linescore, limit int) []grid.QuarterScore {
	n := len(home)
	if len(away) < n {
		n = len(away)
	}
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]grid.QuarterScore, 0, n)
	var h, a int
	for i := 0; i < n; i++ {
		hp, ok1 := home[i].points()
		ap, ok2 := away[i].points()
		if !ok1 || !ok2 {
			break
		}
		h += hp
		a += ap
		out = append(out, grid.Score(i+1, h, a))
	}
	return out
}

func teamName(c *competitor) string {
	if c.Team.Abbreviation != "" {
		return c.Team.Abbreviation
	}
	return c.Team.DisplayName
}
