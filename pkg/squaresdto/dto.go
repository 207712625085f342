// Package squaresdto holds the JSON shapes of the HTTP API.
package squaresdto

import "time"

type CreatePoolRequest struct {
	Room          string     `json:"room"`
	Name          string     `json:"name"`
	OrganizerName string     `json:"organizer_name,omitempty"`
	Size          int        `json:"size,omitempty"`
	AxisMode      string     `json:"axis_mode,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	MaxPerPlayer  int        `json:"max_per_player,omitempty"`
	HomeTeam      string     `json:"home_team,omitempty"`
	AwayTeam      string     `json:"away_team,omitempty"`
}

type ClaimRequest struct {
	Row          int    `json:"row"`
	Column       int    `json:"column"`
	DisplayName  string `json:"display_name,omitempty"`
	DisplayColor string `json:"display_color,omitempty"`
	DisplayStyle string `json:"display_style,omitempty"`
}

// ScoreRequest carries cumulative scores at the end of a period. A missing
// side leaves the period unresolved.
type ScoreRequest struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

type LinkRequest struct {
	SportPath string `json:"sport_path"`
	EventID   string `json:"event_id"`
}

type Claim struct {
	Row          int       `json:"row"`
	Column       int       `json:"column"`
	Owner        string    `json:"owner"`
	DisplayName  string    `json:"display_name,omitempty"`
	DisplayColor string    `json:"display_color,omitempty"`
	DisplayStyle string    `json:"display_style,omitempty"`
	Guest        bool      `json:"guest,omitempty"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

type Score struct {
	Period int  `json:"period"`
	Home   *int `json:"home"`
	Away   *int `json:"away"`
}

type Result struct {
	Period    int    `json:"period"`
	Status    string `json:"status"`
	HomeDigit int    `json:"home_digit"`
	AwayDigit int    `json:"away_digit"`
	Row       int    `json:"row"`
	Column    int    `json:"column"`
	Owner     string `json:"owner,omitempty"`
	Winner    string `json:"winner,omitempty"`
}

type Pool struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Room         string     `json:"room"`
	OrganizerID  string     `json:"organizer_id"`
	Status       string     `json:"status"`
	Size         int        `json:"size"`
	AxisMode     string     `json:"axis_mode"`
	RowLabels    []int      `json:"row_labels"`
	ColumnLabels []int      `json:"column_labels"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	MaxPerPlayer int        `json:"max_per_player,omitempty"`
	HomeTeam     string     `json:"home_team,omitempty"`
	AwayTeam     string     `json:"away_team,omitempty"`
	SportPath    string     `json:"sport_path,omitempty"`
	EventID      string     `json:"event_id,omitempty"`
	Claims       []Claim    `json:"claims"`
	Scores       []Score    `json:"scores"`
	Results      []Result   `json:"results"`
}

type ResultsResponse struct {
	PoolID  string   `json:"pool_id"`
	Results []Result `json:"results"`
	Sweeper string   `json:"sweeper,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply. Reason is a stable
// machine readable code such as "cell_already_claimed".
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
