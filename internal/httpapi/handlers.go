package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/park285/Squares-KakaoTalk-bot/pkg/squaresdto"
	"go.uber.org/zap"
)

const maxBody = 64 << 10

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req squaresdto.CreatePoolRequest
	if !decode(w, r, &req) {
		return
	}
	in := pool.CreateRequest{
		Room:          req.Room,
		Name:          req.Name,
		OrganizerID:   userFrom(r),
		OrganizerName: req.OrganizerName,
		Size:          req.Size,
		MaxPerPlayer:  req.MaxPerPlayer,
		HomeTeam:      req.HomeTeam,
		AwayTeam:      req.AwayTeam,
	}
	if req.AxisMode != "" {
		mode, ok := grid.ParseAxisMode(req.AxisMode)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_axis_mode", "axis_mode must be sequential or randomized")
			return
		}
		in.AxisMode = mode
	}
	if req.Deadline != nil {
		in.Deadline = *req.Deadline
	}
	p, err := s.pools.Create(r.Context(), in)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	b, err := s.pools.Board(r.Context(), p.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPool(b, s.now()))
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	b, err := s.pools.Board(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPool(b, s.now()))
}

func (s *Server) boardPNG(w http.ResponseWriter, r *http.Request) {
	b, err := s.pools.Board(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	png, err := s.renderer.RenderPNG(r.Context(), b)
	if err != nil {
		obslog.L().Error("http_render_error", zap.String("pool_id", b.Pool.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "render_failed", "could not render board")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	var req squaresdto.ClaimRequest
	if !decode(w, r, &req) {
		return
	}
	cell := grid.Cell{Row: req.Row, Column: req.Column}
	c, err := s.pools.Claim(r.Context(), chi.URLParam(r, "poolID"), cell, grid.Claim{
		Owner:        userFrom(r),
		DisplayName:  req.DisplayName,
		DisplayColor: req.DisplayColor,
		DisplayStyle: req.DisplayStyle,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toClaim(grid.PlacedClaim{Cell: cell, Claim: c}))
}

func (s *Server) unclaim(w http.ResponseWriter, r *http.Request) {
	row, err1 := strconv.Atoi(chi.URLParam(r, "row"))
	col, err2 := strconv.Atoi(chi.URLParam(r, "col"))
	if err1 != nil || err2 != nil {
		respondError(w, http.StatusBadRequest, "invalid_cell", "row and col must be integers")
		return
	}
	if err := s.pools.Unclaim(r.Context(), chi.URLParam(r, "poolID"), grid.Cell{Row: row, Column: col}, userFrom(r)); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putScore(w http.ResponseWriter, r *http.Request) {
	period, err := strconv.Atoi(chi.URLParam(r, "period"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_period", "period must be an integer")
		return
	}
	var req squaresdto.ScoreRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.pools.SetScore(r.Context(), chi.URLParam(r, "poolID"), userFrom(r),
		grid.QuarterScore{Period: period, Home: req.Home, Away: req.Away})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toResult(res))
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	b, err := s.pools.Board(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	out := squaresdto.ResultsResponse{PoolID: b.Pool.ID, Results: toResults(b.Results)}
	out.Sweeper, _ = b.Results.Sweep()
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) linkEvent(w http.ResponseWriter, r *http.Request) {
	var req squaresdto.LinkRequest
	if !decode(w, r, &req) {
		return
	}
	poolID := chi.URLParam(r, "poolID")
	if err := s.pools.LinkEvent(r.Context(), poolID, userFrom(r), req.SportPath, req.EventID); err != nil {
		respondDomainError(w, err)
		return
	}
	s.getPool(w, r)
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	b, err := s.pools.Finalize(r.Context(), chi.URLParam(r, "poolID"), userFrom(r))
	if b == nil {
		respondDomainError(w, err)
		return
	}
	if err != nil {
		obslog.L().Warn("http_finalize_archive", zap.String("pool_id", b.Pool.ID), zap.Error(err))
	}
	respondJSON(w, http.StatusOK, toPool(b, s.now()))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func toPool(b *pool.Board, now time.Time) squaresdto.Pool {
	p := b.Pool
	out := squaresdto.Pool{
		ID:           p.ID,
		Code:         p.Code,
		Name:         p.Name,
		Room:         p.Room,
		OrganizerID:  p.OrganizerID,
		Status:       strings.ToLower(string(p.StatusAt(now))),
		Size:         p.Size,
		AxisMode:     string(p.AxisMode),
		RowLabels:    b.Snapshot.RowLabels(),
		ColumnLabels: b.Snapshot.ColumnLabels(),
		MaxPerPlayer: p.MaxPerPlayer,
		HomeTeam:     p.HomeTeam,
		AwayTeam:     p.AwayTeam,
		SportPath:    p.SportPath,
		EventID:      p.EventID,
		Claims:       []squaresdto.Claim{},
		Scores:       []squaresdto.Score{},
		Results:      toResults(b.Results),
	}
	if !p.Deadline.IsZero() {
		d := p.Deadline
		out.Deadline = &d
	}
	for _, pc := range b.Snapshot.Claims() {
		out.Claims = append(out.Claims, toClaim(pc))
	}
	for _, q := range b.Scores {
		out.Scores = append(out.Scores, squaresdto.Score{Period: q.Period, Home: q.Home, Away: q.Away})
	}
	return out
}

func toClaim(pc grid.PlacedClaim) squaresdto.Claim {
	return squaresdto.Claim{
		Row:          pc.Cell.Row,
		Column:       pc.Cell.Column,
		Owner:        pc.Claim.Owner,
		DisplayName:  pc.Claim.DisplayName,
		DisplayColor: pc.Claim.DisplayColor,
		DisplayStyle: pc.Claim.DisplayStyle,
		Guest:        pc.Claim.Guest,
		ClaimedAt:    pc.Claim.ClaimedAt,
	}
}

func toResults(rs grid.Results) []squaresdto.Result {
	out := make([]squaresdto.Result, 0, len(rs))
	for _, res := range rs {
		out = append(out, toResult(res))
	}
	return out
}

func toResult(res grid.WinningCellResult) squaresdto.Result {
	out := squaresdto.Result{
		Period:    res.Period,
		Status:    string(res.Status),
		HomeDigit: res.HomeDigit,
		AwayDigit: res.AwayDigit,
		Row:       res.Cell.Row,
		Column:    res.Cell.Column,
		Owner:     res.Owner(),
	}
	if res.Status == grid.StatusWon && res.Claim != nil {
		out.Winner = res.Claim.Label()
	}
	return out
}

type errorMapping struct {
	err    error
	status int
	reason string
}

var errorTable = []errorMapping{
	{pool.ErrPoolNotFound, http.StatusNotFound, "pool_not_found"},
	{grid.ErrCellNotClaimed, http.StatusNotFound, "cell_not_claimed"},
	{grid.ErrOutOfBounds, http.StatusBadRequest, "out_of_bounds"},
	{grid.ErrInvalidSize, http.StatusBadRequest, "invalid_size"},
	{grid.ErrInvalidOwner, http.StatusBadRequest, "invalid_owner"},
	{pool.ErrInvalidArgs, http.StatusBadRequest, "invalid_arguments"},
	{pool.ErrInvalidPeriod, http.StatusBadRequest, "invalid_period"},
	{grid.ErrCellAlreadyClaimed, http.StatusConflict, "cell_already_claimed"},
	{grid.ErrClaimLimit, http.StatusConflict, "claim_limit"},
	{pool.ErrRoomBusy, http.StatusConflict, "room_busy"},
	{pool.ErrConflict, http.StatusConflict, "conflict"},
	{grid.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{grid.ErrNotModerator, http.StatusForbidden, "not_moderator"},
	{pool.ErrNotOrganizer, http.StatusForbidden, "not_moderator"},
	{grid.ErrDeadlinePassed, http.StatusLocked, "deadline_passed"},
	{pool.ErrPoolFinal, http.StatusLocked, "pool_final"},
}

// StatusFor maps a domain error to its HTTP status and reason code.
func StatusFor(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.reason
		}
	}
	return http.StatusInternalServerError, "internal"
}

func respondDomainError(w http.ResponseWriter, err error) {
	status, reason := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		obslog.L().Error("http_internal_error", zap.Error(err))
		msg = "internal error"
	}
	respondError(w, status, reason, msg)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		obslog.L().Warn("http_encode_error", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, reason, message string) {
	respondJSON(w, status, squaresdto.ErrorResponse{
		Error:   http.StatusText(status),
		Reason:  reason,
		Message: message,
		Code:    status,
	})
}
