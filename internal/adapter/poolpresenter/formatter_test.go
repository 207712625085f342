package poolpresenter

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefix string

func (p prefix) Prefix() string { return string(p) }

func newFormatter(t *testing.T) *Formatter {
	t.Helper()
	cat, err := msgcat.New("")
	require.NoError(t, err)
	return NewFormatter(cat, prefix("!sq"), time.UTC)
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "1쿼터", PeriodLabel(1))
	assert.Equal(t, "4쿼터", PeriodLabel(4))
	assert.Equal(t, "연장1", PeriodLabel(5))
	assert.Equal(t, "연장3", PeriodLabel(7))
}

func TestErrorMessages(t *testing.T) {
	f := newFormatter(t)
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("claim (4,7): %w", grid.ErrCellAlreadyClaimed), "이미 선택된 칸"},
		{grid.ErrOutOfBounds, "0부터 4까지"},
		{grid.ErrClaimLimit, "최대 3칸"},
		{pool.ErrPoolNotFound, "!sq 생성"},
		{pool.ErrNotOrganizer, "운영자만"},
		{grid.ErrDeadlinePassed, "마감"},
		{fmt.Errorf("dial tcp: refused"), "잠시 후"},
	}
	for _, tc := range cases {
		got := f.Error(tc.err, 5, 3)
		assert.Contains(t, got, tc.want, "err=%v", tc.err)
	}
}

func TestResultAndFinal(t *testing.T) {
	f := newFormatter(t)
	g, err := grid.NewGrid(10, grid.AxisSequential)
	require.NoError(t, err)
	_, err = g.ClaimCell(4, 7, grid.Claim{Owner: "u1", DisplayName: "Kim"})
	require.NoError(t, err)

	snap := g.Snapshot()
	scores := []grid.QuarterScore{grid.Score(1, 17, 14), grid.Score(5, 30, 21)}
	b := &pool.Board{
		Pool:     &pool.Pool{Name: "결승전", Code: "SQ-TEST01", Size: 10},
		Snapshot: snap,
		Scores:   scores,
		Results:  grid.ResolveAllPeriods(snap, scores),
	}

	won := f.Result(b.Results[0], scores[0])
	assert.Contains(t, won, "1쿼터 17:14")
	assert.Contains(t, won, "(4,7) Kim")

	ot := f.Result(b.Results[1], scores[1])
	assert.Contains(t, ot, "연장1")
	assert.Contains(t, ot, "당첨자 없음")

	final := f.Final(b)
	assert.True(t, strings.HasPrefix(final, "🏁 결승전 종료"), final)
	assert.Contains(t, final, "1쿼터: 17:14 → Kim")
	assert.NotContains(t, final, "싹쓸이")
}

func TestCreatedShowsDeadline(t *testing.T) {
	f := newFormatter(t)
	p := &pool.Pool{Name: "결승전", Code: "SQ-TEST01", Size: 10, AxisMode: grid.AxisRandomized,
		Deadline: time.Date(2026, 2, 8, 19, 30, 0, 0, time.UTC)}
	out := f.Created(p)
	assert.Contains(t, out, "랜덤 배치")
	assert.Contains(t, out, "02/08 19:30")

	p.Deadline = time.Time{}
	assert.NotContains(t, f.Created(p), "선택 마감")
}
