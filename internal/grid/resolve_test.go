package grid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePeriodScenario(t *testing.T) {
	g := newSeq(t)

	// empty winning cell
	res := ResolvePeriod(g.Snapshot(), Score(1, 17, 14))
	require.Equal(t, StatusNoWinner, res.Status)
	require.Equal(t, Cell{Row: 4, Column: 7}, res.Cell)
	require.Equal(t, 7, res.HomeDigit)
	require.Equal(t, 4, res.AwayDigit)
	require.Equal(t, "", res.Owner())

	_, err := g.ClaimCell(4, 7, Claim{Owner: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	res = ResolvePeriod(g.Snapshot(), Score(1, 17, 14))
	require.Equal(t, StatusWon, res.Status)
	require.Equal(t, "alice", res.Owner())
	require.Equal(t, "Alice", res.Claim.Label())
}

func TestResolveUsesInverseLabels(t *testing.T) {
	g, err := Restore(State{
		Size:         10,
		Mode:         AxisRandomized,
		RowLabels:    []int{3, 8, 1, 9, 0, 4, 6, 2, 7, 5},
		ColumnLabels: []int{6, 2, 9, 0, 7, 5, 1, 3, 8, 4},
	})
	require.NoError(t, err)
	// away digit 4 is displayed on row index 5, home digit 7 on column index 4
	res := g.Snapshot().Resolve(Score(2, 27, 24))
	require.Equal(t, Cell{Row: 5, Column: 4}, res.Cell)
	require.Equal(t, g.RowLabels()[res.Cell.Row], res.AwayDigit)
	require.Equal(t, g.ColumnLabels()[res.Cell.Column], res.HomeDigit)
}

func TestResolveUnresolvedIsNotAnError(t *testing.T) {
	g := newSeq(t)
	res := ResolvePeriod(g.Snapshot(), QuarterScore{Period: 3})
	require.Equal(t, StatusUnresolved, res.Status)
	require.Equal(t, 3, res.Period)
	require.Nil(t, res.Claim)

	home := 10
	res = ResolvePeriod(g.Snapshot(), QuarterScore{Period: 2, Home: &home})
	require.Equal(t, StatusUnresolved, res.Status)

	neg := -1
	res = ResolvePeriod(g.Snapshot(), QuarterScore{Period: 2, Home: &home, Away: &neg})
	require.Equal(t, StatusUnresolved, res.Status)
}

func TestResolveIsIdempotentAndPure(t *testing.T) {
	g := newSeq(t)
	_, err := g.ClaimCell(0, 0, Claim{Owner: "bob"})
	require.NoError(t, err)
	snap := g.Snapshot()
	a := ResolvePeriod(snap, Score(1, 10, 20))
	b := ResolvePeriod(snap, Score(1, 10, 20))
	require.Equal(t, a, b)
	require.Equal(t, 1, snap.Len())

	// later claims do not leak into an earlier snapshot
	_, err = g.ClaimCell(1, 1, Claim{Owner: "carol"})
	require.NoError(t, err)
	require.Equal(t, StatusNoWinner, snap.Resolve(Score(1, 1, 1)).Status)
	require.Equal(t, StatusWon, g.Snapshot().Resolve(Score(1, 1, 1)).Status)
}

func TestResolveAllPeriodsSweep(t *testing.T) {
	g := newSeq(t)
	_, err := g.ClaimCell(0, 7, Claim{Owner: "alice"})
	require.NoError(t, err)

	// every period ends with home ...7 and away ...0
	scores := []QuarterScore{
		Score(4, 37, 30),
		Score(1, 7, 0),
		Score(2, 17, 10),
		Score(3, 27, 20),
	}
	results := ResolveAllPeriods(g.Snapshot(), scores)
	require.Len(t, results, 4)
	require.Equal(t, []string{"alice", "alice", "alice", "alice"}, results.Winners())
	owner, ok := results.Sweep()
	require.True(t, ok)
	require.Equal(t, "alice", owner)
	require.True(t, results.Complete())
	require.Equal(t, map[string]int{"alice": 4}, results.Tally())
	for i, r := range results {
		require.Equal(t, i+1, r.Period)
	}
}

func TestResolveAllPeriodsIndependent(t *testing.T) {
	g := newSeq(t)
	_, err := g.ClaimCell(3, 3, Claim{Owner: "dan"})
	require.NoError(t, err)
	_, err = g.ClaimCell(4, 4, Claim{Owner: "erin"})
	require.NoError(t, err)

	results := ResolveAllPeriods(g.Snapshot(), []QuarterScore{
		Score(1, 3, 3),
		{Period: 2},
		Score(3, 9, 9),
		Score(4, 14, 14),
		Score(5, 23, 13), // overtime resolves like regulation
	})
	require.Equal(t, StatusWon, results[0].Status)
	require.Equal(t, StatusUnresolved, results[1].Status)
	require.Equal(t, StatusNoWinner, results[2].Status)
	require.Equal(t, "erin", results[3].Owner())
	require.Equal(t, "dan", results[4].Owner())

	_, ok := results.Sweep()
	require.False(t, ok)
	require.False(t, results.Complete())
	require.Equal(t, map[string]int{"dan": 2, "erin": 1}, results.Tally())
}

func TestResolveRegressingScoresAccepted(t *testing.T) {
	g := newSeq(t)
	_, err := g.ClaimCell(1, 2, Claim{Owner: "fay"})
	require.NoError(t, err)
	results := ResolveAllPeriods(g.Snapshot(), []QuarterScore{Score(1, 22, 21), Score(2, 12, 11)})
	require.Equal(t, "fay", results[0].Owner())
	require.Equal(t, "fay", results[1].Owner())
}
