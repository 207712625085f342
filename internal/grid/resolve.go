package grid

import "sort"

// ResolvePeriod computes the winning cell for one period. It is pure: the
// same snapshot and score always give the same result.
func ResolvePeriod(s Snapshot, q QuarterScore) WinningCellResult {
	res := WinningCellResult{Period: q.Period, Status: StatusUnresolved}
	if !q.Reported() || s.size < 2 {
		return res
	}
	res.HomeDigit = *q.Home % s.size
	res.AwayDigit = *q.Away % s.size
	res.Cell = s.CellFor(res.HomeDigit, res.AwayDigit)
	if c, ok := s.cells[res.Cell]; ok {
		owned := c
		res.Status = StatusWon
		res.Claim = &owned
		return res
	}
	res.Status = StatusNoWinner
	return res
}

// ResolveAllPeriods resolves every score independently, ordered by period.
func ResolveAllPeriods(s Snapshot, scores []QuarterScore) Results {
	out := make(Results, 0, len(scores))
	for _, q := range scores {
		out = append(out, ResolvePeriod(s, q))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// Resolve is ResolvePeriod on the receiver.
func (s Snapshot) Resolve(q QuarterScore) WinningCellResult { return ResolvePeriod(s, q) }

// Results is the per-period resolution list of one grid.
type Results []WinningCellResult

// Period returns the result for period p.
func (r Results) Period(p int) (WinningCellResult, bool) {
	for _, res := range r {
		if res.Period == p {
			return res, true
		}
	}
	return WinningCellResult{}, false
}

// Winners lists the owner per regulation period (1..4); "" marks an
// unresolved or unclaimed period.
func (r Results) Winners() []string {
	out := make([]string, RegulationPeriods)
	for _, res := range r {
		if res.Period >= 1 && res.Period <= RegulationPeriods {
			out[res.Period-1] = res.Owner()
		}
	}
	return out
}

// Sweep reports whether one owner won every regulation period.
func (r Results) Sweep() (string, bool) {
	winners := r.Winners()
	first := winners[0]
	if first == "" {
		return "", false
	}
	for _, w := range winners[1:] {
		if w != first {
			return "", false
		}
	}
	return first, true
}

// Tally counts won periods per owner, overtime included.
func (r Results) Tally() map[string]int {
	out := make(map[string]int)
	for _, res := range r {
		if owner := res.Owner(); owner != "" {
			out[owner]++
		}
	}
	return out
}

// Complete reports whether all regulation periods are resolved.
func (r Results) Complete() bool {
	for p := 1; p <= RegulationPeriods; p++ {
		res, ok := r.Period(p)
		if !ok || res.Status == StatusUnresolved {
			return false
		}
	}
	return true
}
