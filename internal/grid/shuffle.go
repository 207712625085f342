package grid

import "math/rand/v2"

// Shuffle returns a uniformly random permutation of 0..n-1 (Fisher–Yates).
// Both axes of a randomized grid are drawn through this routine so a seeded
// source reproduces the same board.
func Shuffle(n int, rng *rand.Rand) []int {
	out := Sequence(n)
	if rng == nil {
		rng = newRand()
	}
	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Sequence returns 0..n-1 in index order.
func Sequence(n int) []int {
	if n < 0 {
		n = 0
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// NewSeededRand builds a deterministic source, mostly for tests and replays.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// inverse maps a label back to the raw index that displays it.
func inverse(labels []int) []int {
	inv := make([]int, len(labels))
	for idx, label := range labels {
		inv[label] = idx
	}
	return inv
}

func isPermutation(labels []int, n int) bool {
	if len(labels) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range labels {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
