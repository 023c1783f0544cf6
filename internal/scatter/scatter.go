// Package scatter implements conflict-safe batched scatter-add.
//
// A batched accumulation step computes one destination index and one
// contribution per lane and then adds every contribution into a shared
// buffer. When two lanes of the same batch target the same index (the
// "histogram problem"), a naive gather-add-store of all lanes would let the
// later store overwrite the earlier one. Adder first groups lanes by
// destination, sums each group in lane order, and then performs exactly one
// read-modify-write per distinct destination.
//
// Thread safety: an Adder owns scratch memory and is NOT safe for concurrent
// use. Distinct Adders may target disjoint buffers concurrently.
package scatter

import "slices"

// smallBatch is the largest lane count resolved by pairwise comparison.
// Larger batches are grouped by a stable sort of their indices.
const smallBatch = 32

// Adder performs scatter-add over batches of lanes.
// The zero value is ready to use.
type Adder struct {
	claimed []bool
	order   []int
}

// Add performs dst[idx[i]] += val[i] for every lane i whose mask bit is set.
// A nil mask enables every lane. Lanes sharing a destination are summed in
// lane order before the single store to that destination.
//
// Add returns the number of distinct destinations written.
// It panics if an enabled lane's index is outside dst.
func (a *Adder) Add(dst []float64, idx []int, val []float64, mask []bool) int {
	n := min(len(idx), len(val))
	if mask != nil {
		n = min(n, len(mask))
	}
	if n == 0 {
		return 0
	}
	if n <= smallBatch {
		return a.addPairwise(dst, idx[:n], val[:n], mask)
	}
	return a.addSorted(dst, idx[:n], val[:n], mask)
}

// addPairwise groups lanes by scanning forward from each unclaimed leader.
func (a *Adder) addPairwise(dst []float64, idx []int, val []float64, mask []bool) int {
	claimed := a.scratchClaimed(len(idx))
	stores := 0
	for i, target := range idx {
		if claimed[i] || !enabled(mask, i) {
			continue
		}
		sum := val[i]
		for j := i + 1; j < len(idx); j++ {
			if !claimed[j] && idx[j] == target && enabled(mask, j) {
				sum += val[j]
				claimed[j] = true
			}
		}
		dst[target] += sum
		stores++
	}
	return stores
}

// addSorted groups lanes by a stable sort on their destination.
func (a *Adder) addSorted(dst []float64, idx []int, val []float64, mask []bool) int {
	order := a.order[:0]
	for i := range idx {
		if enabled(mask, i) {
			order = append(order, i)
		}
	}
	a.order = order

	slices.SortStableFunc(order, func(x, y int) int {
		return idx[x] - idx[y]
	})

	stores := 0
	for k := 0; k < len(order); {
		target := idx[order[k]]
		sum := 0.0
		for k < len(order) && idx[order[k]] == target {
			sum += val[order[k]]
			k++
		}
		dst[target] += sum
		stores++
	}
	return stores
}

// scratchClaimed returns a zeroed claim mask of length n.
func (a *Adder) scratchClaimed(n int) []bool {
	if cap(a.claimed) < n {
		a.claimed = make([]bool, n)
		return a.claimed
	}
	a.claimed = a.claimed[:n]
	clear(a.claimed)
	return a.claimed
}

func enabled(mask []bool, i int) bool {
	return mask == nil || mask[i]
}

// Conflicts reports whether two enabled lanes share a destination.
func Conflicts(idx []int, mask []bool) bool {
	for i := range idx {
		if !enabled(mask, i) {
			continue
		}
		for j := i + 1; j < len(idx); j++ {
			if idx[j] == idx[i] && enabled(mask, j) {
				return true
			}
		}
	}
	return false
}
