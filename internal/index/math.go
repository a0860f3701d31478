package index

import "math"

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type candidate struct {
	vec   []float32
	score float64
}

// mmrSelect greedily picks up to k candidates maximizing
// lambda*sim(query,c) - (1-lambda)*max(sim(c,selected)). The pool must already
// be sorted by query similarity descending; ties go to the earlier candidate.
func mmrSelect(pool []candidate, k int, lambda float64) []int {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	if k > len(pool) {
		k = len(pool)
	}

	picked := make([]int, 0, k)
	used := make([]bool, len(pool))

	picked = append(picked, 0)
	used[0] = true

	for len(picked) < k {
		bestIdx := -1
		bestVal := math.Inf(-1)
		for i := range pool {
			if used[i] {
				continue
			}
			maxSim := math.Inf(-1)
			for _, p := range picked {
				if sim := cosine(pool[i].vec, pool[p].vec); sim > maxSim {
					maxSim = sim
				}
			}
			val := lambda*pool[i].score - (1-lambda)*maxSim
			if val > bestVal {
				bestVal = val
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		picked = append(picked, bestIdx)
	}
	return picked
}
