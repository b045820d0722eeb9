package gene

import (
	"math"
	"math/rand"
	"sort"
)

// Truncation picks the n fittest entries, ties broken by pool order.
type Truncation struct{}

func (t *Truncation) Name() string { return "truncation" }

func (t *Truncation) Pick(pool []Scored, n int, rng *rand.Rand) []Scored {
	if n > len(pool) {
		n = len(pool)
	}
	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return pool[idx[a]].Fitness > pool[idx[b]].Fitness
	})
	out := make([]Scored, n)
	for i := 0; i < n; i++ {
		out[i] = pool[idx[i]]
	}
	return out
}

// Softmax picks n entries probabilistically without replacement, with
// probabilities softmax(fitness / temp). A high temperature flattens the
// distribution so even less fit entries have a chance; a low temperature
// sharpens it so the fittest dominate.
type Softmax struct {
	Temp float64
}

func (s *Softmax) Name() string { return "softmax" }

func (s *Softmax) Pick(pool []Scored, n int, rng *rand.Rand) []Scored {
	if n > len(pool) {
		n = len(pool)
	}
	probs := softmax(fitnesses(pool), s.Temp)
	out := make([]Scored, 0, n)
	for len(out) < n {
		probs = normalize(probs)
		i := choose(probs, rng)
		out = append(out, pool[i])
		// Selected entries cannot be drawn again.
		probs[i] = 0
	}
	return out
}

func fitnesses(pool []Scored) []float64 {
	out := make([]float64, len(pool))
	for i, s := range pool {
		out[i] = s.Fitness
	}
	return out
}

// softmax computes exp(x/temp) / sum(exp(x/temp)), shifted by the maximum
// for numerical stability.
func softmax(values []float64, temp float64) []float64 {
	maxV := math.Inf(-1)
	for _, v := range values {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		out[i] = math.Exp((v - maxV) / temp)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// normalize rescales to a probability distribution; an all-zero vector
// becomes uniform so selection never stalls.
func normalize(x []float64) []float64 {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	out := make([]float64, len(x))
	if sum == 0 {
		for i := range out {
			out[i] = 1 / float64(len(x))
		}
		return out
	}
	for i, v := range x {
		out[i] = v / sum
	}
	return out
}

// choose draws one index from the distribution.
func choose(probs []float64, rng *rand.Rand) int {
	r := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r < acc {
			return i
		}
	}
	return len(probs) - 1
}
