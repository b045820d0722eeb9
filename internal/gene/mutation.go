package gene

import "math/rand"

// Gaussian mutation: each locus is perturbed with probability Rate by
// Gaussian noise of mean 0 and standard deviation SD.
type Gaussian struct {
	Rate float64
	SD   float64
}

func (g *Gaussian) Name() string { return "gaussian" }

func (g *Gaussian) Mutate(genome []float64, rng *rand.Rand) []float64 {
	out := append([]float64(nil), genome...)
	for i := range out {
		if rng.Float64() < g.Rate {
			out[i] += rng.NormFloat64() * g.SD
		}
	}
	return out
}

// NoMutation passes genomes through unchanged.
type NoMutation struct{}

func (n *NoMutation) Name() string { return "none" }

func (n *NoMutation) Mutate(genome []float64, rng *rand.Rand) []float64 {
	return append([]float64(nil), genome...)
}
