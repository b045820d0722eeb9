package gene

import "math/rand"

// Blend crossover: per locus, 25% chance to inherit from each parent
// outright, 50% chance to take a random-proportion mix of both.
type Blend struct{}

func (b *Blend) Name() string { return "blend" }

func (b *Blend) Cross(a, c []float64, rng *rand.Rand) []float64 {
	child := make([]float64, len(a))
	for i := range child {
		switch r := rng.Float64(); {
		case r < 0.25:
			child[i] = a[i]
		case r < 0.5:
			child[i] = c[i]
		default:
			mix := rng.Float64()
			child[i] = mix*a[i] + (1-mix)*c[i]
		}
	}
	return child
}

// Uniform crossover: each locus inherited from either parent with equal
// probability.
type Uniform struct{}

func (u *Uniform) Name() string { return "uniform" }

func (u *Uniform) Cross(a, c []float64, rng *rand.Rand) []float64 {
	child := make([]float64, len(a))
	for i := range child {
		if rng.Float64() < 0.5 {
			child[i] = a[i]
		} else {
			child[i] = c[i]
		}
	}
	return child
}
