package protocol

import (
	"fmt"

	"github.com/crucible-lab/crucible/internal/config"
	"github.com/crucible-lab/crucible/internal/population"
)

// Normalize rescales the listed parameters so the dispensed volumes sum to
// the vial volume. Parameters outside the list are static volumes: they keep
// their raw value and are subtracted from the normalisation budget first.
// The GA searches arbitrary ratios; this turns them into physical volumes.
func Normalize(r population.Recipe, n *config.NormalizeBlock) (population.Recipe, error) {
	if n == nil {
		return r, nil
	}
	scaled := make(map[string]bool, len(n.Params))
	for _, name := range n.Params {
		scaled[name] = true
	}

	budget := n.Volume
	sum := 0.0
	for i, name := range r.Params {
		if scaled[name] {
			sum += r.Values[i]
		} else {
			budget -= r.Values[i]
		}
	}
	if budget <= 0 {
		return population.Recipe{}, fmt.Errorf("static volumes exceed vial volume %v", n.Volume)
	}

	values := make([]float64, len(r.Values))
	for i, name := range r.Params {
		if scaled[name] {
			if sum == 0 {
				// Degenerate all-zero recipe: split the budget evenly.
				values[i] = budget / float64(len(n.Params))
			} else {
				values[i] = r.Values[i] / sum * budget
			}
		} else {
			values[i] = r.Values[i]
		}
	}
	return population.NewRecipe(r.Params, values)
}
