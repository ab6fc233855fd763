package growth

import "math/rand/v2"

// ShouldDrainWater decides whether a placement also costs water. Water at
// or above the spore budget always drains; an empty reserve never does;
// in between the chance is water/spores so a small reserve lasts longer.
func ShouldDrainWater(rng *rand.Rand, spores, water int) bool {
	if water <= 0 {
		return false
	}
	if water >= spores {
		return true
	}
	return rng.Float64() < float64(water)/float64(spores)
}

// SporeBandAdvance is a stage-advance predicate: always below lo, never at
// or above hi, and increasingly likely as spores fall from hi towards lo.
func SporeBandAdvance(rng *rand.Rand, spores, lo, hi int) bool {
	if spores < lo {
		return true
	}
	if spores >= hi || hi <= lo {
		return false
	}
	return rng.Float64() < float64(hi-spores)/float64(hi-lo)
}

func WaterThresholdAdvance(water, threshold int) bool {
	return water < threshold
}

// Pay drains the spore cost of one placement and, when ShouldDrainWater
// agrees, the water cost.
func (a *Automaton) Pay(spores, water int) {
	drain := ShouldDrainWater(a.rng, a.spores, a.water)
	a.DrainSpores(spores)
	if drain {
		a.DrainWater(water)
	}
}
