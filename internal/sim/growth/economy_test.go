package growth

import (
	"math/rand/v2"
	"testing"
)

func TestShouldDrainWater(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	if ShouldDrainWater(rng, 0, 0) {
		t.Fatalf("empty reserve must not drain")
	}
	if ShouldDrainWater(rng, 5, 0) {
		t.Fatalf("zero water must not drain")
	}
	if !ShouldDrainWater(rng, 10, 10) || !ShouldDrainWater(rng, 3, 10) {
		t.Fatalf("water at or above spores must always drain")
	}
}

func TestShouldDrainWater_ProportionalChance(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	hits := 0
	for i := 0; i < 4000; i++ {
		if ShouldDrainWater(rng, 100, 25) {
			hits++
		}
	}
	if hits < 850 || hits > 1150 {
		t.Fatalf("expected about 1000/4000 drains, got %d", hits)
	}
}

func TestSporeBandAdvance(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 50; i++ {
		if !SporeBandAdvance(rng, 9, 10, 20) {
			t.Fatalf("below the band must always advance")
		}
		if SporeBandAdvance(rng, 20, 10, 20) || SporeBandAdvance(rng, 35, 10, 20) {
			t.Fatalf("at or above the band must never advance")
		}
	}
	low, high := 0, 0
	for i := 0; i < 2000; i++ {
		if SporeBandAdvance(rng, 11, 10, 20) {
			low++
		}
		if SporeBandAdvance(rng, 19, 10, 20) {
			high++
		}
	}
	if low <= high {
		t.Fatalf("advance should be likelier near the bottom of the band: low=%d high=%d", low, high)
	}
}

func TestWaterThresholdAdvance(t *testing.T) {
	if !WaterThresholdAdvance(4, 5) || WaterThresholdAdvance(5, 5) {
		t.Fatalf("unexpected threshold result")
	}
}

func TestPay_DrainsWaterOnlyWhenChosen(t *testing.T) {
	a := newTestAutomaton(newTestSpecies(), 10, 10)
	a.Pay(2, 3)
	if a.Spores() != 8 || a.Water() != 7 {
		t.Fatalf("expected 8/7, got %d/%d", a.Spores(), a.Water())
	}
	a.water = 0
	a.Pay(2, 3)
	if a.Spores() != 6 || a.Water() != 0 {
		t.Fatalf("expected 6/0, got %d/%d", a.Spores(), a.Water())
	}
}

func TestDrainClampsAtZero(t *testing.T) {
	a := newTestAutomaton(newTestSpecies(), 3, 3)
	a.DrainSpores(10)
	a.DrainWater(10)
	a.DrainSpores(-4)
	if a.Spores() != 0 || a.Water() != 0 {
		t.Fatalf("expected clamped budgets, got %d/%d", a.Spores(), a.Water())
	}
}
