package growth

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Weighing collects the terms of one candidate direction.
// Force is ignored in passthrough mode.
type Weighing struct {
	Base         int
	Curvature    int
	Distance     int
	Neighborhood int
	Force        int
}

// Total is 0 when the base filter rejected the candidate, otherwise the
// summed terms floored at 1.
func (w Weighing) Total(passthrough bool) int {
	if w.Base <= 0 {
		return 0
	}
	t := w.Base + w.Curvature + w.Distance + w.Neighborhood
	if !passthrough {
		t += w.Force
	}
	if t < 1 {
		return 1
	}
	return t
}

// BaseTerm scores whether target can take growth at all. Growth-owned
// cells only qualify in passthrough mode.
func BaseTerm(sp Species, env *Env, target Cell, passthrough bool, grow, pass int) int {
	b := env.Grid.Cell(target)
	if sp.CanBreakHere(env, b) || sp.CanGrowHere(env, b) || sp.IsSource(env, b) {
		return grow
	}
	if passthrough && sp.IsGrowthBlock(env, b) {
		return pass
	}
	return 0
}

// ForceTerm is multiplier * dot(dir, force direction) * force magnitude.
func ForceTerm(a *Automaton, d Dir, multiplier float64) int {
	if a.forceMag == 0 || multiplier == 0 {
		return 0
	}
	return int(math.Round(multiplier * r3.Dot(d.Vec(), a.forceDir) * a.forceMag))
}

func CountNeighbors(env *Env, c Cell, pred func(Block) bool) int {
	n := 0
	for _, nb := range c.Neighbors() {
		if pred(env.Grid.Cell(nb)) {
			n++
		}
	}
	return n
}

// DistanceDelta is the signed change in Manhattan distance from origin
// when moving from one cell to another: +1 outward, -1 inward.
func DistanceDelta(origin, from, to Cell) int {
	return to.Manhattan(origin) - from.Manhattan(origin)
}
