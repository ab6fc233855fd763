package species

import (
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/tuning"
)

// Vine hangs downwards along solid faces, avoids clumping and is drawn to
// metal. It withers through its stages as its water runs low and drops
// tendril chains under fresh growth.
type Vine struct {
	base
}

func NewVine(t tuning.Species, blocks BlockResolver) (*Vine, error) {
	b, err := newBase("vine", t, blocks)
	if err != nil {
		return nil, err
	}
	return &Vine{base: b}, nil
}

func (v *Vine) Weight(a *growth.Automaton, env *growth.Env, target growth.Cell, dir growth.Dir, passthrough bool) int {
	w := v.weighing(v, a, env, target, dir, passthrough)
	if w.Base == 0 {
		return 0
	}
	hug := growth.CountNeighbors(env, target, func(b growth.Block) bool {
		return env.HasTag(b, growth.TagSolid) && !v.owns(b)
	})
	w.Neighborhood = hug * v.t.HugBonus
	own := growth.CountNeighbors(env, target, v.owns)
	if own > v.t.ClumpLimit {
		w.Neighborhood -= (own - v.t.ClumpLimit) * v.t.ClumpPenalty
	}
	return w.Total(passthrough)
}

func (v *Vine) OnGrowBlock(a *growth.Automaton, env *growth.Env, cell growth.Cell, _ growth.Block) {
	a.Pay(v.t.SporeCost, v.t.WaterCost)
	if a.Stage() < v.t.MaxStage && growth.WaterThresholdAdvance(a.Water(), v.t.WaterStageThreshold*(v.t.MaxStage-a.Stage())) {
		a.AdvanceStage()
	}
	v.effects(a, env, cell)
	if v.hasDecorator && v.t.DecoratorDepth > 0 && a.Rand().Float64() < v.t.DecoratorChance {
		v.hang(env, cell)
	}
}

// hang drops a tendril chain straight down from below cell, stopping at
// the first cell that cannot take growth.
func (v *Vine) hang(env *growth.Env, cell growth.Cell) {
	growth.Chain(cell.Add(growth.Down), v.t.DecoratorDepth, func(c growth.Cell, _ int) []growth.Cell {
		if !v.CanGrowHere(env, env.Grid.Cell(c)) || !env.Grid.SetCell(c, v.decorator) {
			return nil
		}
		return []growth.Cell{c.Add(growth.Down)}
	})
}
