package species

import (
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/tuning"
)

// Crystal packs into a compact cluster around its origin and shies away
// from metal.
type Crystal struct {
	base
}

func NewCrystal(t tuning.Species, blocks BlockResolver) (*Crystal, error) {
	b, err := newBase("crystal", t, blocks)
	if err != nil {
		return nil, err
	}
	return &Crystal{base: b}, nil
}

func (c *Crystal) Weight(a *growth.Automaton, env *growth.Env, target growth.Cell, dir growth.Dir, passthrough bool) int {
	w := c.weighing(c, a, env, target, dir, passthrough)
	if w.Base == 0 {
		return 0
	}
	if over := target.Manhattan(a.Origin()) - c.t.ClusterRadius; over > 0 {
		w.Distance = -over * c.t.OriginBias
	}
	w.Neighborhood = growth.CountNeighbors(env, target, c.owns) * c.t.HugBonus
	return w.Total(passthrough)
}

func (c *Crystal) OnGrowBlock(a *growth.Automaton, env *growth.Env, cell growth.Cell, _ growth.Block) {
	a.Pay(c.t.SporeCost, c.t.WaterCost)
	c.effects(a, env, cell)
	if growth.SporeBandAdvance(a.Rand(), a.Spores(), c.t.SporeBandMin, c.t.SporeBandMax) {
		a.AdvanceStage()
	}
}
