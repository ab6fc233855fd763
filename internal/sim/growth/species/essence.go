package species

import (
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/tuning"
)

// Essence floods through water and spore sea several cells per tick,
// staying in a blob around its origin and budding off siblings.
type Essence struct {
	base
}

func NewEssence(t tuning.Species, blocks BlockResolver) (*Essence, error) {
	b, err := newBase("essence", t, blocks)
	if err != nil {
		return nil, err
	}
	return &Essence{base: b}, nil
}

func (e *Essence) CanGrowHere(env *growth.Env, blk growth.Block) bool {
	return env.HasTag(blk, growth.TagGrowable) || env.HasTag(blk, growth.TagWater)
}

func (e *Essence) Weight(a *growth.Automaton, env *growth.Env, target growth.Cell, dir growth.Dir, passthrough bool) int {
	w := e.weighing(e, a, env, target, dir, passthrough)
	if w.Base == 0 {
		return 0
	}
	if over := target.Manhattan(a.Origin()) - e.t.ClusterRadius; over > 0 {
		w.Distance = -over * e.t.OriginBias
	}
	return w.Total(passthrough)
}

func (e *Essence) OnGrowBlock(a *growth.Automaton, env *growth.Env, cell growth.Cell, _ growth.Block) {
	a.Pay(e.t.SporeCost, e.t.WaterCost)
	if a.Stage() < e.t.MaxStage && growth.WaterThresholdAdvance(a.Water(), e.t.WaterStageThreshold*(e.t.MaxStage-a.Stage())) {
		a.AdvanceStage()
	}
	e.effects(a, env, cell)
	e.maybeSplit(a, env)
}
