package species

import (
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/tuning"
)

// Spine pushes straight out from where it started. Its stage follows the
// spore band and each stage change may fork a sibling.
type Spine struct {
	base
}

func NewSpine(t tuning.Species, blocks BlockResolver) (*Spine, error) {
	b, err := newBase("spine", t, blocks)
	if err != nil {
		return nil, err
	}
	return &Spine{base: b}, nil
}

func (s *Spine) Weight(a *growth.Automaton, env *growth.Env, target growth.Cell, dir growth.Dir, passthrough bool) int {
	w := s.weighing(s, a, env, target, dir, passthrough)
	if w.Base == 0 {
		return 0
	}
	w.Distance = growth.DistanceDelta(a.Origin(), a.Cell(), target) * s.t.OriginBias
	return w.Total(passthrough)
}

func (s *Spine) OnGrowBlock(a *growth.Automaton, env *growth.Env, cell growth.Cell, _ growth.Block) {
	a.Pay(s.t.SporeCost, s.t.WaterCost)
	s.effects(a, env, cell)
	if !growth.SporeBandAdvance(a.Rand(), a.Spores(), s.t.SporeBandMin, s.t.SporeBandMax) {
		return
	}
	a.AdvanceStage()
	if a.Stage() <= s.t.MaxStage {
		s.maybeSplit(a, env)
	}
}
