package species

import (
	"fmt"

	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/tuning"
)

// BlockResolver maps catalog names to palette ids.
type BlockResolver interface {
	BlockID(name string) (uint16, bool)
}

// base carries the tuning, resolved blocks and the placement rules shared
// by all species.
type base struct {
	name   string
	t      tuning.Species
	stages []growth.Block

	decorator    growth.Block
	hasDecorator bool
}

func newBase(name string, t tuning.Species, blocks BlockResolver) (base, error) {
	b := base{name: name, t: t}
	for _, s := range t.StageBlocks {
		id, ok := blocks.BlockID(s)
		if !ok {
			return b, fmt.Errorf("species %s: unknown stage block %s", name, s)
		}
		b.stages = append(b.stages, id)
	}
	if len(b.stages) == 0 {
		return b, fmt.Errorf("species %s: no stage blocks", name)
	}
	if t.DecoratorBlock != "" {
		id, ok := blocks.BlockID(t.DecoratorBlock)
		if !ok {
			return b, fmt.Errorf("species %s: unknown decorator block %s", name, t.DecoratorBlock)
		}
		b.decorator, b.hasDecorator = id, true
	}
	return b, nil
}

func (b *base) Name() string { return b.name }

// NextBlock is the block of the current stage; stages past the list reuse
// the last entry.
func (b *base) NextBlock(a *growth.Automaton, _ *growth.Env) (growth.Block, bool) {
	i := min(a.Stage(), len(b.stages)-1)
	return b.stages[i], true
}

func (b *base) CanGrowHere(env *growth.Env, blk growth.Block) bool {
	return env.HasTag(blk, growth.TagGrowable)
}

func (b *base) CanBreakHere(env *growth.Env, blk growth.Block) bool {
	return !b.owns(blk) && env.HasTag(blk, growth.TagGrowthBreakable)
}

func (b *base) IsGrowthBlock(_ *growth.Env, blk growth.Block) bool { return b.owns(blk) }

func (b *base) IsSource(env *growth.Env, blk growth.Block) bool {
	return !b.owns(blk) && env.HasTag(blk, growth.TagSource)
}

func (b *base) owns(blk growth.Block) bool {
	if b.hasDecorator && blk == b.decorator {
		return true
	}
	for _, s := range b.stages {
		if s == blk {
			return true
		}
	}
	return false
}

func (b *base) GrowthDelay(a *growth.Automaton) int {
	if a.InitialGrowth() && b.t.InitialGrowthDelay != 0 {
		return b.t.InitialGrowthDelay
	}
	return b.t.GrowthDelay
}

func (b *base) MaxStage() int   { return b.t.MaxStage }
func (b *base) MaxAge() int     { return b.t.MaxAge }
func (b *base) SmallStage() int { return b.t.SmallStage }
func (b *base) UsesForce() bool { return b.t.ForceAlignment != 0 }

// weighing fills the terms every species shares: base filter, straight
// bonus or repeat penalty, vertical bias and the force term.
func (b *base) weighing(sp growth.Species, a *growth.Automaton, env *growth.Env, target growth.Cell, dir growth.Dir, passthrough bool) growth.Weighing {
	w := growth.Weighing{Base: growth.BaseTerm(sp, env, target, passthrough, b.t.Base, b.t.PassBase)}
	if w.Base == 0 {
		return w
	}
	if dir == a.LastDir() {
		w.Curvature = b.t.StraightBonus - b.t.RepeatPenalty
	}
	switch dir {
	case growth.Down:
		w.Curvature += b.t.VerticalBias
	case growth.Up:
		w.Curvature -= b.t.VerticalBias
	}
	w.Force = growth.ForceTerm(a, dir, b.t.ForceAlignment)
	return w
}

// effects plays the species particle at cell and, now and then, its sound.
func (b *base) effects(a *growth.Automaton, env *growth.Env, cell growth.Cell) {
	if b.t.Particle != "" {
		env.Particles(b.t.Particle, cell, 3)
	}
	if b.t.Sound != "" && a.Rand().IntN(8) == 0 {
		env.Sound(b.t.Sound, cell, 0.6, 0.8+0.4*a.Rand().Float64())
	}
}

func (b *base) maybeSplit(a *growth.Automaton, env *growth.Env) {
	if b.t.SplitChance <= 0 || a.Rand().Float64() >= b.t.SplitChance {
		return
	}
	a.Split(env, b.t.SplitMin, b.t.SplitMax)
}
