package world

import (
	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/sim/growth"
)

type fanoutEffects []growth.EffectsSink

func (f fanoutEffects) SpawnParticles(name string, pos r3.Vec, count int) {
	for _, s := range f {
		s.SpawnParticles(name, pos, count)
	}
}

func (f fanoutEffects) PlaySound(name string, pos r3.Vec, volume, pitch float64) {
	for _, s := range f {
		s.PlaySound(name, pos, volume, pitch)
	}
}

type fanoutEvents []growth.EventSink

func (f fanoutEvents) GrowthEvent(ev growth.Event) {
	for _, s := range f {
		s.GrowthEvent(ev)
	}
}
