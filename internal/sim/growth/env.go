package growth

import (
	"log"

	"gonum.org/v1/gonum/spatial/r3"
)

// Grid is the mutable voxel world the automatons grow into.
type Grid interface {
	Cell(c Cell) Block
	// SetCell returns false when the write was rejected (out of bounds,
	// protected, or the cell changed under the writer).
	SetCell(c Cell, b Block) bool
	// BreakCell clears the cell, optionally dropping its loot.
	BreakCell(c Cell, drop bool) bool
	IsAbsorbableWater(c Cell) bool
	// AbsorbWater consumes water at c and returns at most max units.
	AbsorbWater(c Cell, max int) int
	ClearCatalyzed(c Cell)
}

type BlockTags interface {
	HasTag(b Block, tag string) bool
}

// ContentTable reports the signed metal content of a block. ok is false
// when the catalog has no entry for it.
type ContentTable interface {
	Content(b Block) (content int, ok bool)
}

type HazardQuery interface {
	IsHazardNearby(c Cell, radius int) bool
}

type SpatialIndex interface {
	FindNearby(species string, pos r3.Vec, radius float64, pred func(*Automaton) bool) []*Automaton
}

// EntityContent is a mobile entity carrying metal.
type EntityContent struct {
	Pos      r3.Vec
	Category string
	Content  int
}

type EntityQuery interface {
	MetalEntities(center r3.Vec, radius float64) []EntityContent
}

// EffectsSink receives fire-and-forget presentation calls.
type EffectsSink interface {
	SpawnParticles(name string, pos r3.Vec, count int)
	PlaySound(name string, pos r3.Vec, volume, pitch float64)
}

type Spawner interface {
	TriggerReaction(env *Env, r Reaction) (*Automaton, bool)
}

type EventSink interface {
	GrowthEvent(ev Event)
}

type NopEffects struct{}

func (NopEffects) SpawnParticles(string, r3.Vec, int)         {}
func (NopEffects) PlaySound(string, r3.Vec, float64, float64) {}

// Rules are the population-wide constants shared by every species.
type Rules struct {
	HazardRadius  int
	HazardPenalty int
	AbsorbCap     int
	MergeRadius   float64
}

func DefaultRules() Rules {
	return Rules{
		HazardRadius:  2,
		HazardPenalty: 5,
		AbsorbCap:     4,
		MergeRadius:   3,
	}
}

// Env bundles the collaborators handed to an automaton for one tick.
// Optional members (Hazards, Entities, Effects, Spawner, Events, Force) may be nil.
type Env struct {
	Grid     Grid
	Tags     BlockTags
	Content  ContentTable
	Hazards  HazardQuery
	Index    SpatialIndex
	Entities EntityQuery
	Effects  EffectsSink
	Spawner  Spawner
	Events   EventSink
	Force    *ForceSampler
	Rules    Rules
	Tick     uint64
	Log      *log.Logger
}

func (e *Env) logger() *log.Logger {
	if e.Log != nil {
		return e.Log
	}
	return log.Default()
}

func (e *Env) effects() EffectsSink {
	if e.Effects != nil {
		return e.Effects
	}
	return NopEffects{}
}

func (e *Env) emit(ev Event) {
	if e.Events == nil {
		return
	}
	ev.Tick = e.Tick
	e.Events.GrowthEvent(ev)
}

func (e *Env) HasTag(b Block, tag string) bool {
	return e.Tags != nil && e.Tags.HasTag(b, tag)
}

// Particles and Sound forward to the effects sink; nothing is returned to the caller.
func (e *Env) Particles(name string, c Cell, count int) {
	e.effects().SpawnParticles(name, c.Center(), count)
}

func (e *Env) Sound(name string, c Cell, volume, pitch float64) {
	e.effects().PlaySound(name, c.Center(), volume, pitch)
}
