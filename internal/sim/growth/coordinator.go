package growth

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/sim/mathx"
)

// Reaction is a request to start (or feed) growth at a position.
type Reaction struct {
	Species string
	Pos     r3.Vec
	Spores  int
	Water   int
	Initial bool
	Small   bool
	// Split requests bypass merging. Splits inherit Stage and name their Parent.
	Split   bool
	Stage   int
	LastDir Dir
	Parent  string
}

// Population holds the live automatons in registration order.
type Population struct {
	members []*Automaton
}

func NewPopulation() *Population {
	return &Population{}
}

func (p *Population) Add(a *Automaton) { p.members = append(p.members, a) }

func (p *Population) Len() int { return len(p.members) }

// Members returns a copy of the current members in registration order.
func (p *Population) Members() []*Automaton {
	out := make([]*Automaton, len(p.members))
	copy(out, p.members)
	return out
}

// FindNearby returns members of the species inside the cube of the given
// half-extent around pos, in registration order.
func (p *Population) FindNearby(species string, pos r3.Vec, radius float64, pred func(*Automaton) bool) []*Automaton {
	var out []*Automaton
	for _, a := range p.members {
		if a.dead || a.species.Name() != species {
			continue
		}
		d := r3.Sub(a.pos, pos)
		if math.Abs(d.X) > radius || math.Abs(d.Y) > radius || math.Abs(d.Z) > radius {
			continue
		}
		if pred != nil && !pred(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Tick advances every automaton registered before the tick started and
// drops the ones that terminated. Automatons spawned during the tick wait
// for the next one. The removed automatons are returned.
func (p *Population) Tick(env *Env) []*Automaton {
	n := len(p.members)
	for i := 0; i < n; i++ {
		p.members[i].Tick(env)
	}
	var removed []*Automaton
	kept := p.members[:0]
	for _, a := range p.members {
		if a.dead {
			removed = append(removed, a)
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(p.members); i++ {
		p.members[i] = nil
	}
	p.members = kept
	return removed
}

// Coordinator decides whether a reaction feeds an existing automaton or
// starts a new one.
type Coordinator struct {
	Pop     *Population
	Species map[string]Species
	Seed    int64

	nextSerial uint64
}

func NewCoordinator(pop *Population, species map[string]Species, seed int64) *Coordinator {
	return &Coordinator{Pop: pop, Species: species, Seed: seed}
}

// NextSerial reports the serial the next automaton will receive.
func (c *Coordinator) NextSerial() uint64 { return c.nextSerial + 1 }

// SetNextSerial resumes serial numbering after a snapshot load.
func (c *Coordinator) SetNextSerial(n uint64) {
	if n > 0 {
		c.nextSerial = n - 1
	}
}

func (c *Coordinator) TriggerReaction(env *Env, r Reaction) (*Automaton, bool) {
	sp, ok := c.Species[r.Species]
	if !ok {
		env.logger().Printf("growth: reaction for unknown species %q ignored", r.Species)
		return nil, false
	}
	if !r.Split {
		if a := c.mergeTarget(env, sp, r); a != nil {
			a.absorb(r.Spores, r.Water)
			env.emit(eventFor(EventMerge, a))
			return a, true
		}
	}

	stage := 0
	if r.Small {
		stage = sp.SmallStage()
	}
	if r.Split && r.Stage > stage {
		stage = r.Stage
	}
	a := New(sp, c.spawn(r, stage))
	c.Pop.Add(a)

	ev := eventFor(EventSpawn, a)
	if r.Split {
		ev.Kind = EventSplit
		ev.Parent = r.Parent
	}
	env.emit(ev)
	return a, false
}

func (c *Coordinator) mergeTarget(env *Env, sp Species, r Reaction) *Automaton {
	var idx SpatialIndex = c.Pop
	if env.Index != nil {
		idx = env.Index
	}
	small := sp.SmallStage()
	found := idx.FindNearby(sp.Name(), r.Pos, env.Rules.MergeRadius, func(a *Automaton) bool {
		return a.age == 0 &&
			a.initial == r.Initial &&
			(a.stage == small) == r.Small &&
			a.IsAlive()
	})
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func (c *Coordinator) spawn(r Reaction, stage int) Spawn {
	c.nextSerial++
	serial := c.nextSerial
	return Spawn{
		ID:      AutomatonID(c.Seed, serial),
		Serial:  serial,
		Seed:    mathx.StreamSeed(c.Seed, serial),
		Pos:     r.Pos,
		Spores:  r.Spores,
		Water:   r.Water,
		Stage:   stage,
		Initial: r.Initial && !r.Split,
		LastDir: r.LastDir,
	}
}

// AutomatonID is a name-based uuid so identical worlds assign identical ids.
func AutomatonID(seed int64, serial uint64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("growth/%d/%d", seed, serial))).String()
}
