package growth

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
)

// MaxFailures is the placement failure streak that ends an automaton.
const MaxFailures = 3

// Automaton is one growth front. It is mutated only by its own Tick and
// by merges performed through the Coordinator before its first tick.
type Automaton struct {
	id      string
	serial  uint64
	species Species
	src     *rand.PCG
	rng     *rand.Rand

	pos       r3.Vec
	origin    Cell
	hasOrigin bool

	spores   int
	water    int
	stage    int
	age      int
	lastDir  Dir
	failures int
	initial  bool

	// Force cache, valid while the automaton stays in forceCell.
	forceDir  r3.Vec
	forceMag  float64
	forceCell Cell
	hasForce  bool

	dead bool
}

// Spawn carries the explicit initial state of a new automaton.
type Spawn struct {
	ID      string
	Serial  uint64
	Seed    uint64
	Pos     r3.Vec
	Spores  int
	Water   int
	Stage   int
	Initial bool
	LastDir Dir
}

func New(sp Species, s Spawn) *Automaton {
	src := rand.NewPCG(s.Seed, s.Serial)
	return &Automaton{
		id:      s.ID,
		serial:  s.Serial,
		species: sp,
		src:     src,
		rng:     rand.New(src),
		pos:     s.Pos,
		spores:  max(s.Spores, 0),
		water:   max(s.Water, 0),
		stage:   max(s.Stage, 0),
		lastDir: s.LastDir,
		initial: s.Initial,
	}
}

func (a *Automaton) ID() string          { return a.id }
func (a *Automaton) Serial() uint64      { return a.serial }
func (a *Automaton) Species() Species    { return a.species }
func (a *Automaton) Pos() r3.Vec         { return a.pos }
func (a *Automaton) Cell() Cell          { return CellOf(a.pos) }
func (a *Automaton) Spores() int         { return a.spores }
func (a *Automaton) Water() int          { return a.water }
func (a *Automaton) Stage() int          { return a.stage }
func (a *Automaton) Age() int            { return a.age }
func (a *Automaton) LastDir() Dir        { return a.lastDir }
func (a *Automaton) Failures() int       { return a.failures }
func (a *Automaton) InitialGrowth() bool { return a.initial }
func (a *Automaton) Rand() *rand.Rand    { return a.rng }

// Origin is the cell occupied on the first tick. Before that it is the current cell.
func (a *Automaton) Origin() Cell {
	if !a.hasOrigin {
		return a.Cell()
	}
	return a.origin
}

// Force returns the cached unit force direction and its magnitude.
func (a *Automaton) Force() (r3.Vec, float64) { return a.forceDir, a.forceMag }

// ShouldDiscard reports whether the automaton is dead and must be removed.
func (a *Automaton) ShouldDiscard() bool {
	return a.dead ||
		a.stage > a.species.MaxStage() ||
		a.spores <= 0 ||
		a.water <= 0 ||
		a.age > a.species.MaxAge() ||
		a.failures >= MaxFailures
}

func (a *Automaton) IsAlive() bool { return !a.ShouldDiscard() }

func (a *Automaton) DrainSpores(n int) {
	if n <= 0 {
		return
	}
	a.spores = max(a.spores-n, 0)
}

func (a *Automaton) DrainWater(n int) {
	if n <= 0 {
		return
	}
	a.water = max(a.water-n, 0)
}

func (a *Automaton) AdvanceStage() { a.stage++ }

// absorb adds merged resources. Only the coordinator calls it.
func (a *Automaton) absorb(spores, water int) {
	a.spores += max(spores, 0)
	a.water += max(water, 0)
}

// Tick runs the termination check and then the steps due this tick.
func (a *Automaton) Tick(env *Env) {
	if a.dead {
		return
	}
	if a.ShouldDiscard() {
		a.terminate(env)
		return
	}
	if !a.hasOrigin {
		a.origin = a.Cell()
		a.hasOrigin = true
	}
	for i, n := 0, a.stepsDue(); i < n; i++ {
		if a.spores <= 0 || a.water <= 0 || a.stage > a.species.MaxStage() || a.failures >= MaxFailures {
			break
		}
		if a.species.UsesForce() {
			a.refreshForce(env)
		}
		a.step(env)
	}
	a.age++
}

func (a *Automaton) stepsDue() int {
	d := a.species.GrowthDelay(a)
	switch {
	case d > 0:
		if (uint64(a.age)+a.serial)%uint64(d) == 0 {
			return 1
		}
		return 0
	case d < 0:
		return -d
	default:
		return 1
	}
}

func (a *Automaton) step(env *Env) {
	cell := a.Cell()
	if env.Hazards != nil && env.Hazards.IsHazardNearby(cell, env.Rules.HazardRadius) {
		a.DrainSpores(env.Rules.HazardPenalty)
		if a.spores <= 0 {
			return
		}
	}
	if a.water < a.spores && env.Grid.IsAbsorbableWater(cell) {
		a.water += max(env.Grid.AbsorbWater(cell, env.Rules.AbsorbCap), 0)
	}

	if b, ok := a.species.NextBlock(a, env); ok && a.place(env, cell, b) {
		a.species.OnGrowBlock(a, env, cell, b)
		env.emit(eventFor(EventPlace, a))
		a.failures = 0
		if d := a.ChooseDir(env, false); !d.IsZero() {
			a.move(d)
		}
		return
	}

	if d := a.ChooseDir(env, true); !d.IsZero() {
		a.move(d)
		return
	}
	a.failures++
}

// place writes b into cell if the species may break or grow through the
// current block. The grid is untouched when placement is refused.
func (a *Automaton) place(env *Env, cell Cell, b Block) bool {
	cur := env.Grid.Cell(cell)
	switch {
	case a.species.CanBreakHere(env, cur):
		drop := a.rng.IntN(3) < 2
		if env.Grid.Cell(cell) != cur || !env.Grid.BreakCell(cell, drop) {
			return false
		}
		if !env.Grid.SetCell(cell, b) {
			// Put the broken block back so a failed placement leaves no hole.
			env.Grid.SetCell(cell, cur)
			return false
		}
		return true
	case a.species.CanGrowHere(env, cur), a.species.IsSource(env, cur):
		if env.Grid.Cell(cell) != cur {
			return false
		}
		return env.Grid.SetCell(cell, b)
	}
	return false
}

func (a *Automaton) move(d Dir) {
	a.pos = r3.Add(a.pos, d.Vec())
	a.lastDir = d
}

// ChooseDir draws the next direction by cumulative weight. The reverse of
// the last move is never a candidate. Returns the zero Dir when every
// candidate weighs 0.
func (a *Automaton) ChooseDir(env *Env, passthrough bool) Dir {
	var (
		cands   [6]Dir
		weights [6]int
		n       int
		total   int
	)
	back := a.lastDir.Opposite()
	cell := a.Cell()
	for _, d := range Dirs {
		if d == back {
			continue
		}
		w := a.species.Weight(a, env, cell.Add(d), d, passthrough)
		if w <= 0 {
			continue
		}
		cands[n], weights[n] = d, w
		n++
		total += w
	}
	switch n {
	case 0:
		return Dir{}
	case 1:
		return cands[0]
	}
	r := a.rng.IntN(total)
	for i := 0; i < n; i++ {
		r -= weights[i]
		if r < 0 {
			return cands[i]
		}
	}
	return cands[n-1]
}

func (a *Automaton) refreshForce(env *Env) {
	cell := a.Cell()
	if a.hasForce && cell == a.forceCell {
		return
	}
	var v r3.Vec
	if env.Force != nil {
		v = env.Force.Sample(env, cell)
	}
	a.forceMag = r3.Norm(v)
	if a.forceMag > 0 {
		a.forceDir = r3.Unit(v)
	} else {
		a.forceDir = r3.Vec{}
	}
	a.forceCell = cell
	a.hasForce = true
}

// terminate marks the automaton dead. An automaton dying with spores left
// clears the catalyzed markers around it so the cells can react again.
func (a *Automaton) terminate(env *Env) {
	if a.spores > 0 {
		cell := a.Cell()
		env.Grid.ClearCatalyzed(cell)
		for _, n := range cell.Neighbors() {
			env.Grid.ClearCatalyzed(n)
		}
	}
	a.dead = true
	env.emit(eventFor(EventDiscard, a))
}

// Split hands a random share of the budgets to a sibling at the same position.
func (a *Automaton) Split(env *Env, minFrac, maxFrac float64) *Automaton {
	if env.Spawner == nil || maxFrac <= 0 {
		return nil
	}
	frac := minFrac + a.rng.Float64()*(maxFrac-minFrac)
	spores := int(float64(a.spores) * frac)
	water := int(float64(a.water) * frac)
	if spores <= 0 || water <= 0 {
		return nil
	}
	a.spores -= spores
	a.water -= water
	child, _ := env.Spawner.TriggerReaction(env, Reaction{
		Species: a.species.Name(),
		Pos:     a.pos,
		Spores:  spores,
		Water:   water,
		Stage:   a.stage,
		Split:   true,
		LastDir: a.lastDir,
		Parent:  a.id,
	})
	if child == nil {
		a.spores += spores
		a.water += water
	}
	return child
}
