package growth

import (
	"bytes"
	"log"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	bAir Block = iota
	bDirt
	bStone
	bGrowth
	bIron
	bSea
	bLead
	bSteel
	bBrass
)

type fakeTags map[Block][]string

func (t fakeTags) HasTag(b Block, tag string) bool {
	for _, x := range t[b] {
		if x == tag {
			return true
		}
	}
	return false
}

func testTags() fakeTags {
	return fakeTags{
		bAir:    {TagGrowable},
		bDirt:   {TagSolid, TagGrowthBreakable},
		bStone:  {TagSolid},
		bGrowth: {TagSolid},
		bIron:   {TagSolid, TagMetal},
		bSea:    {TagSource},
		bLead:   {TagSolid, TagShielding},
		bSteel:  {TagSolid, TagMetal, TagRepel},
		bBrass:  {TagSolid, TagMetal},
	}
}

type fakeContent map[Block]int

func (c fakeContent) Content(b Block) (int, bool) {
	v, ok := c[b]
	return v, ok
}

// fakeGrid is an unbounded grid; cells outside blocks read as fill.
type fakeGrid struct {
	blocks    map[Cell]Block
	fill      Block
	catalyzed map[Cell]bool
	water     map[Cell]int
	reject    bool

	// rejectBlock, when set, makes SetCell fail for that block only.
	rejectBlock *Block

	writes int
	breaks int
	drops  int
}

func newFakeGrid(fill Block) *fakeGrid {
	return &fakeGrid{
		blocks:    map[Cell]Block{},
		fill:      fill,
		catalyzed: map[Cell]bool{},
		water:     map[Cell]int{},
	}
}

func (g *fakeGrid) Cell(c Cell) Block {
	if b, ok := g.blocks[c]; ok {
		return b
	}
	return g.fill
}

func (g *fakeGrid) SetCell(c Cell, b Block) bool {
	if g.reject || (g.rejectBlock != nil && *g.rejectBlock == b) {
		return false
	}
	g.blocks[c] = b
	g.writes++
	return true
}

func (g *fakeGrid) BreakCell(c Cell, drop bool) bool {
	if g.reject {
		return false
	}
	g.blocks[c] = bAir
	g.breaks++
	if drop {
		g.drops++
	}
	return true
}

func (g *fakeGrid) IsAbsorbableWater(c Cell) bool { return g.water[c] > 0 }

func (g *fakeGrid) AbsorbWater(c Cell, max int) int {
	n := min(g.water[c], max)
	g.water[c] -= n
	return n
}

func (g *fakeGrid) ClearCatalyzed(c Cell) { delete(g.catalyzed, c) }

type fakeHazards bool

func (h fakeHazards) IsHazardNearby(Cell, int) bool { return bool(h) }

type fakeEntities struct {
	ents  []EntityContent
	calls int
}

func (f *fakeEntities) MetalEntities(r3.Vec, float64) []EntityContent {
	f.calls++
	return f.ents
}

type recordingEvents struct{ events []Event }

func (r *recordingEvents) GrowthEvent(ev Event) { r.events = append(r.events, ev) }

func (r *recordingEvents) count(kind EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// testSpecies places one block type and pays fixed costs per placement.
type testSpecies struct {
	name       string
	block      Block
	sporeCost  int
	waterCost  int
	delay      int
	maxStage   int
	maxAge     int
	small      int
	force      float64
	weightFn   func(a *Automaton, env *Env, target Cell, dir Dir, passthrough bool) int
	onGrowFn   func(a *Automaton, env *Env, cell Cell)
	nextBlocks bool
}

func newTestSpecies() *testSpecies {
	return &testSpecies{
		name:      "test",
		block:     bGrowth,
		sporeCost: 1,
		delay:     1,
		maxStage:  3,
		maxAge:    1000,
		small:     2,
	}
}

func (s *testSpecies) Name() string { return s.name }

func (s *testSpecies) NextBlock(*Automaton, *Env) (Block, bool) {
	if s.nextBlocks {
		return 0, false
	}
	return s.block, true
}

func (s *testSpecies) Weight(a *Automaton, env *Env, target Cell, dir Dir, passthrough bool) int {
	if s.weightFn != nil {
		return s.weightFn(a, env, target, dir, passthrough)
	}
	w := Weighing{Base: BaseTerm(s, env, target, passthrough, 10, 5)}
	w.Force = ForceTerm(a, dir, s.force)
	return w.Total(passthrough)
}

func (s *testSpecies) OnGrowBlock(a *Automaton, env *Env, cell Cell, _ Block) {
	if s.onGrowFn != nil {
		s.onGrowFn(a, env, cell)
		return
	}
	a.DrainSpores(s.sporeCost)
	a.DrainWater(s.waterCost)
}

func (s *testSpecies) CanGrowHere(env *Env, b Block) bool  { return env.HasTag(b, TagGrowable) }
func (s *testSpecies) CanBreakHere(env *Env, b Block) bool { return env.HasTag(b, TagGrowthBreakable) }
func (s *testSpecies) IsGrowthBlock(_ *Env, b Block) bool  { return b == s.block }
func (s *testSpecies) IsSource(env *Env, b Block) bool     { return env.HasTag(b, TagSource) }
func (s *testSpecies) GrowthDelay(*Automaton) int          { return s.delay }
func (s *testSpecies) MaxStage() int                       { return s.maxStage }
func (s *testSpecies) MaxAge() int                         { return s.maxAge }
func (s *testSpecies) SmallStage() int                     { return s.small }
func (s *testSpecies) UsesForce() bool                     { return s.force != 0 }

func newTestEnv(g *fakeGrid) (*Env, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Env{
		Grid:    g,
		Tags:    testTags(),
		Content: fakeContent{bIron: 5, bSteel: 5},
		Rules:   DefaultRules(),
		Log:     log.New(&buf, "", 0),
	}, &buf
}

func newTestAutomaton(sp Species, spores, water int) *Automaton {
	return New(sp, Spawn{ID: "a1", Seed: 7, Pos: Cell{}.Center(), Spores: spores, Water: water})
}
