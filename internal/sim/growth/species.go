package growth

// Species is the pluggable behaviour set of one growth type.
type Species interface {
	Name() string

	// NextBlock returns the block to place for the automaton's current stage.
	NextBlock(a *Automaton, env *Env) (Block, bool)
	// Weight scores moving one cell in dir onto target; 0 excludes the move.
	Weight(a *Automaton, env *Env, target Cell, dir Dir, passthrough bool) int
	// OnGrowBlock runs after a successful placement at cell.
	OnGrowBlock(a *Automaton, env *Env, cell Cell, b Block)

	CanGrowHere(env *Env, b Block) bool
	CanBreakHere(env *Env, b Block) bool
	IsGrowthBlock(env *Env, b Block) bool
	IsSource(env *Env, b Block) bool

	// GrowthDelay > 0 steps once every d ticks, < 0 steps -d times per tick.
	GrowthDelay(a *Automaton) int

	MaxStage() int
	MaxAge() int
	SmallStage() int
	UsesForce() bool
}

type EventKind string

const (
	EventSpawn   EventKind = "spawn"
	EventMerge   EventKind = "merge"
	EventSplit   EventKind = "split"
	EventPlace   EventKind = "place"
	EventDiscard EventKind = "discard"
)

type Event struct {
	Tick    uint64    `json:"tick"`
	Kind    EventKind `json:"kind"`
	ID      string    `json:"id"`
	Parent  string    `json:"parent,omitempty"`
	Species string    `json:"species"`
	Cell    [3]int    `json:"cell"`
	Spores  int       `json:"spores"`
	Water   int       `json:"water"`
	Stage   int       `json:"stage"`
}

func eventFor(kind EventKind, a *Automaton) Event {
	c := a.Cell()
	return Event{
		Kind:    kind,
		ID:      a.id,
		Species: a.species.Name(),
		Cell:    [3]int{c.X, c.Y, c.Z},
		Spores:  a.spores,
		Water:   a.water,
		Stage:   a.stage,
	}
}
