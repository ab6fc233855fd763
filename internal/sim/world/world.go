package world

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/persistence/snapshot"
	"voxelgrowth.ai/internal/sim/catalogs"
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/growth/species"
	"voxelgrowth.ai/internal/sim/terrain"
	"voxelgrowth.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	Height             int
	SeaLevel           int
	Seed               int64
	BoundaryR          int
	SnapshotEveryTicks int
	EntityCount        int
	EntitySpeed        float64
}

func ConfigFrom(t tuning.World) WorldConfig {
	return WorldConfig{
		ID:                 t.ID,
		TickRateHz:         t.TickRateHz,
		Height:             t.Height,
		SeaLevel:           t.SeaLevel,
		Seed:               t.Seed,
		BoundaryR:          t.BoundaryR,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		EntityCount:        t.EntityCount,
		EntitySpeed:        t.EntitySpeed,
	}
}

// ReactionRequest asks the world to start growth of Species at a cell.
type ReactionRequest struct {
	Species string `json:"species"`
	Pos     [3]int `json:"pos"`
	Spores  int    `json:"spores"`
	Water   int    `json:"water"`
	Initial bool   `json:"initial,omitempty"`
	Small   bool   `json:"small,omitempty"`
}

// World is a single-threaded growth simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	tune     tuning.Tuning
	logger   *log.Logger

	tick atomic.Uint64

	terrain *terrain.Store
	grid    *grid
	pop     *growth.Population
	coord   *growth.Coordinator
	species map[string]growth.Species
	force   *growth.ForceSampler
	ents    *entityStore

	inbox chan ReactionRequest
	stop  chan struct{}

	// Optional sinks (may be nil). Implemented in internal/persistence/*,
	// internal/transport/observer and internal/telemetry.
	tickLogger   TickLogger
	auditLogger  AuditLogger
	effects      fanoutEffects
	events       fanoutEvents
	tickSinks    []TickSink
	snapshotSink chan<- snapshot.SnapshotV1

	// Per-tick scratch, reset at the start of every step.
	stepEvents  map[growth.EventKind]int
	stepChanges []AuditEntry
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickSink receives a summary after every completed tick.
type TickSink interface {
	WorldTick(s TickSummary)
}

type TickLogEntry struct {
	Tick      uint64            `json:"tick"`
	Reactions []ReactionRequest `json:"reactions,omitempty"`
	Digest    string            `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // SET_BLOCK or BREAK_BLOCK
	Pos    [3]int `json:"pos"`
	From   uint16 `json:"from"`
	To     uint16 `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// TickSummary is the population state after a tick.
type TickSummary struct {
	WorldID    string
	Tick       uint64
	Digest     string
	Population int
	BySpecies  map[string]int
	Spores     int
	Water      int
	Entities   int
	Spawns     int
	Merges     int
	Splits     int
	Places     int
	Discards   int
	Drops      int

	// Block changes made during the tick, in order.
	Changes    []AuditEntry
	Automatons []AutomatonView
}

// AutomatonView is the observable part of a live automaton.
type AutomatonView struct {
	ID      string `json:"id"`
	Species string `json:"species"`
	Cell    [3]int `json:"cell"`
	Spores  int    `json:"spores"`
	Water   int    `json:"water"`
	Stage   int    `json:"stage"`
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, tune tuning.Tuning) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be > 0")
	}
	if cfg.Height <= 0 {
		return nil, fmt.Errorf("height must be > 0")
	}
	pal, err := paletteFrom(cats)
	if err != nil {
		return nil, err
	}
	reg, err := species.Registry(cats, tune)
	if err != nil {
		return nil, err
	}

	w := &World{
		cfg:      cfg,
		catalogs: cats,
		tune:     tune,
		logger:   log.Default(),
		species:  reg,
		inbox:    make(chan ReactionRequest, 256),
		stop:     make(chan struct{}),
	}
	w.terrain = terrain.NewStore(terrain.Gen{
		Seed:      cfg.Seed,
		Height:    cfg.Height,
		SeaLevel:  cfg.SeaLevel,
		BoundaryR: cfg.BoundaryR,
		Palette:   pal,
	})
	w.grid = newGrid(w)
	w.pop = growth.NewPopulation()
	w.coord = growth.NewCoordinator(w.pop, reg, cfg.Seed)
	w.force = growth.NewForceSampler(tune.Growth.ForceRadius, tune.Growth.BlockForceMultiplier, tune.Growth.EntityForceMultiplier, w.logger)
	w.ents = newEntityStore(cats.EntityContent)
	w.ents.populate(w, cfg.EntityCount, cfg.EntitySpeed)
	return w, nil
}

func paletteFrom(cats *catalogs.Catalogs) (terrain.Palette, error) {
	var missing []string
	b := func(name string) uint16 {
		v, ok := cats.BlockID(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	}
	p := terrain.Palette{
		Air:       b("AIR"),
		Bedrock:   b("BEDROCK"),
		Stone:     b("STONE"),
		Dirt:      b("DIRT"),
		Grass:     b("GRASS"),
		Sand:      b("SAND"),
		Gravel:    b("GRAVEL"),
		Water:     b("WATER"),
		SporeSea:  b("SPORE_SEA"),
		Salt:      b("SALT"),
		IronOre:   b("IRON_ORE"),
		Lodestone: b("LODESTONE"),
		Lead:      b("LEAD_BLOCK"),
	}
	if len(missing) > 0 {
		return p, fmt.Errorf("missing block ids in palette: %v", missing)
	}
	return p, nil
}

func (w *World) SetLogger(l *log.Logger) {
	if l == nil {
		return
	}
	w.logger = l
	w.force.Log = l
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) AddEffectsSink(s growth.EffectsSink)           { w.effects = append(w.effects, s) }
func (w *World) AddEventSink(s growth.EventSink)               { w.events = append(w.events, s) }
func (w *World) AddTickSink(s TickSink)                        { w.tickSinks = append(w.tickSinks, s) }

func (w *World) ID() string                      { return w.cfg.ID }
func (w *World) Config() WorldConfig             { return w.cfg }
func (w *World) CurrentTick() uint64             { return w.tick.Load() }
func (w *World) Trigger() chan<- ReactionRequest { return w.inbox }
func (w *World) Population() *growth.Population  { return w.pop }
func (w *World) Terrain() *terrain.Store         { return w.terrain }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []ReactionRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.inbox:
			pending = append(pending, req)
		case <-ticker.C:
			w.step(pending)
			pending = pending[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as Run.
// It is primarily intended for deterministic replays and tests.
func (w *World) StepOnce(reqs []ReactionRequest) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(reqs)
	return tick, w.stateDigest(tick)
}

func (w *World) env(tick uint64) *growth.Env {
	return &growth.Env{
		Grid:     w.grid,
		Tags:     w.catalogs,
		Content:  w.catalogs,
		Hazards:  w.grid,
		Index:    w.pop,
		Entities: w.ents,
		Effects:  w.effects,
		Spawner:  w.coord,
		Events:   w,
		Force:    w.force,
		Rules: growth.Rules{
			HazardRadius:  w.tune.Growth.HazardRadius,
			HazardPenalty: w.tune.Growth.HazardPenalty,
			AbsorbCap:     w.tune.Growth.AbsorbCap,
			MergeRadius:   w.tune.Growth.MergeRadius,
		},
		Tick: tick,
		Log:  w.logger,
	}
}

// GrowthEvent counts lifecycle events for the tick summary and forwards them.
func (w *World) GrowthEvent(ev growth.Event) {
	if w.stepEvents != nil {
		w.stepEvents[ev.Kind]++
	}
	w.events.GrowthEvent(ev)
}

func (w *World) step(reqs []ReactionRequest) {
	nowTick := w.tick.Load()
	w.stepEvents = map[growth.EventKind]int{}
	w.stepChanges = w.stepChanges[:0]
	w.grid.drops = 0
	env := w.env(nowTick)

	// Reactions apply at the tick boundary, in arrival order.
	applied := make([]ReactionRequest, 0, len(reqs))
	for _, r := range reqs {
		if w.applyReaction(env, r) {
			applied = append(applied, r)
		}
	}

	w.ents.advance(w)
	w.pop.Tick(env)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Reactions: applied, Digest: digest})
	}
	if len(w.tickSinks) > 0 {
		sum := w.summary(nowTick, digest)
		for _, s := range w.tickSinks {
			s.WorldTick(sum)
		}
	}

	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	w.tick.Add(1)
}

// applyReaction catalyzes the target cell and hands the reaction to the
// coordinator. A cell that is already catalyzed does not react again.
func (w *World) applyReaction(env *growth.Env, r ReactionRequest) bool {
	c := growth.Cell{X: r.Pos[0], Y: r.Pos[1], Z: r.Pos[2]}
	if !w.terrain.InBounds(c.X, c.Y, c.Z) {
		return false
	}
	if _, ok := w.species[r.Species]; !ok {
		w.logger.Printf("reaction for unknown species %q at %v ignored", r.Species, c)
		return false
	}
	if w.grid.catalyzed[c] {
		return false
	}
	w.grid.catalyzed[c] = true
	w.coord.TriggerReaction(env, growth.Reaction{
		Species: r.Species,
		Pos:     c.Center(),
		Spores:  r.Spores,
		Water:   r.Water,
		Initial: r.Initial,
		Small:   r.Small,
	})
	return true
}

func (w *World) summary(tick uint64, digest string) TickSummary {
	s := TickSummary{
		WorldID:   w.cfg.ID,
		Tick:      tick,
		Digest:    digest,
		BySpecies: map[string]int{},
		Entities:  w.ents.count(),
		Spawns:    w.stepEvents[growth.EventSpawn],
		Merges:    w.stepEvents[growth.EventMerge],
		Splits:    w.stepEvents[growth.EventSplit],
		Places:    w.stepEvents[growth.EventPlace],
		Discards:  w.stepEvents[growth.EventDiscard],
		Drops:     w.grid.drops,
		Changes:   append([]AuditEntry(nil), w.stepChanges...),
	}
	for _, a := range w.pop.Members() {
		s.Population++
		s.BySpecies[a.Species().Name()]++
		s.Spores += a.Spores()
		s.Water += a.Water()
		c := a.Cell()
		s.Automatons = append(s.Automatons, AutomatonView{
			ID:      a.ID(),
			Species: a.Species().Name(),
			Cell:    [3]int{c.X, c.Y, c.Z},
			Spores:  a.Spores(),
			Water:   a.Water(),
			Stage:   a.Stage(),
		})
	}
	return s
}

// ChunkBlocks copies the blocks of a loaded chunk. Unloaded chunks are not
// generated: the loaded set is part of the state digest.
func (w *World) ChunkBlocks(cx, cz int) ([]uint16, bool) {
	ch, ok := w.terrain.Chunks[terrain.ChunkKey{CX: cx, CZ: cz}]
	if !ok {
		return nil, false
	}
	return append([]uint16(nil), ch.Blocks...), true
}

// SpeciesNames lists the registered species in name order.
func (w *World) SpeciesNames() []string {
	out := make([]string, 0, len(w.species))
	for name := range w.species {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BlockPalette returns the block ids in palette order.
func (w *World) BlockPalette() []string {
	return append([]string(nil), w.catalogs.Blocks.Palette...)
}

// SpawnPos returns the centre of the first open cell above the terrain at x,z.
func (w *World) SpawnPos(x, z int) r3.Vec {
	y := w.terrain.SurfaceY(x, z)
	return growth.Cell{X: x, Y: y, Z: z}.Center()
}

// SurfaceCell returns the first cell above the terrain column at x,z.
func (w *World) SurfaceCell(x, z int) [3]int {
	return [3]int{x, w.terrain.SurfaceY(x, z), z}
}
