package telemetry

import (
	"log"
	"sync"

	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/world"
)

// Collector counts growth events per window and writes one row when the
// window closes. It is a growth.EventSink and a world.TickSink.
type Collector struct {
	windowTicks uint64
	out         *Output
	log         *log.Logger

	mu          sync.Mutex
	windowStart uint64
	started     bool
	events      map[growth.EventKind]int
	drops       int
	flushed     []WindowStats
	keep        bool
}

// NewCollector flushes every windowTicks ticks into out (which may be nil).
func NewCollector(windowTicks int, out *Output, logger *log.Logger) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{
		windowTicks: uint64(windowTicks),
		out:         out,
		log:         logger,
		events:      map[growth.EventKind]int{},
	}
}

// KeepHistory retains flushed rows in memory for History.
func (c *Collector) KeepHistory() { c.keep = true }

func (c *Collector) GrowthEvent(ev growth.Event) {
	c.mu.Lock()
	c.events[ev.Kind]++
	c.mu.Unlock()
}

func (c *Collector) WorldTick(sum world.TickSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		c.windowStart = sum.Tick
		c.started = true
	}
	c.drops += sum.Drops
	if sum.Tick+1-c.windowStart < c.windowTicks {
		return
	}

	s := c.flushLocked(sum)
	if err := c.out.WriteTelemetry(s); err != nil {
		c.log.Printf("telemetry: %v", err)
	}
	if c.keep {
		c.flushed = append(c.flushed, s)
	}
}

func (c *Collector) flushLocked(sum world.TickSummary) WindowStats {
	s := WindowStats{
		WindowStartTick: c.windowStart,
		WindowEndTick:   sum.Tick,
		Digest:          sum.Digest,
		Population:      sum.Population,
		Vine:            sum.BySpecies["vine"],
		Spine:           sum.BySpecies["spine"],
		Crystal:         sum.BySpecies["crystal"],
		Essence:         sum.BySpecies["essence"],
		Entities:        sum.Entities,
		Spawns:          c.events[growth.EventSpawn],
		Merges:          c.events[growth.EventMerge],
		Splits:          c.events[growth.EventSplit],
		Places:          c.events[growth.EventPlace],
		Discards:        c.events[growth.EventDiscard],
		Drops:           c.drops,
		TotalSpores:     sum.Spores,
		TotalWater:      sum.Water,
	}

	spores := make([]float64, 0, len(sum.Automatons))
	water := make([]float64, 0, len(sum.Automatons))
	for _, a := range sum.Automatons {
		spores = append(spores, float64(a.Spores))
		water = append(water, float64(a.Water))
		if a.Stage > s.MaxStage {
			s.MaxStage = a.Stage
		}
	}
	s.SporesMean, s.SporesP50, s.SporesP90 = budgetStats(spores)
	s.WaterMean, _, _ = budgetStats(water)

	c.windowStart = sum.Tick + 1
	c.events = map[growth.EventKind]int{}
	c.drops = 0
	return s
}

// History returns the rows flushed so far when KeepHistory is set.
func (c *Collector) History() []WindowStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WindowStats(nil), c.flushed...)
}
