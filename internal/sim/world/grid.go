package world

import (
	"voxelgrowth.ai/internal/sim/growth"
)

// grid adapts the terrain store to growth.Grid and growth.HazardQuery.
// Every accepted block change is audited.
type grid struct {
	w *World

	air growth.Block

	catalyzed map[growth.Cell]bool
	// water holds the units left in partly drained water cells. Cells not
	// present still hold their catalog amount.
	water map[growth.Cell]int

	drops int
	loot  map[string]int
}

func newGrid(w *World) *grid {
	air, _ := w.catalogs.BlockID("AIR")
	return &grid{
		w:         w,
		air:       air,
		catalyzed: map[growth.Cell]bool{},
		water:     map[growth.Cell]int{},
		loot:      map[string]int{},
	}
}

func (g *grid) Cell(c growth.Cell) growth.Block {
	return g.w.terrain.GetBlock(c.X, c.Y, c.Z)
}

func (g *grid) SetCell(c growth.Cell, b growth.Block) bool {
	from := g.Cell(c)
	if !g.w.terrain.SetBlock(c.X, c.Y, c.Z, b) {
		return false
	}
	if from != b {
		delete(g.water, c)
		g.w.auditSetBlock(c, from, b, "SET_BLOCK", "growth")
	}
	return true
}

func (g *grid) BreakCell(c growth.Cell, drop bool) bool {
	from := g.Cell(c)
	if from == g.air {
		return true
	}
	if !g.w.terrain.SetBlock(c.X, c.Y, c.Z, g.air) {
		return false
	}
	delete(g.water, c)
	reason := "growth"
	if drop {
		if def, ok := g.w.catalogs.Def(from); ok && def.DropsItem != "" {
			g.drops++
			g.loot[def.DropsItem]++
			reason = "growth_drop"
		}
	}
	g.w.auditSetBlock(c, from, g.air, "BREAK_BLOCK", reason)
	return true
}

func (g *grid) units(c growth.Cell) int {
	b := g.Cell(c)
	if !g.w.catalogs.HasTag(b, growth.TagWater) {
		return 0
	}
	if n, ok := g.water[c]; ok {
		return n
	}
	def, _ := g.w.catalogs.Def(b)
	return def.WaterUnits
}

func (g *grid) IsAbsorbableWater(c growth.Cell) bool { return g.units(c) > 0 }

// AbsorbWater drains up to max units from the water cell at c. A drained
// cell turns to air.
func (g *grid) AbsorbWater(c growth.Cell, max int) int {
	have := g.units(c)
	n := min(have, max)
	if n <= 0 {
		return 0
	}
	if have-n > 0 {
		g.water[c] = have - n
		return n
	}
	from := g.Cell(c)
	if g.w.terrain.SetBlock(c.X, c.Y, c.Z, g.air) {
		delete(g.water, c)
		g.w.auditSetBlock(c, from, g.air, "SET_BLOCK", "water_drained")
	}
	return n
}

func (g *grid) ClearCatalyzed(c growth.Cell) { delete(g.catalyzed, c) }

// IsHazardNearby reports a spore-killing block inside the cube of the
// given radius around c.
func (g *grid) IsHazardNearby(c growth.Cell, radius int) bool {
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				b := g.w.terrain.GetBlock(c.X+dx, c.Y+dy, c.Z+dz)
				if g.w.catalogs.HasTag(b, growth.TagHazard) {
					return true
				}
			}
		}
	}
	return false
}

func (w *World) auditSetBlock(c growth.Cell, from, to uint16, action, reason string) {
	if w.auditLogger == nil && len(w.tickSinks) == 0 {
		return
	}
	e := AuditEntry{
		Tick:   w.tick.Load(),
		Actor:  "growth",
		Action: action,
		Pos:    [3]int{c.X, c.Y, c.Z},
		From:   from,
		To:     to,
		Reason: reason,
	}
	if len(w.tickSinks) > 0 {
		w.stepChanges = append(w.stepChanges, e)
	}
	if w.auditLogger != nil {
		_ = w.auditLogger.WriteAudit(e)
	}
}

// Loot returns the items dropped by broken blocks since the world started.
func (w *World) Loot() map[string]int {
	out := make(map[string]int, len(w.grid.loot))
	for k, v := range w.grid.loot {
		out[k] = v
	}
	return out
}
