package growth

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/sim/mathx"
)

// Block is a palette id from the block catalog. Id 0 is always air.
type Block = uint16

const Air Block = 0

// Block tags consulted by the automaton and the species.
const (
	TagSolid           = "solid"
	TagGrowable        = "growable"
	TagGrowthBreakable = "growth_breakable"
	TagSource          = "spore_sea"
	TagMetal           = "metal"
	TagRepel           = "repel"
	TagShielding       = "shielding"
	TagWater           = "water"
	TagHazard          = "spore_killing"
)

type Cell struct {
	X, Y, Z int
}

func CellOf(p r3.Vec) Cell {
	return Cell{X: mathx.FloorInt(p.X), Y: mathx.FloorInt(p.Y), Z: mathx.FloorInt(p.Z)}
}

func (c Cell) Add(d Dir) Cell {
	return Cell{X: c.X + d.X, Y: c.Y + d.Y, Z: c.Z + d.Z}
}

// Center is the continuous coordinate of the middle of the cell.
func (c Cell) Center() r3.Vec {
	return r3.Vec{X: float64(c.X) + 0.5, Y: float64(c.Y) + 0.5, Z: float64(c.Z) + 0.5}
}

func (c Cell) Neighbors() [6]Cell {
	var out [6]Cell
	for i, d := range Dirs {
		out[i] = c.Add(d)
	}
	return out
}

func (c Cell) Manhattan(o Cell) int {
	return mathx.Manhattan(c.X, c.Y, c.Z, o.X, o.Y, o.Z)
}

func (c Cell) String() string { return fmt.Sprintf("%d,%d,%d", c.X, c.Y, c.Z) }

// Dir is an axis-aligned unit step. The zero Dir means no direction.
type Dir struct {
	X, Y, Z int
}

var (
	Up    = Dir{Y: 1}
	Down  = Dir{Y: -1}
	North = Dir{Z: -1}
	South = Dir{Z: 1}
	East  = Dir{X: 1}
	West  = Dir{X: -1}
)

// Dirs is the fixed candidate order used by direction selection.
var Dirs = [6]Dir{Down, Up, North, South, West, East}

func (d Dir) IsZero() bool { return d == Dir{} }

func (d Dir) Opposite() Dir { return Dir{X: -d.X, Y: -d.Y, Z: -d.Z} }

func (d Dir) Vec() r3.Vec { return r3.Vec{X: float64(d.X), Y: float64(d.Y), Z: float64(d.Z)} }
