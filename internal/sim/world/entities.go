package world

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/persistence/snapshot"
	"voxelgrowth.ai/internal/sim/growth"
	"voxelgrowth.ai/internal/sim/mathx"
)

// Position, Velocity and Carrier are the components of a mobile
// metal-bearing entity.
type Position struct{ V r3.Vec }

type Velocity struct{ V r3.Vec }

type Carrier struct {
	ID       uint64
	Category string
}

type entityStore struct {
	world  *ecs.World
	mapper *ecs.Map3[Position, Velocity, Carrier]
	filter *ecs.Filter3[Position, Velocity, Carrier]

	content func(category string) int
	nextID  uint64
}

func newEntityStore(content func(category string) int) *entityStore {
	w := ecs.NewWorld()
	return &entityStore{
		world:   w,
		mapper:  ecs.NewMap3[Position, Velocity, Carrier](w),
		filter:  ecs.NewFilter3[Position, Velocity, Carrier](w),
		content: content,
	}
}

// populate scatters n entities over the surface, cycling through the
// catalog's entity categories in name order.
func (s *entityStore) populate(w *World, n int, speed float64) {
	cats := make([]string, 0, len(w.catalogs.Metal.Entities))
	for c := range w.catalogs.Metal.Entities {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	if n <= 0 || len(cats) == 0 {
		return
	}
	r := w.cfg.BoundaryR / 2
	rng := rand.New(rand.NewPCG(mathx.StreamSeed(w.cfg.Seed, 0), 0x656e74))
	for i := 0; i < n; i++ {
		x := rng.IntN(2*r+1) - r
		z := rng.IntN(2*r+1) - r
		angle := rng.Float64() * 2 * math.Pi
		vel := r3.Vec{X: math.Cos(angle) * speed, Z: math.Sin(angle) * speed}
		s.spawn(cats[i%len(cats)], w.SpawnPos(x, z), vel)
	}
}

func (s *entityStore) spawn(category string, pos, vel r3.Vec) uint64 {
	s.nextID++
	id := s.nextID
	s.mapper.NewEntity(&Position{V: pos}, &Velocity{V: vel}, &Carrier{ID: id, Category: category})
	return id
}

// SpawnEntity adds a mobile entity of the given category and returns its id.
func (w *World) SpawnEntity(category string, pos, vel r3.Vec) uint64 {
	return w.ents.spawn(category, pos, vel)
}

// advance moves every entity by its velocity. Entities bounce off the world
// boundary and follow the terrain surface.
func (s *entityStore) advance(w *World) {
	lim := float64(w.cfg.BoundaryR)
	q := s.filter.Query()
	for q.Next() {
		pos, vel, _ := q.Get()
		next := r3.Add(pos.V, vel.V)
		if lim > 0 {
			if next.X < -lim || next.X > lim {
				vel.V.X = -vel.V.X
				next.X = math.Max(-lim, math.Min(lim, next.X))
			}
			if next.Z < -lim || next.Z > lim {
				vel.V.Z = -vel.V.Z
				next.Z = math.Max(-lim, math.Min(lim, next.Z))
			}
		}
		next.Y = float64(w.terrain.SurfaceY(mathx.FloorInt(next.X), mathx.FloorInt(next.Z))) + 0.5
		pos.V = next
	}
}

// MetalEntities returns entities with non-zero metal content inside the
// cube of the given half-extent around center, in id order.
func (s *entityStore) MetalEntities(center r3.Vec, radius float64) []growth.EntityContent {
	type hit struct {
		id uint64
		ec growth.EntityContent
	}
	var hits []hit
	q := s.filter.Query()
	for q.Next() {
		pos, _, c := q.Get()
		d := r3.Sub(pos.V, center)
		if math.Abs(d.X) > radius || math.Abs(d.Y) > radius || math.Abs(d.Z) > radius {
			continue
		}
		n := s.content(c.Category)
		if n == 0 {
			continue
		}
		hits = append(hits, hit{id: c.ID, ec: growth.EntityContent{Pos: pos.V, Category: c.Category, Content: n}})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].id < hits[j].id })
	out := make([]growth.EntityContent, len(hits))
	for i, h := range hits {
		out[i] = h.ec
	}
	return out
}

func (s *entityStore) count() int {
	n := 0
	q := s.filter.Query()
	for q.Next() {
		n++
	}
	return n
}

func (s *entityStore) export() []snapshot.EntityV1 {
	var out []snapshot.EntityV1
	q := s.filter.Query()
	for q.Next() {
		pos, vel, c := q.Get()
		out = append(out, snapshot.EntityV1{
			ID:       c.ID,
			Category: c.Category,
			Pos:      [3]float64{pos.V.X, pos.V.Y, pos.V.Z},
			Vel:      [3]float64{vel.V.X, vel.V.Y, vel.V.Z},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *entityStore) restore(ents []snapshot.EntityV1, nextID uint64) {
	sorted := append([]snapshot.EntityV1(nil), ents...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, e := range sorted {
		s.mapper.NewEntity(
			&Position{V: r3.Vec{X: e.Pos[0], Y: e.Pos[1], Z: e.Pos[2]}},
			&Velocity{V: r3.Vec{X: e.Vel[0], Y: e.Vel[1], Z: e.Vel[2]}},
			&Carrier{ID: e.ID, Category: e.Category},
		)
		s.nextID = max(s.nextID, e.ID)
	}
	s.nextID = max(s.nextID, nextID)
}
