package observer

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/observerproto"
	"voxelgrowth.ai/internal/sim/encoding"
	"voxelgrowth.ai/internal/sim/mathx"
	"voxelgrowth.ai/internal/sim/world"
)

// ChunkSource reads loaded chunk voxels. It is only called from WorldTick,
// which runs on the world goroutine.
type ChunkSource interface {
	ChunkBlocks(cx, cz int) ([]uint16, bool)
}

type chunkKey struct{ cx, cz int }

type session struct {
	id  string
	out chan []byte

	mu  sync.Mutex
	sub observerproto.SubscribeMsg

	// Owned by the world goroutine.
	sent map[chunkKey]bool

	drops atomic.Uint64
}

func (s *session) subscription() observerproto.SubscribeMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *session) setSubscription(sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

// send never blocks; a slow observer loses messages instead of stalling
// the world.
func (s *session) send(b []byte) {
	select {
	case s.out <- b:
	default:
		s.drops.Add(1)
	}
}

// Hub fans world output out to observer sessions. It implements
// growth.EffectsSink and world.TickSink.
type Hub struct {
	log    *log.Logger
	chunks ChunkSource
	height int

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewHub(chunks ChunkSource, height int, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		log:      logger,
		chunks:   chunks,
		height:   height,
		sessions: map[string]*session{},
	}
}

func (h *Hub) add(id string, sub observerproto.SubscribeMsg, queue int) *session {
	s := &session{
		id:   id,
		out:  make(chan []byte, queue),
		sub:  sub,
		sent: map[chunkKey]bool{},
	}
	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	s := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if s != nil && s.drops.Load() > 0 {
		h.log.Printf("observer %s dropped %d messages", id, s.drops.Load())
	}
}

// SessionCount returns the number of connected observers.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) snapshotSessions() []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (h *Hub) SpawnParticles(name string, pos r3.Vec, count int) {
	h.broadcastEffect(observerproto.EffectMsg{
		Kind:  "PARTICLES",
		Name:  name,
		Pos:   [3]float64{pos.X, pos.Y, pos.Z},
		Count: count,
	})
}

func (h *Hub) PlaySound(name string, pos r3.Vec, volume, pitch float64) {
	h.broadcastEffect(observerproto.EffectMsg{
		Kind:   "SOUND",
		Name:   name,
		Pos:    [3]float64{pos.X, pos.Y, pos.Z},
		Volume: volume,
		Pitch:  pitch,
	})
}

func (h *Hub) broadcastEffect(msg observerproto.EffectMsg) {
	sessions := h.snapshotSessions()
	if len(sessions) == 0 {
		return
	}
	msg.Type = observerproto.TypeEffect
	msg.ProtocolVersion = observerproto.Version
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, s := range sessions {
		if s.subscription().Effects {
			s.send(b)
		}
	}
}

// WorldTick streams chunk windows, block patches and the tick message.
func (h *Hub) WorldTick(sum world.TickSummary) {
	sessions := h.snapshotSessions()
	if len(sessions) == 0 {
		return
	}

	patches := patchesByChunk(sum.Changes)
	tickMsg, err := json.Marshal(tickMessage(sum))
	if err != nil {
		return
	}

	for _, s := range sessions {
		fresh := h.syncWindow(s)
		for _, k := range sortedKeys(patches) {
			if !s.sent[k] || fresh[k] {
				continue
			}
			b, err := json.Marshal(observerproto.ChunkPatchMsg{
				Type:            observerproto.TypeChunkPatch,
				ProtocolVersion: observerproto.Version,
				Tick:            sum.Tick,
				CX:              k.cx,
				CZ:              k.cz,
				Cells:           patches[k],
			})
			if err == nil {
				s.send(b)
			}
		}
		s.send(tickMsg)
	}
}

// syncWindow sends loaded chunks inside the session window that the
// observer has not seen, nearest first, and forgets chunks that left it.
// It returns the chunks sent now.
func (h *Hub) syncWindow(s *session) map[chunkKey]bool {
	sub := s.subscription()
	r := sub.ChunkRadius

	want := make([]chunkKey, 0, (2*r+1)*(2*r+1))
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			want = append(want, chunkKey{sub.CenterCX + dx, sub.CenterCZ + dz})
		}
	}
	sort.Slice(want, func(i, j int) bool {
		di := mathx.AbsInt(want[i].cx-sub.CenterCX) + mathx.AbsInt(want[i].cz-sub.CenterCZ)
		dj := mathx.AbsInt(want[j].cx-sub.CenterCX) + mathx.AbsInt(want[j].cz-sub.CenterCZ)
		if di != dj {
			return di < dj
		}
		if want[i].cx != want[j].cx {
			return want[i].cx < want[j].cx
		}
		return want[i].cz < want[j].cz
	})
	if len(want) > sub.MaxChunks {
		want = want[:sub.MaxChunks]
	}

	inWindow := make(map[chunkKey]bool, len(want))
	for _, k := range want {
		inWindow[k] = true
	}
	for k := range s.sent {
		if !inWindow[k] {
			delete(s.sent, k)
		}
	}

	fresh := map[chunkKey]bool{}
	for _, k := range want {
		if s.sent[k] {
			continue
		}
		blocks, ok := h.chunks.ChunkBlocks(k.cx, k.cz)
		if !ok {
			continue
		}
		b, err := json.Marshal(observerproto.ChunkMsg{
			Type:            observerproto.TypeChunk,
			ProtocolVersion: observerproto.Version,
			CX:              k.cx,
			CZ:              k.cz,
			Height:          h.height,
			Encoding:        "RLE_B64",
			Data:            encoding.EncodeRLEString(blocks),
		})
		if err != nil {
			continue
		}
		s.send(b)
		s.sent[k] = true
		fresh[k] = true
	}
	return fresh
}

func tickMessage(sum world.TickSummary) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            sum.Tick,
		Digest:          sum.Digest,
		Population:      sum.Population,
		BySpecies:       sum.BySpecies,
		Entities:        sum.Entities,
		Automatons:      make([]observerproto.AutomatonState, 0, len(sum.Automatons)),
	}
	for _, a := range sum.Automatons {
		msg.Automatons = append(msg.Automatons, observerproto.AutomatonState(a))
	}
	return msg
}

// patchesByChunk keeps the last write per cell.
func patchesByChunk(changes []world.AuditEntry) map[chunkKey][]observerproto.PatchCell {
	out := map[chunkKey][]observerproto.PatchCell{}
	index := map[[3]int]int{}
	for _, c := range changes {
		k := chunkKey{mathx.FloorDiv(c.Pos[0], 16), mathx.FloorDiv(c.Pos[2], 16)}
		cell := observerproto.PatchCell{
			X:     mathx.Mod(c.Pos[0], 16),
			Y:     c.Pos[1],
			Z:     mathx.Mod(c.Pos[2], 16),
			Block: c.To,
		}
		if i, ok := index[c.Pos]; ok {
			out[k][i] = cell
			continue
		}
		index[c.Pos] = len(out[k])
		out[k] = append(out[k], cell)
	}
	return out
}

func sortedKeys[V any](m map[chunkKey]V) []chunkKey {
	out := make([]chunkKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].cx != out[j].cx {
			return out[i].cx < out[j].cx
		}
		return out[i].cz < out[j].cz
	})
	return out
}
