package observer

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r3"

	"voxelgrowth.ai/internal/observerproto"
	"voxelgrowth.ai/internal/sim/encoding"
	"voxelgrowth.ai/internal/sim/world"
)

const testHeight = 2

type fakeChunks map[chunkKey][]uint16

func (f fakeChunks) ChunkBlocks(cx, cz int) ([]uint16, bool) {
	b, ok := f[chunkKey{cx, cz}]
	return b, ok
}

func filledChunk(id uint16) []uint16 {
	b := make([]uint16, 16*16*testHeight)
	for i := range b {
		b[i] = id
	}
	return b
}

type fakeWorld struct{}

func (fakeWorld) Config() world.WorldConfig {
	return world.WorldConfig{ID: "w1", TickRateHz: 5, Height: testHeight, SeaLevel: 1, Seed: 9, BoundaryR: 64}
}
func (fakeWorld) CurrentTick() uint64    { return 42 }
func (fakeWorld) BlockPalette() []string { return []string{"AIR", "STONE"} }

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func drain(t *testing.T, s *session) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case b := <-s.out:
			if err := observerproto.Validate(b); err != nil {
				t.Fatalf("invalid message %s: %v", b, err)
			}
			var m map[string]any
			_ = json.Unmarshal(b, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(msgs []map[string]any) string {
	var ts []string
	for _, m := range msgs {
		ts = append(ts, m["type"].(string))
	}
	return strings.Join(ts, ",")
}

func TestHub_WindowPatchesAndTick(t *testing.T) {
	chunks := fakeChunks{
		{0, 0}:  filledChunk(1),
		{1, 0}:  filledChunk(1),
		{-3, 0}: filledChunk(1),
	}
	h := NewHub(chunks, testHeight, quietLogger())
	s := h.add("O1", observerproto.SubscribeMsg{ChunkRadius: 1, MaxChunks: 9}, 64)

	sum := world.TickSummary{
		Tick:       1,
		Digest:     "d1",
		Population: 1,
		Changes: []world.AuditEntry{
			{Pos: [3]int{17, 1, 3}, To: 4},
		},
		Automatons: []world.AutomatonView{{ID: "a", Species: "vine", Cell: [3]int{17, 1, 3}, Spores: 3}},
	}
	h.WorldTick(sum)
	msgs := drain(t, s)
	// Two loaded chunks in the window; no patch for a chunk sent this tick.
	if got := types(msgs); got != "CHUNK,CHUNK,TICK" {
		t.Fatalf("first tick = %s", got)
	}
	if msgs[0]["cx"].(float64) != 0 || msgs[1]["cx"].(float64) != 1 {
		t.Fatalf("chunks should be nearest first: %v %v", msgs[0]["cx"], msgs[1]["cx"])
	}
	ids, err := encoding.DecodeRLEString(msgs[0]["data"].(string), 16*16*testHeight)
	if err != nil || ids[0] != 1 {
		t.Fatalf("chunk data: %v %v", ids[:1], err)
	}

	sum.Tick = 2
	sum.Changes = []world.AuditEntry{
		{Pos: [3]int{17, 1, 3}, To: 4},
		{Pos: [3]int{17, 1, 3}, To: 0},
		{Pos: [3]int{-40, 1, 0}, To: 4},
	}
	h.WorldTick(sum)
	msgs = drain(t, s)
	if got := types(msgs); got != "CHUNK_PATCH,TICK" {
		t.Fatalf("second tick = %s", got)
	}
	cells := msgs[0]["cells"].([]any)
	if len(cells) != 1 {
		t.Fatalf("patch cells = %v", cells)
	}
	cell := cells[0].(map[string]any)
	if cell["x"].(float64) != 1 || cell["z"].(float64) != 3 || cell["block"].(float64) != 0 {
		t.Fatalf("patch cell = %v", cell)
	}

	// Moving the window evicts and sends the newly covered chunk.
	s.setSubscription(observerproto.SubscribeMsg{CenterCX: -3, ChunkRadius: 0, MaxChunks: 1})
	sum.Tick = 3
	sum.Changes = nil
	h.WorldTick(sum)
	msgs = drain(t, s)
	if got := types(msgs); got != "CHUNK,TICK" || msgs[0]["cx"].(float64) != -3 {
		t.Fatalf("moved window = %s %v", got, msgs)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent = %v", s.sent)
	}
}

func TestHub_EffectsOnlyWhenSubscribed(t *testing.T) {
	h := NewHub(fakeChunks{}, testHeight, quietLogger())
	with := h.add("O1", observerproto.SubscribeMsg{Effects: true, MaxChunks: 1}, 8)
	without := h.add("O2", observerproto.SubscribeMsg{MaxChunks: 1}, 8)

	h.SpawnParticles("spore", r3.Vec{X: 1, Y: 2, Z: 3}, 5)
	h.PlaySound("grow", r3.Vec{}, 1, 0.5)

	if got := types(drain(t, with)); got != "EFFECT,EFFECT" {
		t.Fatalf("subscribed = %s", got)
	}
	if got := drain(t, without); len(got) != 0 {
		t.Fatalf("unsubscribed got %v", got)
	}
}

func TestHub_DropsWhenQueueFull(t *testing.T) {
	h := NewHub(fakeChunks{}, testHeight, quietLogger())
	s := h.add("O1", observerproto.SubscribeMsg{Effects: true, MaxChunks: 1}, 2)
	for i := 0; i < 5; i++ {
		h.SpawnParticles("spore", r3.Vec{}, 1)
	}
	if len(s.out) != 2 || s.drops.Load() != 3 {
		t.Fatalf("queued=%d drops=%d", len(s.out), s.drops.Load())
	}
	h.remove("O1")
	if h.SessionCount() != 0 {
		t.Fatalf("session not removed")
	}
}

func TestPatchesByChunk_NegativeCoords(t *testing.T) {
	p := patchesByChunk([]world.AuditEntry{{Pos: [3]int{-1, 5, -17}, To: 2}})
	cells := p[chunkKey{-1, -2}]
	if len(cells) != 1 || cells[0].X != 15 || cells[0].Z != 15 || cells[0].Y != 5 {
		t.Fatalf("patches = %v", p)
	}
}

func TestServer_SubscribeAndStream(t *testing.T) {
	h := NewHub(fakeChunks{{0, 0}: filledChunk(1)}, testHeight, quietLogger())
	srv := NewServer(fakeWorld{}, h, quietLogger())
	mux := http.NewServeMux()
	srv.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/observe/bootstrap")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	var boot observerproto.BootstrapResponse
	err = json.NewDecoder(resp.Body).Decode(&boot)
	resp.Body.Close()
	if err != nil || boot.WorldID != "w1" || boot.Tick != 42 || boot.WorldParams.ChunkSize != [3]int{16, 16, testHeight} {
		t.Fatalf("bootstrap = %+v, %v", boot, err)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, MaxChunks: 4}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.SessionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.WorldTick(world.TickSummary{Tick: 7, Digest: "d"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var chunk observerproto.ChunkMsg
	if err := conn.ReadJSON(&chunk); err != nil || chunk.Type != observerproto.TypeChunk {
		t.Fatalf("chunk = %+v, %v", chunk, err)
	}
	var tick observerproto.TickMsg
	if err := conn.ReadJSON(&tick); err != nil || tick.Type != observerproto.TypeTick || tick.Tick != 7 {
		t.Fatalf("tick = %+v, %v", tick, err)
	}
}

func TestServer_RejectsWrongFirstMessage(t *testing.T) {
	h := NewHub(fakeChunks{}, testHeight, quietLogger())
	ts := httptest.NewServer(NewServer(fakeWorld{}, h, quietLogger()).WSHandler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]string{"type": "HELLO"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if h.SessionCount() != 0 {
		t.Fatalf("rejected client registered")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("%s: got %v", in, got)
		}
	}
}
