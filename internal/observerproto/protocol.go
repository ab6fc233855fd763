package observerproto

// Version is the observer protocol version.
const Version = "0.2"

const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeTick       = "TICK"
	TypeEffect     = "EFFECT"
	TypeChunk      = "CHUNK"
	TypeChunkPatch = "CHUNK_PATCH"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to move the chunk window.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CenterCX        int    `json:"center_cx"`
	CenterCZ        int    `json:"center_cz"`
	ChunkRadius     int    `json:"chunk_radius"`
	MaxChunks       int    `json:"max_chunks"`
	Effects         bool   `json:"effects"`
}

// HTTP response for GET /v1/observe/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
}

type WorldParams struct {
	TickRateHz int    `json:"tick_rate_hz"`
	ChunkSize  [3]int `json:"chunk_size"`
	Height     int    `json:"height"`
	SeaLevel   int    `json:"sea_level"`
	Seed       int64  `json:"seed"`
	BoundaryR  int    `json:"boundary_r"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Population int            `json:"population"`
	BySpecies  map[string]int `json:"by_species,omitempty"`
	Entities   int            `json:"entities"`

	Automatons []AutomatonState `json:"automatons"`
}

type AutomatonState struct {
	ID      string `json:"id"`
	Species string `json:"species"`
	Cell    [3]int `json:"cell"`
	Spores  int    `json:"spores"`
	Water   int    `json:"water"`
	Stage   int    `json:"stage"`
}

// Server -> Client. A particle burst or sound at a position.
type EffectMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Kind            string     `json:"kind"` // PARTICLES or SOUND
	Name            string     `json:"name"`
	Pos             [3]float64 `json:"pos"`
	Count           int        `json:"count,omitempty"`
	Volume          float64    `json:"volume,omitempty"`
	Pitch           float64    `json:"pitch,omitempty"`
}

// Server -> Client. Full voxel data for a loaded chunk.
// Encoding "RLE_B64": base64 of varint (block, run) pairs over
// x + z*16 + y*256 order, 16*16*height ids in total.
type ChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CZ              int    `json:"cz"`
	Height          int    `json:"height"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}

// Server -> Client. Cells of one chunk changed during a tick.
type ChunkPatchMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	CX              int         `json:"cx"`
	CZ              int         `json:"cz"`
	Cells           []PatchCell `json:"cells"`
}

type PatchCell struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block uint16 `json:"block"`
}
