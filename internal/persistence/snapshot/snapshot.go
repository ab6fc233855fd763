package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version       int    `json:"version"`
	WorldID       string `json:"world_id"`
	Tick          uint64 `json:"tick"`
	CatalogDigest string `json:"catalog_digest"`
	StateDigest   string `json:"state_digest"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed      int64 `json:"seed"`
	TickRate  int   `json:"tick_rate_hz"`
	Height    int   `json:"height"`
	SeaLevel  int   `json:"sea_level"`
	BoundaryR int   `json:"boundary_r"`

	Chunks     []ChunkV1     `json:"chunks"`
	Automatons []AutomatonV1 `json:"automatons"`
	Entities   []EntityV1    `json:"entities,omitempty"`
	Water      []WaterV1     `json:"water,omitempty"`
	Catalyzed  [][3]int      `json:"catalyzed,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextSerial uint64 `json:"next_serial"`
	NextEntity uint64 `json:"next_entity"`
}

// ChunkV1 holds one column of Height*16*16 palette ids, varint RLE encoded.
type ChunkV1 struct {
	CX     int    `json:"cx"`
	CZ     int    `json:"cz"`
	Height int    `json:"height"`
	RLE    []byte `json:"rle"`
}

// AutomatonV1 carries the host record of an automaton; State is its NBT
// encoded growth state. Runtime is optional: without it the automaton
// resumes with a fresh age, failure streak and random stream.
type AutomatonV1 struct {
	ID      string     `json:"id"`
	Serial  uint64     `json:"serial"`
	Species string     `json:"species"`
	Pos     [3]float64 `json:"pos"`
	State   []byte     `json:"state"`
	Runtime *RuntimeV1 `json:"runtime,omitempty"`
}

// RuntimeV1 is the transient automaton state needed for exact replays.
type RuntimeV1 struct {
	Age      int      `json:"age"`
	Failures int      `json:"failures"`
	LastDir  [3]int   `json:"last_dir"`
	RNG      []byte   `json:"rng"`
	Force    *ForceV1 `json:"force,omitempty"`
}

// ForceV1 is a cached force sample and the cell it was taken in.
type ForceV1 struct {
	Dir  [3]float64 `json:"dir"`
	Mag  float64    `json:"mag"`
	Cell [3]int     `json:"cell"`
}

type EntityV1 struct {
	ID       uint64     `json:"id"`
	Category string     `json:"category"`
	Pos      [3]float64 `json:"pos"`
	Vel      [3]float64 `json:"vel"`
}

// WaterV1 is a partly drained water cell.
type WaterV1 struct {
	Pos   [3]int `json:"pos"`
	Units int    `json:"units"`
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d unsupported", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}
