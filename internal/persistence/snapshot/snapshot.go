package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const (
	KindThing = "thing"
	KindWorld = "world"
)

type Header struct {
	Version int    `json:"version"`
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Digest  uint64 `json:"digest,omitempty"`
}

// ThingV1 captures one Thing: its world position and the placements it
// renders, in local coordinates.
type ThingV1 struct {
	Header Header `json:"header"`

	Name       string        `json:"name"`
	Position   [3]int        `json:"position"`
	Placements []PlacementV1 `json:"placements"`
}

// PlacementV1 stores a chunk with RLE-compressed id and meta arrays
// (see internal/encoding).
type PlacementV1 struct {
	Anchor [3]int `json:"anchor"`
	Size   [3]int `json:"size"`
	IDs    string `json:"ids"`
	Meta   string `json:"meta"`
}

// WorldV1 captures an in-memory target world.
type WorldV1 struct {
	Header Header `json:"header"`

	Air      uint16      `json:"air"`
	Sections []SectionV1 `json:"sections"`
}

type SectionV1 struct {
	CX     int      `json:"cx"`
	CY     int      `json:"cy"`
	CZ     int      `json:"cz"`
	Size   int      `json:"size"`
	Blocks []uint16 `json:"blocks"`
	Meta   []uint8  `json:"meta"`
}

func WriteThing(path string, snap ThingV1) error {
	snap.Header.Version = 1
	snap.Header.Kind = KindThing
	return write(path, snap.Header, &snap)
}

func ReadThing(path string) (ThingV1, error) {
	var snap ThingV1
	if err := read(path, KindThing, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func WriteWorld(path string, snap WorldV1) error {
	snap.Header.Version = 1
	snap.Header.Kind = KindWorld
	return write(path, snap.Header, &snap)
}

func ReadWorld(path string) (WorldV1, error) {
	var snap WorldV1
	if err := read(path, KindWorld, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line of a snapshot.
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
	if err != nil && err != io.EOF {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func write(path string, h Header, body any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(body); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func read(path, kind string, body any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	if h.Kind != kind {
		return fmt.Errorf("snapshot kind mismatch: got %q want %q", h.Kind, kind)
	}
	if h.Version != 1 {
		return fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(body); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}
