package snapshot

import (
	"path/filepath"
	"testing"
)

func TestThingRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "things", "house.snap.zst")
	in := ThingV1{
		Header:   Header{ID: "T1", Digest: 99},
		Name:     "house",
		Position: [3]int{10, 64, -3},
		Placements: []PlacementV1{
			{Anchor: [3]int{0, 0, 0}, Size: [3]int{2, 1, 1}, IDs: "AQI=", Meta: "AQI="},
		},
	}
	if err := WriteThing(path, in); err != nil {
		t.Fatalf("WriteThing: %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Kind != KindThing || h.ID != "T1" || h.Version != 1 || h.Digest != 99 {
		t.Fatalf("header=%+v", h)
	}
	out, err := ReadThing(path)
	if err != nil {
		t.Fatalf("ReadThing: %v", err)
	}
	if out.Name != in.Name || out.Position != in.Position || len(out.Placements) != 1 || out.Placements[0] != in.Placements[0] {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestReadRejectsWrongKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.snap.zst")
	if err := WriteWorld(path, WorldV1{Header: Header{ID: "W"}}); err != nil {
		t.Fatalf("WriteWorld: %v", err)
	}
	if _, err := ReadThing(path); err == nil {
		t.Fatalf("expected kind mismatch error")
	}
	w, err := ReadWorld(path)
	if err != nil {
		t.Fatalf("ReadWorld: %v", err)
	}
	if w.Header.ID != "W" {
		t.Fatalf("world id=%q", w.Header.ID)
	}
}
