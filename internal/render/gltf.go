package render

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"thingcraft.ai/internal/voxel"
)

type face struct {
	normal  mgl32.Vec3
	step    voxel.Pos
	corners [4]mgl32.Vec3
}

// Corners wind counter-clockwise seen from outside the unit cube.
var faces = [6]face{
	{mgl32.Vec3{1, 0, 0}, voxel.Pos{1, 0, 0}, [4]mgl32.Vec3{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{mgl32.Vec3{-1, 0, 0}, voxel.Pos{-1, 0, 0}, [4]mgl32.Vec3{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{mgl32.Vec3{0, 1, 0}, voxel.Pos{0, 1, 0}, [4]mgl32.Vec3{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{mgl32.Vec3{0, -1, 0}, voxel.Pos{0, -1, 0}, [4]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{mgl32.Vec3{0, 0, 1}, voxel.Pos{0, 0, 1}, [4]mgl32.Vec3{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{mgl32.Vec3{0, 0, -1}, voxel.Pos{0, 0, -1}, [4]mgl32.Vec3{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// GLTFBackend records writes in memory and exports the result as a binary
// glTF model on Close. Each solid cell is a unit cube; faces shared by two
// solid cells are culled.
type GLTFBackend struct {
	mu    sync.Mutex
	path  string
	empty uint16
	cells map[voxel.Pos]uint16
}

// NewGLTFBackend writes the model to path on Close. Cells written with
// empty are removed.
func NewGLTFBackend(path string, empty uint16) *GLTFBackend {
	return &GLTFBackend{path: path, empty: empty, cells: make(map[voxel.Pos]uint16)}
}

func (g *GLTFBackend) put(p voxel.Pos, id uint16) {
	if id == g.empty {
		delete(g.cells, p)
		return
	}
	g.cells[p] = id
}

func (g *GLTFBackend) Fill(ctx context.Context, box voxel.Box, id uint16, meta uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for y := box.Min[1]; y <= box.Max[1]; y++ {
		for z := box.Min[2]; z <= box.Max[2]; z++ {
			for x := box.Min[0]; x <= box.Max[0]; x++ {
				g.put(voxel.Pos{x, y, z}, id)
			}
		}
	}
	return nil
}

func (g *GLTFBackend) Set(ctx context.Context, pos voxel.Pos, id uint16, meta uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.put(pos, id)
	return nil
}

// Len is the number of solid cells recorded.
func (g *GLTFBackend) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cells)
}

type meshData struct {
	positions [][3]float32
	normals   [][3]float32
	colors    [][4]float32
	indices   []uint32
}

// blockColor derives a stable opaque color from a block id.
func blockColor(id uint16) [4]float32 {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], id)
	h := xxhash.Sum64(b[:])
	return [4]float32{
		0.25 + 0.75*float32(h&0xFF)/255,
		0.25 + 0.75*float32(h>>8&0xFF)/255,
		0.25 + 0.75*float32(h>>16&0xFF)/255,
		1,
	}
}

func (g *GLTFBackend) mesh() meshData {
	keys := make([]voxel.Pos, 0, len(g.cells))
	for p := range g.cells {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		if a[2] != b[2] {
			return a[2] < b[2]
		}
		return a[0] < b[0]
	})
	var m meshData
	for _, p := range keys {
		origin := mgl32.Vec3{float32(p[0]), float32(p[1]), float32(p[2])}
		color := blockColor(g.cells[p])
		for _, f := range faces {
			if _, solid := g.cells[p.Add(f.step)]; solid {
				continue
			}
			base := uint32(len(m.positions))
			for _, c := range f.corners {
				m.positions = append(m.positions, [3]float32(origin.Add(c)))
				m.normals = append(m.normals, [3]float32(f.normal))
				m.colors = append(m.colors, color)
			}
			m.indices = append(m.indices, base, base+1, base+2, base, base+2, base+3)
		}
	}
	return m
}

// Document builds the glTF document for the current cells.
func (g *GLTFBackend) Document() *gltf.Document {
	g.mu.Lock()
	m := g.mesh()
	g.mu.Unlock()

	doc := gltf.NewDocument()
	doc.Asset.Generator = "thingcraft"
	if len(m.indices) == 0 {
		return doc
	}

	posAccessor := modeler.WritePosition(doc, m.positions)
	normalAccessor := modeler.WriteNormal(doc, m.normals)
	colorAccessor := modeler.WriteColor(doc, m.colors)
	indicesAccessor := modeler.WriteIndices(doc, m.indices)

	prim := &gltf.Primitive{
		Attributes: map[string]uint32{
			gltf.POSITION: uint32(posAccessor),
			gltf.NORMAL:   uint32(normalAccessor),
			gltf.COLOR_0:  uint32(colorAccessor),
		},
		Indices:  gltf.Index(uint32(indicesAccessor)),
		Material: gltf.Index(0),
	}
	doc.Materials = []*gltf.Material{{
		AlphaMode: gltf.AlphaOpaque,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{1, 1, 1, 1},
			MetallicFactor:  gltf.Float(0),
			RoughnessFactor: gltf.Float(1),
		},
	}}
	doc.Meshes = []*gltf.Mesh{{Name: "Thing", Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(0))
	return doc
}

// Close writes the model file.
func (g *GLTFBackend) Close() error {
	return gltf.SaveBinary(g.Document(), g.path)
}
