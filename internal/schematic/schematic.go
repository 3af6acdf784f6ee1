// Package schematic reads and writes MCEdit-style .schematic files: a
// gzip'd NBT compound with Width/Height/Length shorts and flat Blocks/Data
// byte arrays in (y, z, x) order. Ids above 255 carry their high nibble in
// an optional AddBlocks array.
package schematic

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"

	"thingcraft.ai/internal/memory"
	"thingcraft.ai/internal/voxel"
)

// Record is a decoded schematic. IDs and Data share the chunk flattening
// order. Data holds the raw bytes; renderers mask them to 4 bits.
type Record struct {
	Width, Height, Length int
	IDs                   []uint16
	Data                  []uint8
}

type fileNBT struct {
	Width     int16  `nbt:"Width"`
	Height    int16  `nbt:"Height"`
	Length    int16  `nbt:"Length"`
	Materials string `nbt:"Materials"`
	Blocks    []byte `nbt:"Blocks"`
	Data      []byte `nbt:"Data"`
	AddBlocks []byte `nbt:"AddBlocks"`
}

type fileNBTNoAdd struct {
	Width     int16  `nbt:"Width"`
	Height    int16  `nbt:"Height"`
	Length    int16  `nbt:"Length"`
	Materials string `nbt:"Materials"`
	Blocks    []byte `nbt:"Blocks"`
	Data      []byte `nbt:"Data"`
}

// Volume is Width*Height*Length.
func (r Record) Volume() int { return r.Width * r.Height * r.Length }

// Validate checks that both arrays match the declared extents.
func (r Record) Validate() error {
	if r.Width < 0 || r.Height < 0 || r.Length < 0 {
		return fmt.Errorf("%w: negative extents %dx%dx%d", voxel.ErrSizeMismatch, r.Width, r.Height, r.Length)
	}
	if len(r.IDs) != r.Volume() || len(r.Data) != r.Volume() {
		return fmt.Errorf("%w: %dx%dx%d wants %d cells, got ids=%d data=%d",
			voxel.ErrSizeMismatch, r.Width, r.Height, r.Length, r.Volume(), len(r.IDs), len(r.Data))
	}
	return nil
}

// ToChunk wraps the record into a chunk of extents (Width, Height, Length)
// without reordering.
func (r Record) ToChunk() (*memory.Chunk, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	meta := make([]voxel.Meta, len(r.Data))
	for i, d := range r.Data {
		meta[i] = voxel.Meta(d)
	}
	return memory.NewChunk(voxel.Pos{r.Width, r.Height, r.Length}, r.IDs, meta)
}

// FromChunk is the inverse of ToChunk. Missing meta becomes 0.
func FromChunk(ch *memory.Chunk) Record {
	size := ch.Size()
	meta := ch.Meta()
	r := Record{
		Width:  size[0],
		Height: size[1],
		Length: size[2],
		IDs:    ch.IDs(),
		Data:   make([]uint8, len(meta)),
	}
	for i, m := range meta {
		if m.Valid() {
			r.Data[i] = uint8(m)
		}
	}
	return r
}

// Read decodes a schematic from r. Uncompressed NBT is accepted too.
func Read(r io.Reader) (Record, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return Record{}, fmt.Errorf("schematic: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var f fileNBT
	if _, err := nbt.NewDecoder(src).Decode(&f); err != nil {
		return Record{}, fmt.Errorf("schematic: decode nbt: %w", err)
	}
	rec := Record{
		Width:  int(uint16(f.Width)),
		Height: int(uint16(f.Height)),
		Length: int(uint16(f.Length)),
	}
	n := rec.Volume()
	if len(f.Blocks) != n {
		return Record{}, fmt.Errorf("%w: Blocks has %d entries, want %d", voxel.ErrSizeMismatch, len(f.Blocks), n)
	}
	switch len(f.Data) {
	case n:
	case 0:
		f.Data = make([]byte, n)
	default:
		return Record{}, fmt.Errorf("%w: Data has %d entries, want %d", voxel.ErrSizeMismatch, len(f.Data), n)
	}
	rec.IDs = make([]uint16, n)
	rec.Data = make([]uint8, n)
	for i := 0; i < n; i++ {
		id := uint16(f.Blocks[i])
		if i>>1 < len(f.AddBlocks) {
			add := uint16(f.AddBlocks[i>>1])
			if i&1 == 0 {
				id |= (add & 0x0F) << 8
			} else {
				id |= (add & 0xF0) << 4
			}
		}
		rec.IDs[i] = id
		rec.Data[i] = f.Data[i]
	}
	return rec, nil
}

// ReadFile reads a schematic file.
func ReadFile(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()
	return Read(f)
}

// Write encodes rec as a gzip'd NBT compound named "Schematic". Ids above
// 4095 cannot be represented.
func Write(w io.Writer, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.Width > 0xFFFF || rec.Height > 0xFFFF || rec.Length > 0xFFFF {
		return fmt.Errorf("%w: extents %dx%dx%d exceed 65535", voxel.ErrSizeMismatch, rec.Width, rec.Height, rec.Length)
	}
	n := rec.Volume()
	blocks := make([]byte, n)
	data := make([]byte, n)
	var add []byte
	for i, id := range rec.IDs {
		if id > 0x0FFF {
			return fmt.Errorf("schematic: block id %d at %d does not fit in 12 bits", id, i)
		}
		blocks[i] = byte(id)
		data[i] = rec.Data[i]
		if hi := byte(id >> 8); hi != 0 {
			if add == nil {
				add = make([]byte, (n+1)>>1)
			}
			if i&1 == 0 {
				add[i>>1] |= hi
			} else {
				add[i>>1] |= hi << 4
			}
		}
	}

	zw := gzip.NewWriter(w)
	enc := nbt.NewEncoder(zw)
	var err error
	if add != nil {
		err = enc.Encode(fileNBT{
			Width: int16(rec.Width), Height: int16(rec.Height), Length: int16(rec.Length),
			Materials: "Alpha", Blocks: blocks, Data: data, AddBlocks: add,
		}, "Schematic")
	} else {
		err = enc.Encode(fileNBTNoAdd{
			Width: int16(rec.Width), Height: int16(rec.Height), Length: int16(rec.Length),
			Materials: "Alpha", Blocks: blocks, Data: data,
		}, "Schematic")
	}
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("schematic: encode nbt: %w", err)
	}
	return zw.Close()
}

// WriteFile writes rec to path.
func WriteFile(path string, rec Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, rec); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
