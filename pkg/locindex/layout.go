package locindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/azybler/map_locator/pkg/geo"
)

// File layout (little-endian):
//
//	header   64 bytes, see fileHeader
//	tiles    NumTiles * 24 bytes, in depth-first pre-order, root first
//	refs     NumRefs * 4 bytes, leaf edge ids
//	crc32    4 bytes, IEEE over everything before it
const (
	magicBytes    = "MPLOCIDX"
	formatVersion = uint32(1)

	headerSize  = 64
	tileSize    = 24
	trailerSize = 4

	maxTiles = 1 << 28
	maxRefs  = 1 << 31
)

type fileHeader struct {
	Magic        [8]byte
	Version      uint32
	TileCapacity uint32
	MaxDepth     uint32
	NumTiles     uint32
	NumRefs      uint32
	NumEdges     uint32
	MinLat       float64
	MinLon       float64
	MaxLat       float64
	MaxLon       float64
}

func (h *fileHeader) bounds() geo.BBox {
	return geo.NewBBox(h.MinLat, h.MinLon, h.MaxLat, h.MaxLon)
}

// nativeLittleEndian is true when tiles and refs can be viewed in place.
var nativeLittleEndian = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// writeGrid persists g to path via a temp file and an atomic rename.
func writeGrid(path string, g *grid, cfg Config, numEdges uint32) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "create temp file %s", tmpPath)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // no-op after a successful rename
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	cw := &crcWriter{w: bw, hash: crc32.NewIEEE()}

	hdr := fileHeader{
		Version:      formatVersion,
		TileCapacity: uint32(cfg.TileCapacity),
		MaxDepth:     uint32(cfg.MaxDepth),
		NumTiles:     uint32(len(g.tiles)),
		NumRefs:      uint32(len(g.refs)),
		NumEdges:     numEdges,
		MinLat:       g.bounds.MinLat,
		MinLon:       g.bounds.MinLon,
		MaxLat:       g.bounds.MaxLat,
		MaxLon:       g.bounds.MaxLon,
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(cw, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := writeTiles(cw, g.tiles); err != nil {
		return errors.Wrap(err, "write tiles")
	}
	if err := writeRefs(cw, g.refs); err != nil {
		return errors.Wrap(err, "write refs")
	}
	if err := binary.Write(bw, binary.LittleEndian, cw.hash.Sum32()); err != nil {
		return errors.Wrap(err, "write CRC32")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "sync")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}

func writeTiles(w io.Writer, tiles []tile) error {
	if len(tiles) == 0 {
		return nil
	}
	if nativeLittleEndian {
		b := unsafe.Slice((*byte)(unsafe.Pointer(&tiles[0])), len(tiles)*tileSize)
		_, err := w.Write(b)
		return err
	}
	var buf [tileSize]byte
	for i := range tiles {
		encodeTile(buf[:], &tiles[i])
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeRefs(w io.Writer, refs []uint32) error {
	if len(refs) == 0 {
		return nil
	}
	if nativeLittleEndian {
		b := unsafe.Slice((*byte)(unsafe.Pointer(&refs[0])), len(refs)*4)
		_, err := w.Write(b)
		return err
	}
	return binary.Write(w, binary.LittleEndian, refs)
}

func encodeTile(b []byte, t *tile) {
	for i, c := range t.Child {
		binary.LittleEndian.PutUint32(b[i*4:], c)
	}
	binary.LittleEndian.PutUint32(b[16:], t.RefStart)
	binary.LittleEndian.PutUint32(b[20:], t.RefCount)
}

func decodeTile(b []byte) tile {
	var t tile
	for i := range t.Child {
		t.Child[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	t.RefStart = binary.LittleEndian.Uint32(b[16:])
	t.RefCount = binary.LittleEndian.Uint32(b[20:])
	return t
}

// loadGrid maps the file at path and validates it against the graph it is
// meant to index. The returned grid points into the mapping.
func loadGrid(path string, numEdges uint32) (*grid, Config, *mapping, error) {
	m, err := openMapping(path)
	if err != nil {
		return nil, Config{}, nil, &MissingDataError{Path: path, Err: err}
	}
	g, cfg, err := decodeGrid(path, m.data, numEdges)
	if err != nil {
		m.close()
		return nil, Config{}, nil, err
	}
	return g, cfg, m, nil
}

func decodeGrid(path string, data []byte, numEdges uint32) (*grid, Config, error) {
	formatErr := func(format string, args ...any) error {
		return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
	}

	if len(data) < headerSize {
		return nil, Config{}, &MissingDataError{Path: path, Err: fmt.Errorf("file is %d bytes, shorter than the header", len(data))}
	}
	var hdr fileHeader
	if _, err := binary.Decode(data[:headerSize], binary.LittleEndian, &hdr); err != nil {
		return nil, Config{}, formatErr("decode header: %v", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, Config{}, formatErr("invalid magic bytes %q", hdr.Magic)
	}
	if hdr.Version != formatVersion {
		return nil, Config{}, formatErr("unsupported version %d, want %d", hdr.Version, formatVersion)
	}
	cfg := Config{TileCapacity: int(hdr.TileCapacity), MaxDepth: int(hdr.MaxDepth)}
	if err := cfg.Validate(); err != nil {
		return nil, Config{}, formatErr("stored config: %v", err)
	}
	if hdr.NumEdges != numEdges {
		return nil, Config{}, formatErr("index covers %d edges, graph has %d", hdr.NumEdges, numEdges)
	}
	if hdr.NumTiles == 0 || hdr.NumTiles > maxTiles {
		return nil, Config{}, formatErr("NumTiles %d out of range", hdr.NumTiles)
	}
	if hdr.NumRefs > maxRefs {
		return nil, Config{}, formatErr("NumRefs %d exceeds limit %d", hdr.NumRefs, maxRefs)
	}
	bounds := hdr.bounds()
	if hdr.NumRefs > 0 && !bounds.IsValid() {
		return nil, Config{}, formatErr("invalid bounds %s", bounds)
	}

	tilesEnd := uint64(headerSize) + uint64(hdr.NumTiles)*tileSize
	refsEnd := tilesEnd + uint64(hdr.NumRefs)*4
	want := refsEnd + trailerSize
	switch {
	case uint64(len(data)) < want:
		return nil, Config{}, &MissingDataError{Path: path, Err: fmt.Errorf("file is %d bytes, header declares %d", len(data), want)}
	case uint64(len(data)) > want:
		return nil, Config{}, formatErr("file is %d bytes, header declares %d", len(data), want)
	}

	stored := binary.LittleEndian.Uint32(data[refsEnd:])
	if computed := crc32.ChecksumIEEE(data[:refsEnd]); stored != computed {
		return nil, Config{}, formatErr("CRC32 mismatch: stored=%08x computed=%08x", stored, computed)
	}

	g := &grid{
		bounds: bounds,
		tiles:  viewTiles(data[headerSize:tilesEnd], int(hdr.NumTiles)),
		refs:   viewRefs(data[tilesEnd:refsEnd], int(hdr.NumRefs)),
	}
	if err := validateTree(g, cfg.MaxDepth, numEdges); err != nil {
		return nil, Config{}, formatErr("%v", err)
	}
	return g, cfg, nil
}

func viewTiles(b []byte, n int) []tile {
	if nativeLittleEndian && uintptr(unsafe.Pointer(&b[0]))%unsafe.Alignof(tile{}) == 0 {
		return unsafe.Slice((*tile)(unsafe.Pointer(&b[0])), n)
	}
	tiles := make([]tile, n)
	for i := range tiles {
		tiles[i] = decodeTile(b[i*tileSize:])
	}
	return tiles
}

func viewRefs(b []byte, n int) []uint32 {
	if n == 0 {
		return nil
	}
	if nativeLittleEndian && uintptr(unsafe.Pointer(&b[0]))%4 == 0 {
		return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), n)
	}
	refs := make([]uint32, n)
	for i := range refs {
		refs[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return refs
}

// validateTree checks that the tiles form a tree rooted at 0 whose
// depth-first pre-order visits every tile exactly once in index order, and
// that leaf ranges and edge ids are in bounds.
func validateTree(g *grid, maxDepth int, numEdges uint32) error {
	numTiles := uint32(len(g.tiles))
	numRefs := uint64(len(g.refs))

	type frame struct {
		idx   uint32
		depth int
	}
	want := uint32(0)
	stack := []frame{{idx: 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.idx != want {
			return fmt.Errorf("tile %d out of pre-order, want %d", f.idx, want)
		}
		want++
		t := &g.tiles[f.idx]

		if t.isLeaf() {
			for _, c := range t.Child[1:] {
				if c != noTile {
					return fmt.Errorf("leaf tile %d has a child", f.idx)
				}
			}
			if uint64(t.RefStart)+uint64(t.RefCount) > numRefs {
				return fmt.Errorf("leaf tile %d refs [%d,+%d) exceed %d", f.idx, t.RefStart, t.RefCount, numRefs)
			}
			continue
		}
		if f.depth >= maxDepth {
			return fmt.Errorf("tile %d at depth %d has children, max depth is %d", f.idx, f.depth, maxDepth)
		}
		for q := 3; q >= 0; q-- {
			c := t.Child[q]
			if c == noTile || c >= numTiles {
				return fmt.Errorf("tile %d: child %d out of range", f.idx, c)
			}
			stack = append(stack, frame{idx: c, depth: f.depth + 1})
		}
	}
	if want != numTiles {
		return fmt.Errorf("%d of %d tiles unreachable from the root", numTiles-want, numTiles)
	}

	for i, e := range g.refs {
		if e >= numEdges {
			return fmt.Errorf("ref %d: edge %d >= NumEdges %d", i, e, numEdges)
		}
	}
	return nil
}

type crcWriter struct {
	w    io.Writer
	hash interface {
		io.Writer
		Sum32() uint32
	}
}

func (cw *crcWriter) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}
