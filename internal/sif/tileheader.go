package sif

// tileRecord is the in-memory form of one tile-header-table entry.
// UniformFlags is stored as a packed MSB-first bit vector matching the
// on-disk layout exactly, so the whole-byte all-ones test can run directly
// against the persisted bytes.
type tileRecord struct {
	UniformPixelValues []byte // bands * dataUnitSize bytes
	UniformFlags       []byte // nUniformFlags bytes, MSB-first
	BlockNum           int32  // -1 if unassigned
	Dirty              bool   // in-memory only; never persisted
}

func newTileRecord(bands, dataUnitSize, nUniformFlags int32) *tileRecord {
	t := &tileRecord{
		UniformPixelValues: make([]byte, bands*dataUnitSize),
		UniformFlags:       make([]byte, nUniformFlags),
		BlockNum:           -1,
	}
	setUniformBitsAllSet(t.UniformFlags)
	return t
}

// setUniformBitsAllSet sets every uniform_flags byte to all-ones, including
// the trailing byte's spurious padding bits, so a whole-byte all-ones test
// suffices to decide "all bands uniform".
func setUniformBitsAllSet(flags []byte) {
	for b := range flags {
		flags[b] = 0xFF
	}
}

// fixTrailingPadding sets the bits beyond bands-1 in the last uniform_flags
// byte to 1, regardless of their true band-uniformity state, so that the
// whole-byte all-ones shortcut remains valid after any bit-clearing mutation.
func fixTrailingPadding(flags []byte, bands int32) {
	rem := bands % 8
	if rem == 0 {
		return
	}
	last := len(flags) - 1
	var mask byte
	for b := rem; b < 8; b++ {
		mask |= byte(0x80) >> uint(b)
	}
	flags[last] |= mask
}

func uniformBit(flags []byte, b int32) bool {
	return flags[b/8]&(0x80>>uint(b%8)) != 0
}

func setUniformBit(flags []byte, b int32, v bool) {
	mask := byte(0x80 >> uint(b%8))
	if v {
		flags[b/8] |= mask
	} else {
		flags[b/8] &^= mask
	}
}

func allBandsUniform(flags []byte) bool {
	for _, b := range flags {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// tileHeaderOffset returns the absolute file offset of tile t's record.
func tileHeaderOffset(headerBytes int64, tileHeaderBytes int32, t int32) int64 {
	return headerBytes + int64(t)*int64(tileHeaderBytes)
}

// encodeTileRecord serializes a tileRecord to its on-disk form: uniform
// pixel values, then uniform flags, then a 32-bit big-endian block_num.
func encodeTileRecord(buf []byte, t *tileRecord) {
	off := 0
	off += copy(buf[off:], t.UniformPixelValues)
	off += copy(buf[off:], t.UniformFlags)
	putInt32BE(buf[off:], t.BlockNum)
}

func decodeTileRecord(buf []byte, bands, dataUnitSize, nUniformFlags int32) *tileRecord {
	t := &tileRecord{}
	off := int32(0)
	pvLen := bands * dataUnitSize
	t.UniformPixelValues = append([]byte(nil), buf[off:off+pvLen]...)
	off += pvLen
	t.UniformFlags = append([]byte(nil), buf[off:off+nUniformFlags]...)
	off += nUniformFlags
	t.BlockNum = getInt32BE(buf[off:])
	return t
}

// tileTable is the in-memory vector of every tile's record, kept fully
// resident between open and close.
type tileTable struct {
	records         []*tileRecord
	headerBytes     int64
	tileHeaderBytes int32
	bands           int32
	dataUnitSize    int32
	nUniformFlags   int32
}

func newTileTable(h *Header) *tileTable {
	tt := &tileTable{
		headerBytes:     int64(h.HeaderBytes),
		tileHeaderBytes: h.TileHeaderBytes,
		bands:           h.Bands,
		dataUnitSize:    h.DataUnitSize,
		nUniformFlags:   h.NUniformFlags,
		records:         make([]*tileRecord, h.NTiles),
	}
	for i := range tt.records {
		tt.records[i] = newTileRecord(h.Bands, h.DataUnitSize, h.NUniformFlags)
	}
	return tt
}

// writeAll writes every record contiguously starting at headerBytes, used by
// create and flush. Defragment writes only the records it changes, through
// writeOne.
func (tt *tileTable) writeAll(io_ *ioState) error {
	buf := make([]byte, int64(len(tt.records))*int64(tt.tileHeaderBytes))
	for i, rec := range tt.records {
		encodeTileRecord(buf[int64(i)*int64(tt.tileHeaderBytes):], rec)
	}
	return io_.WriteAt(buf, tt.headerBytes)
}

// writeOne writes through the single record at tile index t.
func (tt *tileTable) writeOne(io_ *ioState, t int32) error {
	buf := make([]byte, tt.tileHeaderBytes)
	encodeTileRecord(buf, tt.records[t])
	return io_.WriteAt(buf, tileHeaderOffset(tt.headerBytes, tt.tileHeaderBytes, t))
}

// readTileTable loads every record from disk into memory.
func readTileTable(io_ *ioState, h *Header) (*tileTable, error) {
	tt := &tileTable{
		headerBytes:     int64(h.HeaderBytes),
		tileHeaderBytes: h.TileHeaderBytes,
		bands:           h.Bands,
		dataUnitSize:    h.DataUnitSize,
		nUniformFlags:   h.NUniformFlags,
		records:         make([]*tileRecord, h.NTiles),
	}
	buf := make([]byte, int64(h.NTiles)*int64(h.TileHeaderBytes))
	if err := io_.ReadAt(buf, tt.headerBytes); err != nil {
		return nil, err
	}
	for i := range tt.records {
		rec := decodeTileRecord(buf[int64(i)*int64(tt.tileHeaderBytes):], h.Bands, h.DataUnitSize, h.NUniformFlags)
		tt.records[i] = rec
	}
	return tt, nil
}

func (tt *tileTable) baseLocation() int64 {
	return tt.headerBytes + int64(len(tt.records))*int64(tt.tileHeaderBytes)
}
