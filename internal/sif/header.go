package sif

import "bytes"

// MagicNumber is the 8-byte literal that identifies a SIF file, written
// immediately after header_bytes at offset 4.
const MagicNumber = "!**SIF**"

// SupportedVersion is the highest on-disk format version this implementation
// understands. Files declaring a higher version fail to open with
// CodeIncompatibleVersion.
const SupportedVersion int32 = 2

// headerInts is the count of 32-bit big-endian integer fields following the
// magic and version.
const headerInts = 16

// headerFixedBytes is the byte size of header_bytes + magic + version +
// the 16 trailing ints + 6 affine doubles. header_bytes itself records this
// value, so a reader can locate the tile-header table from it.
const headerFixedBytes = 4 /*header_bytes*/ + 8 /*magic*/ + 4 /*version*/ + headerInts*4 + 6*8

// Header is the fixed, rarely-mutated descriptor of a SIF image.
// Width/height/bands/tile dimensions and data_unit_size are set once at
// create time; Consolidate/Defragment/IntrinsicWrite are the mutable policy
// fields persisted inside the header so a file can dictate its own
// close-time behaviour on the next open.
type Header struct {
	HeaderBytes int32

	Version int32

	Width, Height   int32
	Bands           int32
	NKeys           int32
	NTiles          int32
	TileWidth       int32
	TileHeight      int32
	TileBytes       int32
	NTilesAcross    int32
	DataUnitSize    int32
	UserDataType    int32
	Defragment      int32
	Consolidate     int32
	IntrinsicWrite  int32
	TileHeaderBytes int32
	NUniformFlags   int32

	AffineGeoTransform [6]float64

	// UseFileVersion selects the wire version written on the next flush.
	// It may differ from Version (the version the file was opened/created
	// with) only via UseFileFormatVersion, which is how the version-1
	// double-endian quirk gets exercised end to end.
	UseFileVersion int32
}

// nTilesDown derives the vertical tile count; not stored, always recomputed.
func (h *Header) nTilesDown() int32 {
	return ceilDiv(h.Height, h.TileHeight)
}

func ceilDiv(a, b int32) int32 {
	return (a + b - 1) / b
}

// newHeader computes every derived field (n_tiles_across, n_tiles,
// tile_bytes, n_uniform_flags, tile_header_bytes) from the primary
// dimensions.
func newHeader(width, height, bands, tileWidth, tileHeight, dataUnitSize, userDataType int32) *Header {
	h := &Header{
		Version:        SupportedVersion,
		UseFileVersion: SupportedVersion,
		Width:          width,
		Height:         height,
		Bands:          bands,
		TileWidth:      tileWidth,
		TileHeight:     tileHeight,
		DataUnitSize:   dataUnitSize,
		UserDataType:   userDataType,
		AffineGeoTransform: [6]float64{0, 1, 0, 0, 0, 1},
	}
	nTilesAcross := ceilDiv(width, tileWidth)
	nTilesDown := ceilDiv(height, tileHeight)
	h.NTilesAcross = nTilesAcross
	h.NTiles = nTilesAcross * nTilesDown
	h.TileBytes = tileWidth * tileHeight * bands * dataUnitSize
	h.NUniformFlags = ceilDiv(bands, 8)
	h.TileHeaderBytes = bands*dataUnitSize + h.NUniformFlags + 4
	h.HeaderBytes = headerFixedBytes
	return h
}

// writeHeader serializes h to offset 0. The six affine-transform doubles
// are written big-endian for use_file_version >= 2, or host-endian
// (unswapped) for version 1; rewriting a version-1 file must keep the
// version-1 layout.
func writeHeader(io_ *ioState, h *Header) error {
	buf := make([]byte, headerFixedBytes)
	off := 0
	putInt32BE(buf[off:], h.HeaderBytes)
	off += 4
	copy(buf[off:off+8], []byte(MagicNumber))
	off += 8
	putInt32BE(buf[off:], h.UseFileVersion)
	off += 4

	ints := []int32{
		h.Width, h.Height, h.Bands, h.NKeys, h.NTiles,
		h.TileWidth, h.TileHeight, h.TileBytes, h.NTilesAcross,
		h.DataUnitSize, h.UserDataType, h.Defragment, h.Consolidate,
		h.IntrinsicWrite, h.TileHeaderBytes, h.NUniformFlags,
	}
	for _, v := range ints {
		putInt32BE(buf[off:], v)
		off += 4
	}

	if h.UseFileVersion >= 2 {
		for _, v := range h.AffineGeoTransform {
			putFloat64BE(buf[off:], v)
			off += 8
		}
	} else {
		for _, v := range h.AffineGeoTransform {
			putFloat64Host(buf[off:], v)
			off += 8
		}
	}

	return io_.WriteAt(buf, 0)
}

// readHeader parses the header at offset 0, validating the magic. Version
// acceptance is the caller's concern: Open rejects versions newer than
// SupportedVersion, while the probe deliberately does not.
func readHeader(io_ *ioState) (*Header, error) {
	prefix := make([]byte, 16) // header_bytes(4) + magic(8) + version(4)
	if err := io_.ReadAt(prefix, 0); err != nil {
		return nil, err
	}
	h := &Header{}
	h.HeaderBytes = getInt32BE(prefix[0:4])
	magic := prefix[4:12]
	if !bytes.Equal(magic, []byte(MagicNumber)) {
		return nil, io_.setErr(newErr("header.readHeader", CodeNullHeader, nil))
	}
	h.Version = getInt32BE(prefix[12:16])
	h.UseFileVersion = h.Version

	rest := make([]byte, headerInts*4+6*8)
	if err := io_.ReadAt(rest, 16); err != nil {
		return nil, err
	}
	off := 0
	fields := []*int32{
		&h.Width, &h.Height, &h.Bands, &h.NKeys, &h.NTiles,
		&h.TileWidth, &h.TileHeight, &h.TileBytes, &h.NTilesAcross,
		&h.DataUnitSize, &h.UserDataType, &h.Defragment, &h.Consolidate,
		&h.IntrinsicWrite, &h.TileHeaderBytes, &h.NUniformFlags,
	}
	for _, f := range fields {
		*f = getInt32BE(rest[off:])
		off += 4
	}

	if h.Version >= 2 {
		for i := range h.AffineGeoTransform {
			h.AffineGeoTransform[i] = getFloat64BE(rest[off:])
			off += 8
		}
	} else {
		for i := range h.AffineGeoTransform {
			h.AffineGeoTransform[i] = getFloat64Host(rest[off:])
			off += 8
		}
	}

	return h, nil
}
