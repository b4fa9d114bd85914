package sif

import (
	"io"
	"os"
)

// CreateOptions configures a new SIF file at create time. There is no
// config-file format; every field arrives as an explicit struct value.
type CreateOptions struct {
	Width, Height         int32
	Bands                 int32
	TileWidth, TileHeight int32
	DataUnitSize          int32
	UserDataType          int32
	Endian                Endian
	Consolidate           bool
	Defragment            bool
	IntrinsicWrite        bool
}

// File is an open SIF handle. It is single-owner and single-threaded: no
// method is safe for concurrent use from multiple goroutines, and distinct
// handles over distinct files never coordinate with each other.
type File struct {
	path     string
	io       *ioState
	header   *Header
	tiles    *tileTable
	blocks   *blockMap
	meta     *metaStore
	readOnly bool
	closed   bool

	// lastErr is the sticky per-handle error field: once set, it holds the
	// first failure recorded since the last ClearErr, so callers following a check-then-clear
	// convention (or the probe/close paths) can inspect it without
	// threading an error through every call site.
	lastErr error

	scratchA []byte
	scratchB []byte
	endianBuf endianScratch
	endian   Endian
}

// Err returns the sticky error recorded by the first failing operation
// since the last ClearErr, or nil; later failures do not replace it. It does not clear the field; callers that want to
// resume normal operation after inspecting it must call ClearErr.
func (f *File) Err() error { return f.lastErr }

// ClearErr resets the sticky error field.
func (f *File) ClearErr() { f.lastErr = nil; f.io.err = nil }

func (f *File) fail(op string, code Code) error {
	e := newErr(op, code, nil)
	if f.lastErr == nil {
		f.lastErr = e
	}
	return e
}

func (f *File) checkOpen() error {
	if f.lastErr != nil {
		return f.lastErr
	}
	if f.closed {
		return f.fail("sif.checkOpen", CodeNullFile)
	}
	if f.io.err != nil {
		f.lastErr = f.io.err
		return f.lastErr
	}
	return nil
}

func (f *File) validateBand(b int32) error {
	if b < 0 || b >= f.header.Bands {
		return f.fail("sif.validateBand", CodeInvalidBand)
	}
	return nil
}

func (f *File) validateTileCoord(tx, ty int32) error {
	if tx < 0 || ty < 0 || tx >= f.header.NTilesAcross || ty >= f.header.nTilesDown() {
		return f.fail("sif.validateTileCoord", CodeInvalidTileNumber)
	}
	return nil
}

// Create makes a new SIF file at path with the given options. It enforces
// positive dimensions, writes the header and an all-uniform, all-zero
// tile-header table, and allocates no blocks.
func Create(path string, opts CreateOptions) (*File, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.Bands <= 0 ||
		opts.TileWidth <= 0 || opts.TileHeight <= 0 || opts.DataUnitSize <= 0 {
		return nil, newErr("sif.Create", CodeInvalidTileSize, nil)
	}
	if path == "" {
		return nil, newErr("sif.Create", CodeNullFile, nil)
	}

	osf, err := os.Create(path)
	if err != nil {
		return nil, newErr("sif.Create", CodeWrite, err)
	}

	h := newHeader(opts.Width, opts.Height, opts.Bands, opts.TileWidth, opts.TileHeight, opts.DataUnitSize, opts.UserDataType)
	if opts.Consolidate {
		h.Consolidate = 1
	}
	if opts.Defragment {
		h.Defragment = 1
	}
	if opts.IntrinsicWrite {
		h.IntrinsicWrite = 1
	}

	f := &File{
		path:   path,
		io:     &ioState{f: osf},
		header: h,
		tiles:  newTileTable(h),
		blocks: newBlockMap(h.NTiles),
		meta:   newMetaStore(),
		endian: opts.Endian,
	}
	f.scratchA = make([]byte, h.TileBytes)
	f.scratchB = make([]byte, h.TileBytes)

	if err := writeHeader(f.io, f.header); err != nil {
		osf.Close()
		return nil, err
	}
	if err := f.tiles.writeAll(f.io); err != nil {
		osf.Close()
		return nil, err
	}
	if err := writeMetaStore(f.io, f.tiles.baseLocation(), f.meta); err != nil {
		osf.Close()
		return nil, err
	}

	return f, nil
}

// Open opens an existing SIF file read-only or read-write. It rejects
// mismatched magic and unknown future versions, reconstructs the block map
// by scanning tile records, and reads the metadata region. On structural
// failure the returned handle is nil.
//
// endian must match the byte order the file's pixel data was declared with
// at create time (CreateOptions.Endian); the header layout has no dedicated
// on-disk field for it, so deployments convey it out of band the way the
// "simple"/"gdal" data-type convention is conveyed via the _sif_agree
// metadata key. Callers that only need structural
// information (header, tile table, metadata, not pixel fidelity) can pass
// either value, since it only affects GetTileSlice/SetTileSlice byte order.
func Open(path string, readOnly bool, endian Endian) (*File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	osf, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, newErr("sif.Open", CodeNullFile, err)
	}

	io_ := &ioState{f: osf}
	h, err := readHeader(io_)
	if err != nil {
		osf.Close()
		return nil, err
	}
	if h.Version > SupportedVersion {
		osf.Close()
		return nil, newErr("sif.Open", CodeIncompatibleVersion, nil)
	}

	tt, err := readTileTable(io_, h)
	if err != nil {
		osf.Close()
		return nil, err
	}
	bm := rebuildBlockMap(tt)

	last := bm.lastUsedBlock()
	metaOff := blockOffset(tt.baseLocation(), h.TileBytes, last+1)
	m, err := readMetaStore(io_, metaOff, h.NKeys)
	if err != nil {
		osf.Close()
		return nil, err
	}

	f := &File{
		path:     path,
		io:       io_,
		header:   h,
		tiles:    tt,
		blocks:   bm,
		meta:     m,
		readOnly: readOnly,
		endian:   endian,
	}
	f.scratchA = make([]byte, h.TileBytes)
	f.scratchB = make([]byte, h.TileBytes)
	return f, nil
}

// IsPossiblySIF opens path read-only and reports whether it looks like a
// SIF file: magic matches and the tile-header table can be allocated and
// read. A version newer than SupportedVersion does not disqualify the file;
// only Open rejects it. It never returns a handle.
func IsPossiblySIF(path string) (bool, error) {
	osf, err := os.Open(path)
	if err != nil {
		return false, nil
	}
	defer osf.Close()

	io_ := &ioState{f: osf}
	h, err := readHeader(io_)
	if err != nil {
		return false, nil
	}
	if h.NTiles < 0 || h.TileHeaderBytes <= 0 {
		return false, nil
	}
	if _, err := readTileTable(io_, h); err != nil {
		return false, nil
	}
	return true, nil
}

// Flush rewrites the header, tile-header table, and metadata for a
// read-write handle; runs consolidate if the policy flag is set, then
// defragment if its flag is set, then flushes the underlying file
// descriptor.
func (f *File) Flush() error {
	if f.readOnly {
		return nil
	}
	if err := writeHeader(f.io, f.header); err != nil {
		return err
	}
	if err := f.tiles.writeAll(f.io); err != nil {
		return err
	}

	if f.header.Consolidate != 0 {
		if err := f.markUniformTiles(); err != nil {
			return err
		}
	}
	if f.header.Defragment != 0 {
		if err := f.Defragment(); err != nil {
			return err
		}
	}

	f.header.NKeys = int32(f.meta.len())
	if err := writeHeader(f.io, f.header); err != nil {
		return err
	}

	last := f.blocks.lastUsedBlock()
	metaOff := blockOffset(f.tiles.baseLocation(), f.header.TileBytes, last+1)
	if err := writeMetaStore(f.io, metaOff, f.meta); err != nil {
		return err
	}

	return f.io.Flush()
}

// Close flushes and releases in-memory state. A failure during flush is
// reported, but the underlying file descriptor is always released.
func (f *File) Close() error {
	flushErr := f.Flush()
	closeErr := f.io.f.Close()
	f.closed = true
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return newErr("sif.Close", CodeWrite, closeErr)
	}
	return nil
}

// --- policy flag accessors ---

func (f *File) Consolidate() bool    { return f.header.Consolidate != 0 }
func (f *File) SetConsolidate(v bool) {
	f.header.Consolidate = boolToInt32(v)
}

func (f *File) DefragmentOnFlush() bool { return f.header.Defragment != 0 }
func (f *File) SetDefragmentOnFlush(v bool) {
	f.header.Defragment = boolToInt32(v)
}

func (f *File) IntrinsicWrite() bool { return f.header.IntrinsicWrite != 0 }
func (f *File) SetIntrinsicWrite(v bool) {
	f.header.IntrinsicWrite = boolToInt32(v)
}

func boolToInt32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

// UserDataType returns the opaque integer tag stored for the client,
// unused by the engine itself.
func (f *File) UserDataType() int32 { return f.header.UserDataType }
func (f *File) SetUserDataType(v int32) { f.header.UserDataType = v }

// AffineGeoTransform returns the six-coefficient affine transform,
// defaulting to the identity mapping {0,1,0,0,0,1} on newly created files.
func (f *File) AffineGeoTransform() [6]float64 { return f.header.AffineGeoTransform }
func (f *File) SetAffineGeoTransform(t [6]float64) { f.header.AffineGeoTransform = t }

// UseFileFormatVersion pins the wire version written on the next flush. It
// is how the version-1 double-endian quirk gets exercised end to end.
func (f *File) UseFileFormatVersion(v int32) error {
	if v < 1 {
		return f.fail("sif.UseFileFormatVersion", CodeCannotWriteVersion)
	}
	f.header.UseFileVersion = v
	return nil
}

// Width, Height, Bands, TileWidth, TileHeight, DataUnitSize report the fixed
// image descriptor fields established at create time.
func (f *File) Width() int32        { return f.header.Width }
func (f *File) Height() int32       { return f.header.Height }
func (f *File) Bands() int32        { return f.header.Bands }
func (f *File) TileWidth() int32    { return f.header.TileWidth }
func (f *File) TileHeight() int32   { return f.header.TileHeight }
func (f *File) DataUnitSize() int32 { return f.header.DataUnitSize }
func (f *File) Version() int32      { return f.header.Version }

// BlockNum reports the current block index of tile (tx, ty), or -1.
func (f *File) BlockNum(tx, ty int32) int32 {
	return f.tiles.records[f.tileIndex(tx, ty)].BlockNum
}

// BlockToTile exposes the allocator's inverse map for inspection/testing.
func (f *File) BlockToTile() []int32 {
	out := make([]int32, len(f.blocks.blockToTile))
	copy(out, f.blocks.blockToTile)
	return out
}

// --- metadata convenience surface ---

// SetMetaData stores value under key, replacing any existing value.
func (f *File) SetMetaData(key string, value []byte) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if key == "" {
		return f.fail("sif.SetMetaData", CodeMetaDataKeyMissing)
	}
	f.meta.set([]byte(key), value)
	return nil
}

// GetMetaDataBinary returns the raw bytes stored under key.
func (f *File) GetMetaDataBinary(key string) ([]byte, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	e := f.meta.get([]byte(key))
	if e == nil {
		return nil, f.fail("sif.GetMetaDataBinary", CodeMetaDataKeyMissing)
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// GetMetaData returns the value under key as a string, failing with
// CodeMetaDataValueInvalid when the stored value is not NUL-terminated.
// This is how callers distinguish binary-only entries from C-style strings.
func (f *File) GetMetaData(key string) (string, error) {
	if err := f.checkOpen(); err != nil {
		return "", err
	}
	e := f.meta.get([]byte(key))
	if e == nil {
		return "", f.fail("sif.GetMetaData", CodeMetaDataKeyMissing)
	}
	if len(e.value) == 0 || e.value[len(e.value)-1] != 0 {
		return "", f.fail("sif.GetMetaData", CodeMetaDataValueInvalid)
	}
	return string(e.value[:len(e.value)-1]), nil
}

func (f *File) MetaDataKeys() []string { return f.meta.keys() }
func (f *File) MetaDataLen() int       { return f.meta.len() }
func (f *File) RemoveMetaData(key string) bool {
	return f.meta.remove([]byte(key))
}

const metaProjectionKey = "_sif_proj"
const metaAgreementKey = "_sif_agree"

// Projection returns the OpenGIS WKT projection string stored under the
// predefined _sif_proj key, or "" if absent. Absence is not an error and
// does not touch the sticky error field.
func (f *File) Projection() string {
	return f.metaString(metaProjectionKey)
}

func (f *File) SetProjection(wkt string) error {
	return f.SetMetaData(metaProjectionKey, append([]byte(wkt), 0))
}

// Agreement returns the data-type convention ("simple" or "gdal") stored
// under the predefined _sif_agree key, or "" if absent.
func (f *File) Agreement() string {
	return f.metaString(metaAgreementKey)
}

// metaString reads a predefined key directly from the in-memory store,
// mapping absence (or a non-string value) to "" without recording an error.
func (f *File) metaString(key string) string {
	e := f.meta.get([]byte(key))
	if e == nil || len(e.value) == 0 || e.value[len(e.value)-1] != 0 {
		return ""
	}
	return string(e.value[:len(e.value)-1])
}

func (f *File) SetAgreement(a string) error {
	return f.SetMetaData(metaAgreementKey, append([]byte(a), 0))
}

// CreateCopy flushes src, then stream-copies its on-disk byte range into a
// freshly created file at path and reopens it read-write.
func CreateCopy(src *File, path string) (*File, error) {
	if err := src.Flush(); err != nil {
		return nil, err
	}
	size, err := src.io.Size()
	if err != nil {
		return nil, err
	}

	dst, err := os.Create(path)
	if err != nil {
		return nil, newErr("sif.CreateCopy", CodeWrite, err)
	}

	if _, err := src.io.f.Seek(0, io.SeekStart); err != nil {
		dst.Close()
		return nil, newErr("sif.CreateCopy", CodeSeek, err)
	}
	if _, err := io.CopyN(dst, src.io.f, size); err != nil {
		dst.Close()
		return nil, newErr("sif.CreateCopy", CodeWrite, err)
	}
	dst.Close()

	return Open(path, false, src.endian)
}
