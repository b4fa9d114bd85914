package sif

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustCreate(t *testing.T, opts CreateOptions) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sif")
	f, err := Create(path, opts)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f, path
}

func smallOptions() CreateOptions {
	return CreateOptions{
		Width: 4, Height: 4, Bands: 2,
		TileWidth: 2, TileHeight: 2,
		DataUnitSize: 1,
		Endian:       BigEndian,
	}
}

func TestCreate_DerivedHeaderFields(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	defer f.Close()

	require.EqualValues(t, 2, f.header.NTilesAcross)
	require.EqualValues(t, 4, f.header.NTiles) // 2x2 tiles across x down
	require.EqualValues(t, 8, f.header.TileBytes)
	require.EqualValues(t, 1, f.header.NUniformFlags)
	require.EqualValues(t, 2*1+1+4, f.header.TileHeaderBytes)
}

func TestCreate_AllTilesStartFullyUniform(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	defer f.Close()

	for _, rec := range f.tiles.records {
		require.EqualValues(t, -1, rec.BlockNum)
		require.True(t, allBandsUniform(rec.UniformFlags))
	}
}

func TestOpen_RejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.sif")
	f, err := Create(path, smallOptions())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Corrupt the magic bytes directly.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[4] = 'X'
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Open(path, true, BigEndian)
	require.Error(t, err)
}

func TestOpen_RejectsFutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.sif")
	f, err := Create(path, smallOptions())
	require.NoError(t, err)
	require.NoError(t, f.UseFileFormatVersion(SupportedVersion + 1))
	require.NoError(t, f.Close())

	_, err = Open(path, true, BigEndian)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeIncompatibleVersion, code)
}

func TestIsPossiblySIF(t *testing.T) {
	_, path := mustCreate(t, smallOptions())

	ok, err := IsPossiblySIF(path)
	require.NoError(t, err)
	require.True(t, ok)

	notSIF := filepath.Join(t.TempDir(), "not.sif")
	require.NoError(t, os.WriteFile(notSIF, []byte("plain text, no magic"), 0o644))
	ok, err = IsPossiblySIF(notSIF)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsPossiblySIF_AcceptsFutureVersion(t *testing.T) {
	// The probe only checks the magic and that the tile-header table can be
	// allocated; a version newer than this implementation understands must
	// still probe positive, even though Open rejects it.
	path := filepath.Join(t.TempDir(), "future-probe.sif")
	f, err := Create(path, smallOptions())
	require.NoError(t, err)
	require.NoError(t, f.UseFileFormatVersion(SupportedVersion+1))
	require.NoError(t, f.Close())

	ok, err := IsPossiblySIF(path)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = Open(path, true, BigEndian)
	require.Error(t, err)
}

func TestSliceIO_RejectsShortBuffers(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	defer f.Close()

	short := make([]byte, 2) // sliceBytes is 4
	err := f.GetTileSlice(0, 0, 0, short)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidBuffer, code)
	f.ClearErr()

	err = f.SetTileSlice(0, 0, 0, short)
	require.Error(t, err)
	code, ok = CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidBuffer, code)
}

func TestRoundTrip_SetGetRaster(t *testing.T) {
	opts := smallOptions()
	f, path := mustCreate(t, opts)

	band0 := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.NoError(t, f.SetRaster(band0, 0, 0, 4, 4, 0))
	require.NoError(t, f.Close())

	f2, err := Open(path, true, BigEndian)
	require.NoError(t, err)
	defer f2.Close()

	out := make([]byte, 16)
	require.NoError(t, f2.GetRaster(out, 0, 0, 4, 4, 0))
	require.Equal(t, band0, out)
}

func TestRoundTrip_SubRegion(t *testing.T) {
	f, path := mustCreate(t, smallOptions())
	full := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.NoError(t, f.SetRaster(full, 0, 0, 4, 4, 0))
	require.NoError(t, f.Close())

	f2, err := Open(path, true, BigEndian)
	require.NoError(t, err)
	defer f2.Close()

	// Read a 2x2 window that straddles all four tiles' corners.
	out := make([]byte, 4)
	require.NoError(t, f2.GetRaster(out, 1, 1, 2, 2, 0))
	require.Equal(t, []byte{6, 7, 10, 11}, out)
}

func TestUniformityCompression_FillTilesFreesAllBlocks(t *testing.T) {
	opts := smallOptions()
	opts.Consolidate = true
	f, path := mustCreate(t, opts)

	require.NoError(t, f.FillTiles(0, []byte{0x7F}))
	require.NoError(t, f.FillTiles(1, []byte{0x00}))
	require.NoError(t, f.Close())

	f2, err := Open(path, true, BigEndian)
	require.NoError(t, err)
	defer f2.Close()

	for _, b := range f2.BlockToTile() {
		require.EqualValues(t, -1, b)
	}
}

func TestUniformityIdempotence(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	defer f.Close()

	require.NoError(t, f.FillTileSlice(0, 0, 0, []byte{0x42}))
	require.EqualValues(t, -1, f.BlockNum(0, 0))

	require.NoError(t, f.FillTileSlice(0, 0, 0, []byte{0x42}))
	require.EqualValues(t, -1, f.BlockNum(0, 0))
}

func TestDemotion_UniformToBlockAndBack(t *testing.T) {
	opts := smallOptions()
	opts.Consolidate = true
	opts.IntrinsicWrite = true
	f, _ := mustCreate(t, opts)
	defer f.Close()

	require.EqualValues(t, -1, f.BlockNum(0, 0))

	nonUniform := []byte{1, 2, 3, 4}
	require.NoError(t, f.SetTileSlice(0, 0, 0, nonUniform))
	bn := f.BlockNum(0, 0)
	require.GreaterOrEqual(t, bn, int32(0))
	require.Equal(t, int32(0), f.blocks.blockToTile[bn])

	out := make([]byte, 4)
	require.NoError(t, f.GetTileSlice(0, 0, 0, out))
	require.Equal(t, nonUniform, out)

	uniform := []byte{9, 9, 9, 9}
	require.NoError(t, f.SetTileSlice(0, 0, 0, uniform))
	require.NoError(t, f.Flush())
	require.EqualValues(t, -1, f.BlockNum(0, 0))
	require.EqualValues(t, -1, f.blocks.blockToTile[bn])
}

func TestDefragment_Invariant(t *testing.T) {
	opts := smallOptions()
	f, _ := mustCreate(t, opts)
	defer f.Close()

	// Materialize tiles 1 and 3 only (in row-major order), leaving 0 and 2
	// uniform. First-fit gives them blocks 0 and 1; after defragment the
	// live blocks must still form the dense prefix [0, 2) in tile order.
	require.NoError(t, f.SetTileSlice(1, 0, 0, []byte{1, 2, 3, 4}))
	require.NoError(t, f.SetTileSlice(1, 1, 0, []byte{5, 6, 7, 8}))

	require.NoError(t, f.Defragment())

	b2t := f.BlockToTile()
	liveCount := 0
	for _, t := range b2t {
		if t != -1 {
			liveCount++
		}
	}
	require.Equal(t, 2, liveCount)
	for i := 0; i < liveCount; i++ {
		require.NotEqual(t, int32(-1), b2t[i])
	}
	for i := liveCount; i < len(b2t); i++ {
		require.EqualValues(t, -1, b2t[i])
	}
	// tiles in increasing tile-index order
	require.True(t, b2t[0] < b2t[1] || liveCount < 2)
}

func TestDefragment_TruncatesAfterLastLiveBlock(t *testing.T) {
	f, path := mustCreate(t, smallOptions())

	// Materialize two tiles, then make the first fully uniform again so its
	// block frees and a hole opens at block 0.
	require.NoError(t, f.SetTileSlice(0, 0, 0, []byte{1, 2, 3, 4}))
	require.NoError(t, f.SetTileSlice(1, 0, 0, []byte{5, 6, 7, 8}))
	require.NoError(t, f.FillTileSlice(0, 0, 0, []byte{0x11}))
	require.EqualValues(t, -1, f.BlockNum(0, 0))

	require.NoError(t, f.Defragment())
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)

	f2, err := Open(path, true, BigEndian)
	require.NoError(t, err)
	defer f2.Close()

	// One live block remains, no metadata entries.
	want := f2.tiles.baseLocation() + int64(f2.header.TileBytes)
	require.Equal(t, want, info.Size())
	require.EqualValues(t, 1, f2.blocks.blockToTile[0]) // block 0 now owned by tile 1
	require.EqualValues(t, -1, f2.blocks.blockToTile[1])
}

func TestStickyError_ShortCircuitsUntilCleared(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	defer f.Close()

	out := make([]byte, 4)
	err := f.GetTileSlice(0, 0, 9, out)
	require.Error(t, err)
	require.Error(t, f.Err())

	// While the sticky field is set, even a well-formed call short-circuits.
	err = f.GetTileSlice(0, 0, 0, out)
	require.Error(t, err)

	f.ClearErr()
	require.NoError(t, f.Err())
	require.NoError(t, f.GetTileSlice(0, 0, 0, out))
}

func TestMetadata_RoundTrip(t *testing.T) {
	f, path := mustCreate(t, smallOptions())
	require.NoError(t, f.SetProjection(`PROJCS["WGS84"]`))
	require.NoError(t, f.SetMetaData("raw", []byte{0x00, 0xFF, 0x00}))
	require.NoError(t, f.Close())

	f2, err := Open(path, true, BigEndian)
	require.NoError(t, err)
	defer f2.Close()

	require.Equal(t, `PROJCS["WGS84"]`, f2.Projection())

	raw, err := f2.GetMetaDataBinary("raw")
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xFF, 0x00}, raw)

	// The value ends in a NUL byte, so it also reads back as a string: the
	// bytes before that trailing NUL.
	s, err := f2.GetMetaData("raw")
	require.NoError(t, err)
	require.Equal(t, "\x00\xFF", s)
}

func TestMetadata_Overwrite(t *testing.T) {
	f, path := mustCreate(t, smallOptions())
	require.NoError(t, f.SetMetaData("k", []byte("v1")))
	require.NoError(t, f.SetMetaData("k", []byte("v2-longer")))
	require.NoError(t, f.Close())

	f2, err := Open(path, true, BigEndian)
	require.NoError(t, err)
	defer f2.Close()

	v, err := f2.GetMetaDataBinary("k")
	require.NoError(t, err)
	require.Equal(t, []byte("v2-longer"), v)
}

func TestMetadata_KeysAndRemove(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	defer f.Close()

	require.NoError(t, f.SetMetaData("a", []byte("1")))
	require.NoError(t, f.SetMetaData("b", []byte("2")))
	require.Equal(t, 2, f.MetaDataLen())
	require.ElementsMatch(t, []string{"a", "b"}, f.MetaDataKeys())

	require.True(t, f.RemoveMetaData("a"))
	require.Equal(t, 1, f.MetaDataLen())
	require.False(t, f.RemoveMetaData("a"))
}

func TestBoundary_OnePixelImage(t *testing.T) {
	opts := CreateOptions{
		Width: 1, Height: 1, Bands: 1,
		TileWidth: 1, TileHeight: 1,
		DataUnitSize: 1,
	}
	f, path := mustCreate(t, opts)
	require.NoError(t, f.SetRaster([]byte{0xAB}, 0, 0, 1, 1, 0))
	require.NoError(t, f.Close())

	f2, err := Open(path, true, BigEndian)
	require.NoError(t, err)
	defer f2.Close()

	out := make([]byte, 1)
	require.NoError(t, f2.GetRaster(out, 0, 0, 1, 1, 0))
	require.Equal(t, []byte{0xAB}, out)
}

func TestBoundary_EdgeTilePaddingIgnoredForUniformity(t *testing.T) {
	// 3x3 image, 2x2 tiles: the bottom-right tile has a 1x1 in-image extent.
	opts := CreateOptions{
		Width: 3, Height: 3, Bands: 1,
		TileWidth: 2, TileHeight: 2,
		DataUnitSize: 1,
		IntrinsicWrite: true,
	}
	f, _ := mustCreate(t, opts)
	defer f.Close()

	// Tile (1,1) covers image pixels (2,2) only; pad bytes (2,3)/(3,2)/(3,3)
	// are out of image. A slice with a distinct pad value should still be
	// detected uniform since only the in-image pixel matters.
	slice := []byte{0x11, 0x99, 0x99, 0x99} // row-major tw=2,th=2
	require.NoError(t, f.SetTileSlice(1, 1, 0, slice))
	require.EqualValues(t, -1, f.BlockNum(1, 1))
}

func TestErrorCodes_InvalidBand(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	defer f.Close()

	out := make([]byte, 4)
	err := f.GetTileSlice(0, 0, 5, out)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidBand, code)
}

func TestErrorCodes_InvalidTileNumber(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	defer f.Close()

	out := make([]byte, 4)
	err := f.GetTileSlice(99, 99, 0, out)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidTileNumber, code)

	err = f.SetTileSlice(99, 99, 0, []byte{1, 2, 3, 4})
	require.Error(t, err)
	code, ok = CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidTileNumber, code)
}

func TestReadOnly_RejectsWrites(t *testing.T) {
	_, path := mustCreate(t, smallOptions())

	f, err := Open(path, true, BigEndian)
	require.NoError(t, err)
	defer f.Close()

	err = f.SetRaster(make([]byte, 16), 0, 0, 4, 4, 0)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidFileMode, code)
}

func TestCreateCopy(t *testing.T) {
	f, _ := mustCreate(t, smallOptions())
	require.NoError(t, f.SetMetaData("k", []byte("v")))
	require.NoError(t, f.SetRaster([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, 0, 0, 4, 4, 0))

	copyPath := filepath.Join(t.TempDir(), "copy.sif")
	f2, err := CreateCopy(f, copyPath)
	require.NoError(t, err)
	defer f2.Close()
	defer f.Close()

	require.Equal(t, f.Width(), f2.Width())
	v, err := f2.GetMetaDataBinary("k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}
