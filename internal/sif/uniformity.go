package sif

// Uniformity scans and tests. These hold no state of their own beyond the
// owning file's table, block map, and byte I/O; they are a set of
// operations on *File, factored out for readability.

// tileExtent returns the in-image pixel extent of tile (tx, ty): the full
// tile_width x tile_height except at the right/bottom edge, where it clips
// to what remains of the image.
func tileExtent(h *Header, tx, ty int32) (extW, extH int32) {
	extW = h.TileWidth
	if rem := h.Width - tx*h.TileWidth; rem < extW {
		extW = rem
	}
	extH = h.TileHeight
	if rem := h.Height - ty*h.TileHeight; rem < extH {
		extH = rem
	}
	return
}

// isSliceShallowUniform is the shallow slice test: true iff bit b of tile
// t's uniform_flags is set, in which case out receives the stored uniform
// pixel value. No block is read.
func (f *File) isSliceShallowUniform(t, b int32, out []byte) bool {
	rec := f.tiles.records[t]
	if !uniformBit(rec.UniformFlags, b) {
		return false
	}
	copy(out, rec.UniformPixelValues[b*f.header.DataUnitSize:(b+1)*f.header.DataUnitSize])
	return true
}

// IsShallowUniform is the shallow window test: it decomposes
// [x, x+w) x [y, y+h) of band b into the tiles it covers and
// reports true iff every covered tile-slice is shallow uniform (per
// isSliceShallowUniform) and shares the same uniform pixel value as the
// first tile's slice. No data block is ever read. The returned value is
// adapted to host byte order, matching GetTileSlice/GetRaster.
func (f *File) IsShallowUniform(x, y, w, h, b int32) (bool, []byte, error) {
	if err := f.checkOpen(); err != nil {
		return false, nil, err
	}
	if err := f.validateBand(b); err != nil {
		return false, nil, err
	}
	if x < 0 || y < 0 || w <= 0 || h <= 0 {
		return false, nil, f.fail("sif.IsShallowUniform", CodeInvalidCoord)
	}
	if x+w > f.header.Width || y+h > f.header.Height {
		return false, nil, f.fail("sif.IsShallowUniform", CodeInvalidRegionSize)
	}

	tw, th := f.header.TileWidth, f.header.TileHeight
	tnx1, tnx2 := x/tw, (x+w-1)/tw
	tny1, tny2 := y/th, (y+h-1)/th

	dus := int(f.header.DataUnitSize)
	first := make([]byte, dus)
	current := make([]byte, dus)
	haveFirst := false

	for ty := tny1; ty <= tny2; ty++ {
		for tx := tnx1; tx <= tnx2; tx++ {
			t := f.tileIndex(tx, ty)
			if !f.isSliceShallowUniform(t, b, current) {
				return false, nil, nil
			}
			if !haveFirst {
				copy(first, current)
				haveFirst = true
				continue
			}
			if !bytesEqual(current, first) {
				return false, nil, nil
			}
		}
	}

	adaptEndian(first, dus, f.endian)
	return true, first, nil
}

// scanTile performs the deep uniformity scan: it reads the tile's block if
// it has one, and for each band that is not already marked
// uniform, tests whether every in-image data unit equals the first. A band
// that turns out uniform has its bit set and its value captured; if every
// band ends up uniform, the tile's block is freed.
func (f *File) scanTile(t int32) error {
	rec := f.tiles.records[t]
	if rec.BlockNum < 0 {
		return nil // already fully uniform, nothing to scan
	}

	tx, ty := t%f.header.NTilesAcross, t/f.header.NTilesAcross
	extW, extH := tileExtent(f.header, tx, ty)

	buf, err := f.getTileBlock(rec.BlockNum)
	if err != nil {
		return err
	}

	dus := int(f.header.DataUnitSize)
	tw := int(f.header.TileWidth)
	bands := int(f.header.Bands)

	for b := 0; b < bands; b++ {
		if uniformBit(rec.UniformFlags, int32(b)) {
			continue
		}
		bandOff := b * tw * int(f.header.TileHeight) * dus
		uniform, value := isBandUniform(buf[bandOff:bandOff+tw*int(f.header.TileHeight)*dus], tw, int(extW), int(extH), dus)
		if uniform {
			setUniformBit(rec.UniformFlags, int32(b), true)
			copy(rec.UniformPixelValues[b*dus:(b+1)*dus], value)
		}
	}
	fixTrailingPadding(rec.UniformFlags, f.header.Bands)

	if allBandsUniform(rec.UniformFlags) {
		f.blocks.free(t)
		rec.BlockNum = -1
	}
	return nil
}

// isBandUniform tests a single band's slice buffer (stride tw data units
// per row) for uniformity across only the in-image extent (extW x extH),
// ignoring right/bottom padding columns and rows. Each data unit is
// compared byte-for-byte against the first.
func isBandUniform(slice []byte, stride, extW, extH, dus int) (bool, []byte) {
	first := slice[0:dus]
	for row := 0; row < extH; row++ {
		rowOff := row * stride * dus
		for col := 0; col < extW; col++ {
			off := rowOff + col*dus
			if !bytesEqual(slice[off:off+dus], first) {
				return false, nil
			}
		}
	}
	return true, append([]byte(nil), first...)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// markUniformTiles visits only tiles with a block and the in-memory Dirty
// flag set, deep-scans them, and clears Dirty afterward. Consolidation only
// runs this when the file is read-write and the Consolidate policy flag is
// set.
func (f *File) markUniformTiles() error {
	for t, rec := range f.tiles.records {
		if rec.BlockNum == -1 || !rec.Dirty {
			continue
		}
		if err := f.scanTile(int32(t)); err != nil {
			return err
		}
		rec.Dirty = false
		if err := f.tiles.writeOne(f.io, int32(t)); err != nil {
			return err
		}
	}
	return nil
}
