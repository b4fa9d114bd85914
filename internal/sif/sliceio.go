package sif

// unitsPerSlice is the number of data units in a single band's slice of a
// tile: tile_width * tile_height.
func (f *File) unitsPerSlice() int32 {
	return f.header.TileWidth * f.header.TileHeight
}

func (f *File) sliceBytes() int32 {
	return f.unitsPerSlice() * f.header.DataUnitSize
}

// getTileBlock reads every band's slice of block bn into one tile_bytes
// buffer, used to assemble a full tile prior to a deep scan.
func (f *File) getTileBlock(bn int32) ([]byte, error) {
	buf := make([]byte, f.header.TileBytes)
	off := blockOffset(f.tiles.baseLocation(), f.header.TileBytes, bn)
	if err := f.io.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *File) tileIndex(tx, ty int32) int32 {
	return ty*f.header.NTilesAcross + tx
}

// GetTileSlice reads band b of tile (tx, ty) into out, which must be at
// least sliceBytes() long. If the slice is shallow uniform the stored value
// is replicated across out without touching the data region; otherwise the
// bytes are read from the tile's block.
func (f *File) GetTileSlice(tx, ty, b int32, out []byte) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if err := f.validateBand(b); err != nil {
		return err
	}
	if err := f.validateTileCoord(tx, ty); err != nil {
		return err
	}
	if int32(len(out)) < f.sliceBytes() {
		return f.fail("sif.GetTileSlice", CodeInvalidBuffer)
	}
	t := f.tileIndex(tx, ty)
	rec := f.tiles.records[t]
	dus := int(f.header.DataUnitSize)

	if uniformBit(rec.UniformFlags, b) {
		// uniform_pixel_values is persisted in the file's declared pixel
		// byte order; adapt a copy to host order before replicating it.
		value := append([]byte(nil), rec.UniformPixelValues[int(b)*dus:int(b+1)*dus]...)
		adaptEndian(value, dus, f.endian)
		fillRepeating(out, value, int(f.unitsPerSlice()))
		return nil
	}

	off := blockOffset(f.tiles.baseLocation(), f.header.TileBytes, rec.BlockNum) +
		int64(b)*int64(f.sliceBytes())
	if err := f.io.ReadAt(out[:f.sliceBytes()], off); err != nil {
		return err
	}
	adaptEndian(out[:f.sliceBytes()], dus, f.endian)
	return nil
}

func fillRepeating(out []byte, unit []byte, count int) {
	dus := len(unit)
	if dus == 1 {
		for i := 0; i < count; i++ {
			out[i] = unit[0]
		}
		return
	}
	for i := 0; i < count; i++ {
		copy(out[i*dus:(i+1)*dus], unit)
	}
}

// isUniformExtentSlice reports whether src, taken as a tile_width x
// tile_height slice of data units, is byte-identical across its in-image
// extent only; right/bottom padding never affects the verdict. Returns the
// common value when true.
func isUniformExtentSlice(src []byte, h *Header, tx, ty int32) (bool, []byte) {
	extW, extH := tileExtent(h, tx, ty)
	dus := int(h.DataUnitSize)
	tw := int(h.TileWidth)
	return isBandUniform(src, tw, int(extW), int(extH), dus)
}

// SetTileSlice writes band b of tile (tx, ty) from src (sliceBytes() long).
// When IntrinsicWrite is enabled and src is uniform across the tile's
// in-image extent, the value is stored directly in the tile header with no
// block touched; otherwise the tile is materialized (allocating a block on
// first write) and the slice is written through.
func (f *File) SetTileSlice(tx, ty, b int32, src []byte) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.readOnly {
		return f.fail("sif.SetTileSlice", CodeInvalidFileMode)
	}
	if err := f.validateBand(b); err != nil {
		return err
	}
	if err := f.validateTileCoord(tx, ty); err != nil {
		return err
	}
	if int32(len(src)) < f.sliceBytes() {
		return f.fail("sif.SetTileSlice", CodeInvalidBuffer)
	}

	t := f.tileIndex(tx, ty)
	rec := f.tiles.records[t]

	dus := int(f.header.DataUnitSize)

	if f.header.IntrinsicWrite != 0 {
		// Uniformity is a byte-pattern property: comparing host-order units
		// finds exactly the same uniform/non-uniform verdict as comparing
		// file-order units, since the same byte-order transform is applied
		// to every unit. Only the captured value needs converting before
		// it is persisted.
		if uniform, value := isUniformExtentSlice(src, f.header, tx, ty); uniform {
			adaptEndian(value, dus, f.endian)
			copy(rec.UniformPixelValues[int(b)*dus:int(b+1)*dus], value)
			setUniformBit(rec.UniformFlags, b, true)
			fixTrailingPadding(rec.UniformFlags, f.header.Bands)
			if allBandsUniform(rec.UniformFlags) && rec.BlockNum >= 0 {
				f.blocks.free(t)
				rec.BlockNum = -1
			}
			return f.tiles.writeOne(f.io, t)
		}
	}

	if rec.BlockNum < 0 {
		bn := f.blocks.allocate(t)
		if bn < 0 {
			return f.fail("sif.SetTileSlice", CodeMemory)
		}
		rec.BlockNum = bn
		// Materialize: fill all bands' slices with src so every band has a
		// valid byte range. Bands that were previously uniform stay
		// authoritative via their uniform_flags bit; this placeholder data
		// is never observed through reads.
		base := blockOffset(f.tiles.baseLocation(), f.header.TileBytes, bn)
		placeholder := make([]byte, f.sliceBytes())
		copy(placeholder, src)
		for bi := int32(0); bi < f.header.Bands; bi++ {
			if err := f.io.WriteAt(placeholder, base+int64(bi)*int64(f.sliceBytes())); err != nil {
				return err
			}
		}
	}

	off := blockOffset(f.tiles.baseLocation(), f.header.TileBytes, rec.BlockNum) +
		int64(b)*int64(f.sliceBytes())
	onDisk := f.endianBuf.get(int(f.sliceBytes()))
	copy(onDisk, src[:f.sliceBytes()])
	adaptEndian(onDisk, dus, f.endian)
	if err := f.io.WriteAt(onDisk, off); err != nil {
		return err
	}

	setUniformBit(rec.UniformFlags, b, false)
	fixTrailingPadding(rec.UniformFlags, f.header.Bands)
	if f.header.IntrinsicWrite == 0 {
		rec.Dirty = true
	}
	return f.tiles.writeOne(f.io, t)
}

// FillTileSlice stores the uniform value v for band b of tile (tx, ty),
// freeing the block if the tile becomes fully uniform.
func (f *File) FillTileSlice(tx, ty, b int32, v []byte) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.readOnly {
		return f.fail("sif.FillTileSlice", CodeInvalidFileMode)
	}
	if err := f.validateBand(b); err != nil {
		return err
	}
	if err := f.validateTileCoord(tx, ty); err != nil {
		return err
	}
	if len(v) != int(f.header.DataUnitSize) {
		return f.fail("sif.FillTileSlice", CodeInvalidBuffer)
	}

	t := f.tileIndex(tx, ty)
	rec := f.tiles.records[t]
	dus := int(f.header.DataUnitSize)
	onDisk := append([]byte(nil), v...)
	adaptEndian(onDisk, dus, f.endian)
	copy(rec.UniformPixelValues[int(b)*dus:int(b+1)*dus], onDisk)
	setUniformBit(rec.UniformFlags, b, true)
	fixTrailingPadding(rec.UniformFlags, f.header.Bands)
	if allBandsUniform(rec.UniformFlags) && rec.BlockNum >= 0 {
		f.blocks.free(t)
		rec.BlockNum = -1
	}
	return f.tiles.writeOne(f.io, t)
}

// FillTiles applies FillTileSlice with value v to every tile's band b.
func (f *File) FillTiles(b int32, v []byte) error {
	if err := f.validateBand(b); err != nil {
		return err
	}
	for ty := int32(0); ty < f.header.nTilesDown(); ty++ {
		for tx := int32(0); tx < f.header.NTilesAcross; tx++ {
			if err := f.FillTileSlice(tx, ty, b, v); err != nil {
				return err
			}
		}
	}
	return nil
}
