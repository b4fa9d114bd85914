package sif

// SetRaster writes pixels [x, x+w) x [y, y+h) of band b from buf, which must
// hold w*h*dataUnitSize bytes in row-major order. The window is decomposed
// across tile boundaries, driving GetTileSlice/SetTileSlice through a
// per-tile scratch buffer.
func (f *File) SetRaster(buf []byte, x, y, w, h, b int32) error {
	return f.rasterIO(buf, x, y, w, h, b, true)
}

// GetRaster is the symmetric read of SetRaster.
func (f *File) GetRaster(buf []byte, x, y, w, h, b int32) error {
	return f.rasterIO(buf, x, y, w, h, b, false)
}

func (f *File) rasterIO(buf []byte, x, y, w, h, b int32, write bool) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if write && f.readOnly {
		return f.fail("sif.SetRaster", CodeInvalidFileMode)
	}
	if err := f.validateBand(b); err != nil {
		return err
	}
	if x < 0 || y < 0 || w <= 0 || h <= 0 {
		return f.fail("sif.rasterIO", CodeInvalidCoord)
	}
	if x+w > f.header.Width || y+h > f.header.Height {
		return f.fail("sif.rasterIO", CodeInvalidRegionSize)
	}
	dus := int(f.header.DataUnitSize)
	if int32(len(buf)) < w*h*int32(dus) {
		return f.fail("sif.rasterIO", CodeInvalidBuffer)
	}

	tw, th := f.header.TileWidth, f.header.TileHeight

	tnx1, tnx2 := x/tw, (x+w-1)/tw
	tny1, tny2 := y/th, (y+h-1)/th

	scratch := f.scratchA

	for ty := tny1; ty <= tny2; ty++ {
		for tx := tnx1; tx <= tnx2; tx++ {
			sxt := max(int32(0), x-tx*tw)
			syt := max(int32(0), y-ty*th)
			ext := min(tw-1, x+w-1-tx*tw)
			eyt := min(th-1, y+h-1-ty*th)
			sxd := (tx*tw + sxt) - x
			syd := (ty*th + syt) - y

			slice := scratch[:f.sliceBytes()]
			if err := f.GetTileSlice(tx, ty, b, slice); err != nil {
				return err
			}

			rowUnits := ext - sxt + 1
			for row := int32(0); row <= eyt-syt; row++ {
				tileRow := syt + row
				clientRow := syd + row
				tileOff := int(tileRow*tw+sxt) * dus
				clientOff := int(clientRow*w+sxd) * dus
				n := int(rowUnits) * dus
				if write {
					copy(slice[tileOff:tileOff+n], buf[clientOff:clientOff+n])
				} else {
					copy(buf[clientOff:clientOff+n], slice[tileOff:tileOff+n])
				}
			}

			if write {
				if err := f.SetTileSlice(tx, ty, b, slice); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
