package sif

// Defragment relocates live blocks to a dense prefix [0, k) in tile-index
// order. It walks tiles in index order with a write cursor bn1; each
// occupied tile is swapped into bn1, displacing whatever tile already lived
// there (if any) out to the vacated slot.
func (f *File) Defragment() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.readOnly {
		return f.fail("sif.Defragment", CodeInvalidFileMode)
	}

	buf1 := f.scratchA
	buf2 := f.scratchB

	bn1 := int32(0)
	for t2 := int32(0); t2 < f.header.NTiles; t2++ {
		bn2 := f.tiles.records[t2].BlockNum
		if bn2 == -1 {
			continue
		}
		if bn1 != bn2 {
			t1 := f.blocks.blockToTile[bn1]
			assign := t1 == -1

			if err := f.swapBlocks(bn1, bn2, buf1, buf2, assign); err != nil {
				return err
			}

			f.blocks.blockToTile[bn1] = t2
			f.tiles.records[t2].BlockNum = bn1
			if err := f.tiles.writeOne(f.io, t2); err != nil {
				return err
			}

			if !assign {
				f.blocks.blockToTile[bn2] = t1
				f.tiles.records[t1].BlockNum = bn2
				f.blocks.tileToBlock[t1] = bn2
				if err := f.tiles.writeOne(f.io, t1); err != nil {
					return err
				}
			} else {
				f.blocks.blockToTile[bn2] = -1
			}
			f.blocks.tileToBlock[t2] = bn1
		}
		bn1++
	}

	// Live blocks now occupy a dense prefix. The metadata region moves to
	// just past the last of them and the file is truncated there.
	last := f.blocks.lastUsedBlock()
	metaOff := blockOffset(f.tiles.baseLocation(), f.header.TileBytes, last+1)
	return writeMetaStore(f.io, metaOff, f.meta)
}

// swapBlocks exchanges the raw byte contents of blocks bn1 and bn2 in the
// data region. When assign is true, the destination bn1 had no prior
// occupant, so the read-back of its old contents into bn2 is skipped; there
// is nothing meaningful there yet.
func (f *File) swapBlocks(bn1, bn2 int32, buf1, buf2 []byte, assign bool) error {
	base := f.tiles.baseLocation()
	off1 := blockOffset(base, f.header.TileBytes, bn1)
	off2 := blockOffset(base, f.header.TileBytes, bn2)

	if err := f.io.ReadAt(buf2, off2); err != nil {
		return err
	}
	if !assign {
		if err := f.io.ReadAt(buf1, off1); err != nil {
			return err
		}
	}

	if err := f.io.WriteAt(buf2, off1); err != nil {
		return err
	}
	if !assign {
		if err := f.io.WriteAt(buf1, off2); err != nil {
			return err
		}
	}
	return nil
}
