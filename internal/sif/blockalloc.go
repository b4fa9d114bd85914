package sif

// blockMap maintains two dense inverse tables: tileToBlock mirrors each
// tile record's BlockNum, blockToTile maps a block index back to the tile
// that owns it (or -1 if free). Exactly one tile maps to any given block
// index.
type blockMap struct {
	tileToBlock []int32
	blockToTile []int32
}

func newBlockMap(nTiles int32) *blockMap {
	bm := &blockMap{
		tileToBlock: make([]int32, nTiles),
		blockToTile: make([]int32, nTiles),
	}
	for i := range bm.tileToBlock {
		bm.tileToBlock[i] = -1
		bm.blockToTile[i] = -1
	}
	return bm
}

// rebuildBlockMap reconstructs blockToTile by scanning every tile's
// BlockNum after the tile-header table has been read from disk.
func rebuildBlockMap(tt *tileTable) *blockMap {
	n := int32(len(tt.records))
	bm := newBlockMap(n)
	for t, rec := range tt.records {
		bm.tileToBlock[t] = rec.BlockNum
		if rec.BlockNum >= 0 {
			bm.blockToTile[rec.BlockNum] = int32(t)
		}
	}
	return bm
}

// allocate returns the lowest free block index via first-fit scan, assigning
// it to tile t. Returns -1 if no block is free (should not happen: the file
// allocates at most n_tiles blocks, one per tile).
func (bm *blockMap) allocate(t int32) int32 {
	for b, owner := range bm.blockToTile {
		if owner == -1 {
			bm.blockToTile[b] = t
			bm.tileToBlock[t] = int32(b)
			return int32(b)
		}
	}
	return -1
}

// free releases the block held by tile t, if any.
func (bm *blockMap) free(t int32) {
	b := bm.tileToBlock[t]
	if b < 0 {
		return
	}
	bm.blockToTile[b] = -1
	bm.tileToBlock[t] = -1
}

// lastUsedBlock returns the largest block index with a live tile, or -1 if
// no block is in use.
func (bm *blockMap) lastUsedBlock() int32 {
	last := int32(-1)
	for b, owner := range bm.blockToTile {
		if owner != -1 && int32(b) > last {
			last = int32(b)
		}
	}
	return last
}

// blockOffset computes the absolute file offset of block b.
func blockOffset(baseLocation int64, tileBytes int32, b int32) int64 {
	return baseLocation + int64(b)*int64(tileBytes)
}
