package sif

import (
	"encoding/binary"
	"math"
	"os"
)

// ioState wraps the underlying file descriptor with a sticky error field.
// Every primitive records its failure kind onto err and returns it; callers
// that want short-circuit behaviour check Err() before issuing further
// calls. All access is plain ReadAt/WriteAt at absolute offsets.
type ioState struct {
	f   *os.File
	err error
}

func (io_ *ioState) Err() error { return io_.err }

func (io_ *ioState) setErr(e *Error) *Error {
	if io_.err == nil {
		io_.err = e
	}
	return e
}

// ReadAt reads exactly len(buf) bytes at off, recording a CodeRead error on
// short reads or failure.
func (io_ *ioState) ReadAt(buf []byte, off int64) error {
	if io_.err != nil {
		return io_.err
	}
	if _, err := io_.f.ReadAt(buf, off); err != nil {
		return io_.setErr(newErr("byteio.ReadAt", CodeRead, err))
	}
	return nil
}

// WriteAt writes all of buf at off, recording CodeWrite on failure.
func (io_ *ioState) WriteAt(buf []byte, off int64) error {
	if io_.err != nil {
		return io_.err
	}
	if _, err := io_.f.WriteAt(buf, off); err != nil {
		return io_.setErr(newErr("byteio.WriteAt", CodeWrite, err))
	}
	return nil
}

// Truncate sets the underlying file length, recording CodeTruncate.
func (io_ *ioState) Truncate(size int64) error {
	if io_.err != nil {
		return io_.err
	}
	if err := io_.f.Truncate(size); err != nil {
		return io_.setErr(newErr("byteio.Truncate", CodeTruncate, err))
	}
	return nil
}

// Flush forces any OS-buffered writes to stable storage, recording CodeWrite.
func (io_ *ioState) Flush() error {
	if io_.err != nil {
		return io_.err
	}
	if err := io_.f.Sync(); err != nil {
		return io_.setErr(newErr("byteio.Flush", CodeWrite, err))
	}
	return nil
}

// Size reports the current length of the underlying file.
func (io_ *ioState) Size() (int64, error) {
	fi, err := io_.f.Stat()
	if err != nil {
		return 0, io_.setErr(newErr("byteio.Size", CodeSeek, err))
	}
	return fi.Size(), nil
}

// --- fixed-width big-endian codecs used by the header and tile-header table ---

func putInt32BE(buf []byte, v int32) {
	binary.BigEndian.PutUint32(buf, uint32(v))
}

func getInt32BE(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf))
}

func putFloat64BE(buf []byte, v float64) {
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
}

func getFloat64BE(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

// putFloat64Host/getFloat64Host encode using the host's native byte order.
// Version-1 writers stored affine_geo_transform doubles unswapped even
// though every integer in the same header is big-endian; rewriting a
// version-1 file must keep that layout. "Host" means whatever order
// binary.NativeEndian reports for the running process, the same detection
// hostEndian() uses for pixel buffers below.
func putFloat64Host(buf []byte, v float64) {
	binary.NativeEndian.PutUint64(buf, math.Float64bits(v))
}

func getFloat64Host(buf []byte) float64 {
	return math.Float64frombits(binary.NativeEndian.Uint64(buf))
}

// --- 64-bit integer codec. No field in the current on-disk layout is 64
// bits wide; only offsets computed in memory are. ---

func putInt64BE(buf []byte, v int64) {
	binary.BigEndian.PutUint64(buf, uint64(v))
}

func getInt64BE(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

// Endian identifies the declared on-disk byte order for pixel data units,
// independent of the host's own byte order. It corresponds to the "simple"
// data-type convention's endian code.
type Endian int

const (
	BigEndian Endian = iota
	LittleEndian
)

func hostEndian() Endian {
	buf := make([]byte, 2)
	binary.NativeEndian.PutUint16(buf, 1)
	if buf[0] == 1 {
		return LittleEndian
	}
	return BigEndian
}

// swapBuffer reverses the byte order of each unitSize-sized element of buf
// in place. It is a no-op when unitSize is 1 (single bytes have no order).
// It always swaps otherwise; the host-vs-file comparison is adaptEndian's.
func swapBuffer(buf []byte, unitSize int) {
	if unitSize <= 1 {
		return
	}
	for i := 0; i+unitSize <= len(buf); i += unitSize {
		lo, hi := i, i+unitSize-1
		for lo < hi {
			buf[lo], buf[hi] = buf[hi], buf[lo]
			lo++
			hi--
		}
	}
}

// adaptEndian translates buf between host and file byte order for a slice of
// fixed-size data units, driven by a file-endian vs host-endian comparison.
// It mutates buf in place and is its own inverse.
func adaptEndian(buf []byte, unitSize int, fileEndian Endian) {
	if fileEndian == hostEndian() {
		return
	}
	swapBuffer(buf, unitSize)
}

// endianScratch is a growable auxiliary buffer for host/file byte swaps: it
// grows monotonically to the largest region ever translated rather than
// being reallocated per call.
type endianScratch struct {
	buf []byte
}

func (s *endianScratch) get(n int) []byte {
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	return s.buf[:n]
}
