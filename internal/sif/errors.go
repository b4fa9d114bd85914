package sif

import "fmt"

// Code identifies the stable error taxonomy of the SIF format, so callers
// can branch on the kind of failure rather than parse an error string.
type Code int

const (
	CodeNone Code = iota
	CodeMemory
	CodeNullFile
	CodeNullHeader
	CodeInvalidBlockNumber
	CodeInvalidTileNumber
	CodeRead
	CodeWrite
	CodeSeek
	CodeTruncate
	CodeInvalidFileMode
	CodeIncompatibleVersion
	CodeMetaDataKeyMissing
	CodeMetaDataValueInvalid
	CodeCannotWriteVersion
	CodeInvalidBand
	CodeInvalidCoord
	CodeInvalidTileSize
	CodeInvalidRegionSize
	CodeInvalidBuffer
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "no error"
	case CodeMemory:
		return "memory error"
	case CodeNullFile:
		return "null file"
	case CodeNullHeader:
		return "null header"
	case CodeInvalidBlockNumber:
		return "invalid block number"
	case CodeInvalidTileNumber:
		return "invalid tile number"
	case CodeRead:
		return "read error"
	case CodeWrite:
		return "write error"
	case CodeSeek:
		return "seek error"
	case CodeTruncate:
		return "truncate error"
	case CodeInvalidFileMode:
		return "invalid file mode"
	case CodeIncompatibleVersion:
		return "incompatible version"
	case CodeMetaDataKeyMissing:
		return "meta-data key missing"
	case CodeMetaDataValueInvalid:
		return "meta-data value is not a null-terminated string"
	case CodeCannotWriteVersion:
		return "cannot write requested format version"
	case CodeInvalidBand:
		return "invalid band"
	case CodeInvalidCoord:
		return "invalid coordinate"
	case CodeInvalidTileSize:
		return "invalid tile size"
	case CodeInvalidRegionSize:
		return "invalid region size"
	case CodeInvalidBuffer:
		return "invalid buffer"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by every operation in this
// package. It carries the stable Code alongside an optional wrapped cause
// (an underlying I/O error, for instance) so callers can both switch on Code
// and unwrap to the underlying os/io error.
type Error struct {
	Code Code
	Op   string // the operation that failed, e.g. "sif.Open", "sif.SetTileSlice"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(op string, code Code, cause error) *Error {
	return &Error{Op: op, Code: code, Err: cause}
}

// CodeOf extracts the Code carried by err, if any. It returns false when err
// is nil or does not wrap a *Error.
func CodeOf(err error) (Code, bool) {
	if err == nil {
		return CodeNone, false
	}
	if e, ok := asError(err); ok {
		return e.Code, true
	}
	return CodeNone, false
}

func asError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
