package encinfo

import "errors"

// Error values reported by side-file operations. Callers distinguish them
// with errors.Is; everything except ErrNotExist is fatal to the operation
// that produced it.
var (
	// ErrNotExist is returned by OpenRead when the side file has not been
	// created yet. It is the only non-fatal condition: readers use it to
	// decide to wait for the writer.
	ErrNotExist = errors.New("encryption info file does not exist")

	// ErrOpen is returned when the side file cannot be opened for a reason
	// other than non-existence.
	ErrOpen = errors.New("cannot open encryption info file")

	// ErrShortWrite is returned when a record write stored fewer bytes than
	// requested. A partial record must never be left behind silently.
	ErrShortWrite = errors.New("short write to encryption info file")

	// ErrInvalidFile is returned when the filetype sentinel does not match,
	// signaling a corrupt or foreign side file.
	ErrInvalidFile = errors.New("not an encryption info file")

	// ErrIncompleteRecord is returned when the stream ends before a record's
	// expected delimiter.
	ErrIncompleteRecord = errors.New("truncated encryption info record")

	// ErrFieldTooLong is returned when a record type or value exceeds its
	// size limit.
	ErrFieldTooLong = errors.New("encryption info record field too long")

	// ErrInvalidIV is returned when the IV record is missing, has the wrong
	// type, a wrong decoded length, or non-hex content.
	ErrInvalidIV = errors.New("invalid IV record")
)
