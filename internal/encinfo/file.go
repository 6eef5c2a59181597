package encinfo

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

const (
	// Suffix is appended to the log file path to form the side-file path.
	Suffix = ".encinfo"

	// readBufSize is the refill chunk size for buffered record reads.
	readBufSize = 4096

	// maxPathLen caps the derived side-file path length.
	maxPathLen = 4096

	fileMode = 0o600
)

// File owns the side file's handle and buffered read cursor. It is not safe
// for concurrent use; each CryptoFile owns exactly one File.
type File struct {
	path string
	f    *os.File
	rd   *bufio.Reader
	log  *logrus.Entry
}

// New derives the side-file path for the given log file and returns an
// unopened File. The path is truncated if it would exceed the maximum
// supported length.
func New(logPath string, logger *logrus.Logger) *File {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	path := logPath + Suffix
	if len(path) > maxPathLen {
		path = path[:maxPathLen]
	}
	return &File{
		path: path,
		log:  logger.WithField("encinfo", path),
	}
}

// Path returns the side-file path.
func (f *File) Path() string { return f.path }

// OpenRead opens the side file for reading. Non-existence is reported as
// ErrNotExist so the caller can decide to wait; any other failure is ErrOpen.
func (f *File) OpenRead() error {
	fh, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, f.path)
		}
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}
	f.f = fh
	f.rd = nil
	return nil
}

// CheckFiletype verifies that the file starts with the exact sentinel line
// "FILETYPE:logcrypt-encryption-info\n". When the file is already open the
// bytes are consumed from the handle, positioning it at the first record.
// When it is not open, a short-lived read handle is used instead.
func (f *File) CheckFiletype() error {
	needClose := false
	if f.f == nil {
		if err := f.OpenRead(); err != nil {
			return err
		}
		needClose = true
	}

	want := TypeFiletype + ":" + FiletypeName + "\n"
	buf := make([]byte, len(want))
	n, err := io.ReadFull(f.f, buf)
	if needClose {
		f.f.Close()
		f.f = nil
	}
	f.log.Debugf("filetype check read %d bytes: %q", n, buf[:n])
	if err != nil || string(buf) != want {
		return fmt.Errorf("%w: %s", ErrInvalidFile, f.path)
	}
	return nil
}

// OpenAppend opens the side file for appending records. An existing file
// must pass the filetype check; a missing file is created and the sentinel
// header is written immediately. Anything else is a fatal open error.
func (f *File) OpenAppend() error {
	err := f.CheckFiletype()
	switch {
	case err == nil:
		fh, oerr := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND, fileMode)
		if oerr != nil {
			return fmt.Errorf("%w: %v", ErrOpen, oerr)
		}
		f.f = fh
	case errors.Is(err, ErrNotExist):
		fh, oerr := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, fileMode)
		if oerr != nil {
			return fmt.Errorf("%w: %v", ErrOpen, oerr)
		}
		f.f = fh
		if werr := f.WriteRecord(TypeFiletype, FiletypeName); werr != nil {
			f.f.Close()
			f.f = nil
			return werr
		}
	default:
		return err
	}
	f.log.Debug("encryption info file opened for append")
	return nil
}

// WriteRecord encodes and writes one record as a single write call so a
// concurrent reader never observes a torn record. A short write is fatal.
func (f *File) WriteRecord(recType, value string) error {
	buf := encodeRecord(recType, value)
	n, err := f.f.Write(buf)
	if err != nil || n != len(buf) {
		return fmt.Errorf("%w: %s record, wrote %d of %d bytes: %v",
			ErrShortWrite, recType, n, len(buf), err)
	}
	f.log.Debugf("written %s record, len %d", recType, n)
	return nil
}

// WriteIV writes the IV record as lowercase hex.
func (f *File) WriteIV(iv []byte) error {
	return f.WriteRecord(TypeIV, hex.EncodeToString(iv))
}

// ReadRecord reads the next record through the buffered cursor.
func (f *File) ReadRecord() (Record, error) {
	if f.rd == nil {
		f.rd = bufio.NewReaderSize(f.f, readBufSize)
	}
	return decodeRecord(f.rd)
}

// ReadIV reads one record, requires it to be an IV record, and decodes its
// value as lowercase hex of exactly expectedLen raw bytes. Uppercase hex
// digits are rejected.
func (f *File) ReadIV(expectedLen int) ([]byte, error) {
	rec, err := f.ReadRecord()
	if err != nil {
		return nil, err
	}
	if rec.Type != TypeIV {
		return nil, fmt.Errorf("%w: expected IV record, got %q", ErrInvalidIV, rec.Type)
	}
	if len(rec.Value) != 2*expectedLen {
		return nil, fmt.Errorf("%w: IV length is %d, expected %d",
			ErrInvalidIV, len(rec.Value)/2, expectedLen)
	}
	for i := 0; i < len(rec.Value); i++ {
		c := rec.Value[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, fmt.Errorf("%w: non-hex character %q", ErrInvalidIV, c)
		}
	}
	iv, err := hex.DecodeString(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIV, err)
	}
	f.log.Debugf("read %d bytes of IV", expectedLen)
	return iv, nil
}

// Close finalizes the side file by appending an END record with the final
// log-file offset, then releases the handle and the read buffer. It is
// best-effort: the resource is always released and no error propagates,
// because a close failure must not keep the file open.
func (f *File) Close(finalOffset int64) {
	if f.f == nil {
		return
	}
	if err := f.WriteRecord(TypeEnd, strconv.FormatInt(finalOffset, 10)); err != nil {
		f.log.WithError(err).Debug("failed to write END record")
	}
	if err := f.f.Close(); err != nil {
		f.log.WithError(err).Debug("failed to close encryption info file")
	}
	f.f = nil
	f.rd = nil
	f.log.Debug("encryption info file closed")
}

// Release closes the handle without writing an END record. It is used to
// tear down partially initialized state after an open failure.
func (f *File) Release() {
	if f.f == nil {
		return
	}
	f.f.Close()
	f.f = nil
	f.rd = nil
}
