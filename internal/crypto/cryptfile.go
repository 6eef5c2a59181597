package crypto

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/logcrypt/internal/encinfo"
	"github.com/kenneth/logcrypt/internal/metrics"
)

// ErrFileClosed is returned when an operation is attempted on a closed
// CryptoFile.
var ErrFileClosed = errors.New("crypto file is closed")

// OpenMode fixes the direction of a CryptoFile for its lifetime.
type OpenMode int

const (
	ModeWrite OpenMode = iota
	ModeRead
)

// Options carries optional collaborators for a CryptoFile. The zero value
// uses the standard logger, no metrics, and the default poll interval.
type Options struct {
	Logger       *logrus.Logger
	Metrics      *metrics.Metrics
	PollInterval time.Duration
}

// CryptoFile binds one cipher context, one cipher engine instance, and one
// encryption-info side file to one logical log file. It is created by
// OpenWrite or OpenRead and destroyed by Close. A CryptoFile is not safe for
// concurrent use; serialize externally, one file per goroutine.
//
// Only a single unbounded encryption block per file is supported end to end.
// The side-file format already anticipates multiple IV/END pairs per file
// (log rotation within one encrypted stream); a future reader extension
// would track the current block's END offset and re-run the IV-read protocol
// when the primary stream reaches it.
type CryptoFile struct {
	ctx      *Context
	openMode OpenMode
	blockLen int
	eng      *engine
	info     *encinfo.File
	log      *logrus.Entry
	metrics  *metrics.Metrics
	closed   bool
}

func newCryptoFile(cctx *Context, path string, openMode OpenMode, opts *Options) (*CryptoFile, error) {
	if opts == nil {
		opts = &Options{}
	}
	if cctx.key == nil {
		return nil, ErrNoKey
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	cctx.markUsed()
	eng, err := newEngine(cctx)
	if err != nil {
		return nil, err
	}

	return &CryptoFile{
		ctx:      cctx,
		openMode: openMode,
		blockLen: cctx.algo.BlockLength(),
		eng:      eng,
		info:     encinfo.New(path, logger),
		log: logger.WithFields(logrus.Fields{
			"file":      path,
			"algorithm": cctx.algo.String(),
			"mode":      cctx.mode.String(),
		}),
		metrics: opts.Metrics,
	}, nil
}

// OpenWrite prepares encryption of a new log file: it generates a fresh IV,
// initializes the cipher engine with it, and persists the IV record to the
// side file (creating the side file with its sentinel header if needed).
// Any failure tears down all partial state and surfaces the first error.
func OpenWrite(cctx *Context, path string, opts *Options) (*CryptoFile, error) {
	cf, err := newCryptoFile(cctx, path, ModeWrite, opts)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, cf.blockLen)
	if _, err := rand.Read(iv); err != nil {
		// Never fall back to weak IV material; refuse to open instead.
		return nil, fmt.Errorf("cannot seed IV from entropy source: %w", err)
	}
	if err := cf.eng.setIV(iv, false); err != nil {
		return nil, err
	}

	if err := cf.info.OpenAppend(); err != nil {
		return nil, err
	}
	if err := cf.info.WriteIV(iv); err != nil {
		cf.info.Release()
		return nil, err
	}
	if cf.metrics != nil {
		cf.metrics.RecordSideFileRecord(encinfo.TypeIV)
		cf.metrics.FileOpened()
	}
	cf.log.Info("opened crypto file for writing")
	return cf, nil
}

// OpenRead prepares decryption of a log file from the beginning. If the side
// file does not exist yet the call blocks until the writer creates it; ctx
// bounds the wait (a background context waits forever, matching the legacy
// behavior). Once the side file appears its filetype is verified and the
// block's IV is read and bound to the cipher engine.
func OpenRead(ctx context.Context, cctx *Context, path string, opts *Options) (*CryptoFile, error) {
	cf, err := newCryptoFile(cctx, path, ModeRead, opts)
	if err != nil {
		return nil, err
	}

	pollInterval := time.Duration(0)
	if opts != nil {
		pollInterval = opts.PollInterval
	}
	waitStart := time.Now()
	if err := cf.info.WaitOpenRead(ctx, pollInterval); err != nil {
		return nil, err
	}
	if cf.metrics != nil {
		cf.metrics.ObserveSideFileWait(time.Since(waitStart))
	}

	if err := cf.info.CheckFiletype(); err != nil {
		cf.info.Release()
		return nil, err
	}
	iv, err := cf.info.ReadIV(cf.blockLen)
	if err != nil {
		cf.info.Release()
		return nil, err
	}
	if err := cf.eng.setIV(iv, true); err != nil {
		cf.info.Release()
		return nil, err
	}
	if cf.metrics != nil {
		cf.metrics.FileOpened()
	}
	cf.log.Info("opened crypto file for reading")
	return cf, nil
}

// BlockLength returns the cipher block length driving padding and IV size.
func (cf *CryptoFile) BlockLength() int { return cf.blockLen }

// SideFilePath returns the path of the companion encryption info file.
func (cf *CryptoFile) SideFilePath() string { return cf.info.Path() }

// Encrypt pads buf to a multiple of the block length and encrypts it in
// place, returning the padded ciphertext (which may use a grown backing
// array). Empty input is skipped entirely, not padded to a full block.
func (cf *CryptoFile) Encrypt(buf []byte) ([]byte, error) {
	if cf.closed {
		return nil, ErrFileClosed
	}
	if len(buf) == 0 {
		return buf, nil
	}
	start := time.Now()
	buf = addPadding(buf, cf.blockLen)
	cf.log.Debugf("padded %d bytes for encryption", len(buf))
	err := cf.eng.transform(buf)
	if cf.metrics != nil {
		cf.metrics.RecordOperation("encrypt", len(buf), time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return buf, nil
}

// Decrypt decrypts buf in place and strips the zero-byte padding, returning
// the compacted plaintext.
func (cf *CryptoFile) Decrypt(buf []byte) ([]byte, error) {
	if cf.closed {
		return nil, ErrFileClosed
	}
	if len(buf) == 0 {
		return buf, nil
	}
	start := time.Now()
	err := cf.eng.transform(buf)
	if cf.metrics != nil {
		cf.metrics.RecordOperation("decrypt", len(buf), time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return removePadding(buf), nil
}

// EndOffset reads the next side-file record and returns the final log-file
// offset from the block's END record. Only meaningful in read mode after the
// IV has been consumed; a writer that is still running has not written the
// record yet, which surfaces as an incomplete-record error.
func (cf *CryptoFile) EndOffset() (int64, error) {
	if cf.closed {
		return 0, ErrFileClosed
	}
	rec, err := cf.info.ReadRecord()
	if err != nil {
		return 0, err
	}
	if rec.Type != encinfo.TypeEnd {
		return 0, fmt.Errorf("expected %s record, got %q", encinfo.TypeEnd, rec.Type)
	}
	offset, err := strconv.ParseInt(rec.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s record value %q: %w", encinfo.TypeEnd, rec.Value, err)
	}
	return offset, nil
}

// Close finalizes the side file with an END record carrying the final byte
// offset of the log file and releases all owned resources. It never fails
// from the caller's point of view: a future reader depends on the END
// record, so the attempt is made even when prior operations failed, and the
// resources are released regardless.
func (cf *CryptoFile) Close(finalOffset int64) {
	if cf.closed {
		return
	}
	cf.closed = true
	cf.info.Close(finalOffset)
	cf.eng = nil
	if cf.metrics != nil {
		if cf.openMode == ModeWrite {
			cf.metrics.RecordSideFileRecord(encinfo.TypeEnd)
		}
		cf.metrics.FileClosed()
	}
	cf.log.WithField("offset", finalOffset).Info("closed crypto file")
}
