// Package encinfo implements the encryption-info side file that accompanies
// every encrypted log file. The side file is named like the log file with
// the suffix ".encinfo" appended and carries the metadata a reader needs to
// decrypt the log independently of the writer process.
//
// The file starts with the sentinel line
//
//	FILETYPE:logcrypt-encryption-info
//
// followed by LF-terminated records of the form <type>:<value>. Two record
// types are currently written:
//
//	IV:<hex>   lowercase-hex initialization vector, marks the start of an
//	           encryption block
//	END:<int>  byte offset in the log file at which the block ends, as a
//	           uint64 in decimal notation
//
// Record types are open-ended: new types can be introduced before the colon
// without breaking existing readers.
package encinfo

import (
	"fmt"
	"io"
)

// Size limits for record fields. Exceeding either is a decode error.
const (
	MaxTypeLen  = 31
	MaxValueLen = 1023
)

// Well-known record types.
const (
	TypeFiletype = "FILETYPE"
	TypeIV       = "IV"
	TypeEnd      = "END"
)

// FiletypeName identifies a file as a logcrypt encryption info file. It must
// match exactly, including case.
const FiletypeName = "logcrypt-encryption-info"

// Record is one decoded side-file record.
type Record struct {
	Type  string
	Value string
}

// encodeRecord assembles one record as a single contiguous buffer so the
// caller can hand it to the OS in one write. Concurrent readers must never
// observe a half-record.
func encodeRecord(recType, value string) []byte {
	buf := make([]byte, 0, len(recType)+len(value)+2)
	buf = append(buf, recType...)
	buf = append(buf, ':')
	buf = append(buf, value...)
	buf = append(buf, '\n')
	return buf
}

// decodeRecord reads one record from r, one byte at a time. It accumulates
// the type until ':' and the value until '\n'. End-of-stream before the
// expected delimiter yields ErrIncompleteRecord; oversized fields yield
// ErrFieldTooLong. Embedded control bytes are not interpreted here; known
// types declare their own hex/decimal sub-formats.
func decodeRecord(r io.ByteReader) (Record, error) {
	var rec Record

	typ := make([]byte, 0, 8)
	for {
		c, err := r.ReadByte()
		if err != nil {
			return rec, fmt.Errorf("%w: stream ended inside record type", ErrIncompleteRecord)
		}
		if c == ':' {
			break
		}
		if len(typ) >= MaxTypeLen {
			return rec, fmt.Errorf("%w: record type exceeds %d bytes", ErrFieldTooLong, MaxTypeLen)
		}
		typ = append(typ, c)
	}

	val := make([]byte, 0, 32)
	for {
		c, err := r.ReadByte()
		if err != nil {
			return rec, fmt.Errorf("%w: stream ended inside record value", ErrIncompleteRecord)
		}
		if c == '\n' {
			break
		}
		if len(val) >= MaxValueLen {
			return rec, fmt.Errorf("%w: record value exceeds %d bytes", ErrFieldTooLong, MaxValueLen)
		}
		val = append(val, c)
	}

	rec.Type = string(typ)
	rec.Value = string(val)
	return rec, nil
}
