package encinfo

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeString(t *testing.T, s string) (Record, error) {
	t.Helper()
	return decodeRecord(bufio.NewReader(strings.NewReader(s)))
}

func TestEncodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		recType string
		value   string
		want    string
	}{
		{"iv record", "IV", "00ff", "IV:00ff\n"},
		{"end record", "END", "42", "END:42\n"},
		{"empty value", "END", "", "END:\n"},
		{"filetype", "FILETYPE", FiletypeName, "FILETYPE:logcrypt-encryption-info\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(encodeRecord(tt.recType, tt.value)))
		})
	}
}

func TestDecodeRecord(t *testing.T) {
	rec, err := decodeString(t, "IV:0123456789abcdef\nEND:42\n")
	require.NoError(t, err)
	assert.Equal(t, "IV", rec.Type)
	assert.Equal(t, "0123456789abcdef", rec.Value)
}

func TestDecodeRecordSequence(t *testing.T) {
	rd := bufio.NewReader(strings.NewReader("IV:aa\nEND:7\nFUTURE:whatever\n"))

	rec, err := decodeRecord(rd)
	require.NoError(t, err)
	assert.Equal(t, Record{Type: "IV", Value: "aa"}, rec)

	rec, err = decodeRecord(rd)
	require.NoError(t, err)
	assert.Equal(t, Record{Type: "END", Value: "7"}, rec)

	// Record types are open-ended; unknown types must still decode.
	rec, err = decodeRecord(rd)
	require.NoError(t, err)
	assert.Equal(t, Record{Type: "FUTURE", Value: "whatever"}, rec)
}

func TestDecodeRecordIncomplete(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty stream", ""},
		{"eof inside type", "IV"},
		{"eof before newline", "IV:00ff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeString(t, tt.input)
			assert.ErrorIs(t, err, ErrIncompleteRecord)
		})
	}
}

func TestDecodeRecordLimits(t *testing.T) {
	longType := strings.Repeat("T", MaxTypeLen+1) + ":v\n"
	_, err := decodeString(t, longType)
	assert.ErrorIs(t, err, ErrFieldTooLong)

	maxType := strings.Repeat("T", MaxTypeLen) + ":v\n"
	rec, err := decodeString(t, maxType)
	require.NoError(t, err)
	assert.Len(t, rec.Type, MaxTypeLen)

	longValue := "T:" + strings.Repeat("v", MaxValueLen+1) + "\n"
	_, err = decodeString(t, longValue)
	assert.ErrorIs(t, err, ErrFieldTooLong)

	maxValue := "T:" + strings.Repeat("v", MaxValueLen) + "\n"
	rec, err = decodeString(t, maxValue)
	require.NoError(t, err)
	assert.Len(t, rec.Value, MaxValueLen)
}
