package crypto

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/logcrypt/internal/encinfo"
)

func quietOpts() *Options {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Options{Logger: logger}
}

func testContext(t *testing.T, algo, mode string) *Context {
	t.Helper()
	ctx := NewContext()
	if err := ctx.SetAlgorithm(algo); err != nil {
		t.Fatalf("SetAlgorithm(%q): %v", algo, err)
	}
	if err := ctx.SetMode(mode); err != nil {
		t.Fatalf("SetMode(%q): %v", mode, err)
	}
	if err := ctx.SetKey(make([]byte, ctx.Algorithm().KeyLength())); err != nil {
		t.Fatalf("SetKey(): %v", err)
	}
	return ctx
}

func TestOpenWriteCreatesSideFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	ctx := testContext(t, "aes128", "cbc")

	cf, err := OpenWrite(ctx, logPath, quietOpts())
	if err != nil {
		t.Fatalf("OpenWrite(): %v", err)
	}
	if cf.BlockLength() != 16 {
		t.Fatalf("BlockLength() = %d, want 16", cf.BlockLength())
	}
	if cf.SideFilePath() != logPath+".encinfo" {
		t.Fatalf("SideFilePath() = %q, want %q", cf.SideFilePath(), logPath+".encinfo")
	}

	ciphertext, err := cf.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt(): %v", err)
	}
	if len(ciphertext) != 16 {
		t.Fatalf("Encrypt(hello) produced %d bytes, want one 16-byte block", len(ciphertext))
	}

	cf.Close(42)

	data, err := os.ReadFile(logPath + ".encinfo")
	if err != nil {
		t.Fatalf("reading side file: %v", err)
	}
	lines := strings.Split(string(data), "\n")
	if lines[0] != "FILETYPE:logcrypt-encryption-info" {
		t.Fatalf("side file sentinel line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "IV:") {
		t.Fatalf("expected IV record, got %q", lines[1])
	}
	ivHex := strings.TrimPrefix(lines[1], "IV:")
	if len(ivHex) != 32 {
		t.Fatalf("IV value has %d hex chars, want 32", len(ivHex))
	}
	if strings.ToLower(ivHex) != ivHex {
		t.Fatalf("IV value is not lowercase hex: %q", ivHex)
	}
	if lines[2] != "END:42" {
		t.Fatalf("expected END:42, got %q", lines[2])
	}
}

func TestOpenReadRecoversWrittenIV(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	wctx := testContext(t, "aes128", "cbc")

	cf, err := OpenWrite(wctx, logPath, quietOpts())
	if err != nil {
		t.Fatalf("OpenWrite(): %v", err)
	}
	cf.Close(0)

	// Read the IV the writer persisted, then verify the reader binds the
	// exact same raw bytes.
	data, err := os.ReadFile(logPath + ".encinfo")
	if err != nil {
		t.Fatalf("reading side file: %v", err)
	}
	lines := strings.Split(string(data), "\n")
	wantIV, err := hex.DecodeString(strings.TrimPrefix(lines[1], "IV:"))
	if err != nil {
		t.Fatalf("decoding written IV: %v", err)
	}

	info := encinfo.New(logPath, quietOpts().Logger)
	if err := info.OpenRead(); err != nil {
		t.Fatalf("OpenRead(): %v", err)
	}
	defer info.Release()
	if err := info.CheckFiletype(); err != nil {
		t.Fatalf("CheckFiletype(): %v", err)
	}
	gotIV, err := info.ReadIV(16)
	if err != nil {
		t.Fatalf("ReadIV(): %v", err)
	}
	if !bytes.Equal(gotIV, wantIV) {
		t.Fatalf("recovered IV %x, want %x", gotIV, wantIV)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	modes := []string{"cbc", "ecb", "cfb", "ofb", "ctr"}
	algos := []string{"aes128", "aes192", "aes256"}

	for _, mode := range modes {
		for _, algo := range algos {
			t.Run(algo+"/"+mode, func(t *testing.T) {
				logPath := filepath.Join(t.TempDir(), "app.log")

				w, err := OpenWrite(testContext(t, algo, mode), logPath, quietOpts())
				if err != nil {
					t.Fatalf("OpenWrite(): %v", err)
				}
				plaintext := []byte("a log line with no embedded zero bytes")
				ciphertext, err := w.Encrypt(append([]byte(nil), plaintext...))
				if err != nil {
					t.Fatalf("Encrypt(): %v", err)
				}
				if bytes.Contains(ciphertext, plaintext) {
					t.Fatal("ciphertext contains the plaintext")
				}
				w.Close(int64(len(ciphertext)))

				r, err := OpenRead(context.Background(), testContext(t, algo, mode), logPath, quietOpts())
				if err != nil {
					t.Fatalf("OpenRead(): %v", err)
				}
				defer r.Close(0)
				got, err := r.Decrypt(ciphertext)
				if err != nil {
					t.Fatalf("Decrypt(): %v", err)
				}
				if !bytes.Equal(got, plaintext) {
					t.Fatalf("round trip = %q, want %q", got, plaintext)
				}
			})
		}
	}
}

func TestMultiChunkStreamDecodesConcatenated(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")

	w, err := OpenWrite(testContext(t, "aes128", "cbc"), logPath, quietOpts())
	if err != nil {
		t.Fatalf("OpenWrite(): %v", err)
	}
	var stream []byte
	for _, chunk := range []string{"hello", "world", "a longer log line spanning blocks"} {
		ct, err := w.Encrypt([]byte(chunk))
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", chunk, err)
		}
		stream = append(stream, ct...)
	}
	w.Close(int64(len(stream)))

	r, err := OpenRead(context.Background(), testContext(t, "aes128", "cbc"), logPath, quietOpts())
	if err != nil {
		t.Fatalf("OpenRead(): %v", err)
	}
	defer r.Close(0)
	got, err := r.Decrypt(stream)
	if err != nil {
		t.Fatalf("Decrypt(): %v", err)
	}
	// Padding zeros between chunks collapse, so the chunks concatenate.
	want := "helloworlda longer log line spanning blocks"
	if string(got) != want {
		t.Fatalf("Decrypt() = %q, want %q", got, want)
	}
}

func TestOpenReadWaitsForWriter(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "late.log")
	plaintext := []byte("written after the reader started")
	ciphertextCh := make(chan []byte, 1)

	go func() {
		time.Sleep(60 * time.Millisecond)
		w, err := OpenWrite(testContext(t, "aes128", "cbc"), logPath, quietOpts())
		if err != nil {
			ciphertextCh <- nil
			return
		}
		ct, err := w.Encrypt(append([]byte(nil), plaintext...))
		w.Close(int64(len(ct)))
		if err != nil {
			ciphertextCh <- nil
			return
		}
		ciphertextCh <- ct
	}()

	start := time.Now()
	r, err := OpenRead(context.Background(), testContext(t, "aes128", "cbc"), logPath, quietOpts())
	if err != nil {
		t.Fatalf("OpenRead(): %v", err)
	}
	defer r.Close(0)
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("OpenRead() returned before the writer created the side file")
	}

	ct := <-ciphertextCh
	if ct == nil {
		t.Fatal("writer goroutine failed")
	}
	got, err := r.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt(): %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip = %q, want %q", got, plaintext)
	}
}

func TestOpenReadCancellation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "never.log")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := OpenRead(ctx, testContext(t, "aes128", "cbc"), logPath, quietOpts())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("OpenRead() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestOpenReadRejectsCorruptSideFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"foreign filetype", "FILETYPE:somebody-else\nIV:00\n", encinfo.ErrInvalidFile},
		{"missing IV record", "FILETYPE:logcrypt-encryption-info\nEND:42\n", encinfo.ErrInvalidIV},
		{"oversized record type",
			"FILETYPE:logcrypt-encryption-info\n" + strings.Repeat("X", 40) + ":v\n",
			encinfo.ErrFieldTooLong},
		{"truncated IV record", "FILETYPE:logcrypt-encryption-info\nIV:00ff", encinfo.ErrIncompleteRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "corrupt.log")
			if err := os.WriteFile(logPath+".encinfo", []byte(tt.content), 0o600); err != nil {
				t.Fatalf("writing side file: %v", err)
			}

			cf, err := OpenRead(context.Background(), testContext(t, "aes128", "cbc"), logPath, quietOpts())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("OpenRead() error = %v, want %v", err, tt.wantErr)
			}
			if cf != nil {
				t.Fatal("OpenRead() returned a partially initialized CryptoFile")
			}
		})
	}
}

func TestEncryptEmptyIsNoOp(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "empty.log")
	cf, err := OpenWrite(testContext(t, "aes128", "cbc"), logPath, quietOpts())
	if err != nil {
		t.Fatalf("OpenWrite(): %v", err)
	}
	defer cf.Close(0)

	got, err := cf.Encrypt(nil)
	if err != nil {
		t.Fatalf("Encrypt(nil): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Encrypt(nil) produced %d bytes, want 0", len(got))
	}
}

func TestOperationsAfterClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "closed.log")
	cf, err := OpenWrite(testContext(t, "aes128", "cbc"), logPath, quietOpts())
	if err != nil {
		t.Fatalf("OpenWrite(): %v", err)
	}
	cf.Close(0)
	cf.Close(0) // second close is a no-op

	if _, err := cf.Encrypt([]byte("x")); !errors.Is(err, ErrFileClosed) {
		t.Fatalf("Encrypt() after close: error = %v, want ErrFileClosed", err)
	}
	if _, err := cf.Decrypt([]byte("x")); !errors.Is(err, ErrFileClosed) {
		t.Fatalf("Decrypt() after close: error = %v, want ErrFileClosed", err)
	}
}

func TestOpenWriteRequiresKey(t *testing.T) {
	ctx := NewContext()
	_, err := OpenWrite(ctx, filepath.Join(t.TempDir(), "nokey.log"), quietOpts())
	if !errors.Is(err, ErrNoKey) {
		t.Fatalf("OpenWrite() without key: error = %v, want ErrNoKey", err)
	}
}

func TestContextFrozenAfterOpen(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "frozen.log")
	ctx := testContext(t, "aes128", "cbc")

	cf, err := OpenWrite(ctx, logPath, quietOpts())
	if err != nil {
		t.Fatalf("OpenWrite(): %v", err)
	}
	defer cf.Close(0)

	if err := ctx.SetKey(make([]byte, 16)); !errors.Is(err, ErrContextInUse) {
		t.Fatalf("SetKey() after open: error = %v, want ErrContextInUse", err)
	}
}
