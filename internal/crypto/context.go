// Package crypto implements transparent log file encryption: a frozen
// cipher context (algorithm, mode, key) plus per-file crypto state bound
// to an encryption-info side file.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/pbkdf2"
)

const defaultPBKDF2Iterations = 100000

var (
	ErrInvalidAlgorithm = errors.New("invalid cipher algorithm")
	ErrInvalidMode      = errors.New("invalid cipher mode")
	ErrCipher           = errors.New("cipher operation failed")
	ErrContextInUse     = errors.New("cipher context is already in use")
	ErrNoKey            = errors.New("no key set on cipher context")
)

// KeyLengthError reports a key that does not match the selected algorithm.
type KeyLengthError struct {
	Required int
}

func (e *KeyLengthError) Error() string {
	return fmt.Sprintf("key length mismatch: required length %d", e.Required)
}

// Algorithm selects the block cipher.
type Algorithm int

const (
	AES128 Algorithm = iota + 1
	AES192
	AES256
)

// ParseAlgorithm maps a configuration name to an Algorithm. Names are
// case-insensitive.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "aes128":
		return AES128, nil
	case "aes192":
		return AES192, nil
	case "aes256":
		return AES256, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, name)
	}
}

// KeyLength returns the required key length in bytes.
func (a Algorithm) KeyLength() int {
	switch a {
	case AES192:
		return 24
	case AES256:
		return 32
	default:
		return 16
	}
}

// BlockLength returns the cipher block length in bytes.
func (a Algorithm) BlockLength() int { return 16 }

func (a Algorithm) String() string {
	switch a {
	case AES128:
		return "aes128"
	case AES192:
		return "aes192"
	case AES256:
		return "aes256"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// Mode selects the cipher mode of operation.
type Mode int

const (
	CBC Mode = iota + 1
	ECB
	CFB
	OFB
	CTR
)

// ParseMode maps a configuration name to a Mode. Names are case-insensitive.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "cbc":
		return CBC, nil
	case "ecb":
		return ECB, nil
	case "cfb":
		return CFB, nil
	case "ofb":
		return OFB, nil
	case "ctr":
		return CTR, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, name)
	}
}

func (m Mode) String() string {
	switch m {
	case CBC:
		return "cbc"
	case ECB:
		return "ecb"
	case CFB:
		return "cfb"
	case OFB:
		return "ofb"
	case CTR:
		return "ctr"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Context holds the cipher parameters shared by every file opened from it.
// It is mutable during setup only: once a file has been opened from it the
// context is frozen and all setters fail with ErrContextInUse.
type Context struct {
	algo Algorithm
	mode Mode
	key  []byte
	used atomic.Bool
}

// NewContext returns a context with the defaults aes128/cbc and no key.
func NewContext() *Context {
	return &Context{algo: AES128, mode: CBC}
}

// Algorithm returns the selected cipher algorithm.
func (c *Context) Algorithm() Algorithm { return c.algo }

// Mode returns the selected cipher mode.
func (c *Context) Mode() Mode { return c.mode }

// SetAlgorithm selects the cipher algorithm by configuration name. Changing
// the algorithm invalidates a previously set key of the wrong length, so set
// the algorithm before the key.
func (c *Context) SetAlgorithm(name string) error {
	if c.used.Load() {
		return ErrContextInUse
	}
	algo, err := ParseAlgorithm(name)
	if err != nil {
		return err
	}
	if c.key != nil && len(c.key) != algo.KeyLength() {
		c.key = nil
	}
	c.algo = algo
	return nil
}

// SetMode selects the cipher mode by configuration name.
func (c *Context) SetMode(name string) error {
	if c.used.Load() {
		return ErrContextInUse
	}
	mode, err := ParseMode(name)
	if err != nil {
		return err
	}
	c.mode = mode
	return nil
}

// SetKey installs the symmetric key. The key must match the algorithm's
// required length exactly; on mismatch no key is stored and the caller may
// retry with corrected material. The context keeps its own copy.
func (c *Context) SetKey(key []byte) error {
	if c.used.Load() {
		return ErrContextInUse
	}
	if len(key) != c.algo.KeyLength() {
		return &KeyLengthError{Required: c.algo.KeyLength()}
	}
	c.key = make([]byte, len(key))
	copy(c.key, key)
	return nil
}

// SetKeyFromPassphrase derives the key from a passphrase using PBKDF2 with
// SHA-256. An iterations value of zero or less uses the default.
func (c *Context) SetKeyFromPassphrase(passphrase string, salt []byte, iterations int) error {
	if c.used.Load() {
		return ErrContextInUse
	}
	if iterations <= 0 {
		iterations = defaultPBKDF2Iterations
	}
	c.key = pbkdf2.Key([]byte(passphrase), salt, iterations, c.algo.KeyLength(), sha256.New)
	return nil
}

// markUsed freezes the context. Called when the first file is opened.
func (c *Context) markUsed() { c.used.Store(true) }
