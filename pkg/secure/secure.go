package secure

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Alphabet is the default symbol set for generated secrets.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// MaxLength bounds a single generated string.
const MaxLength = 1 << 20

var (
	ErrRandomSourceUnavailable = errors.New("random source unavailable")
	ErrInvalidLength           = errors.New("invalid length")
	ErrInvalidAlphabet         = errors.New("invalid alphabet")
)

// Source fills p with random bytes. crypto/rand.Reader satisfies it.
type Source interface {
	Read(p []byte) (int, error)
}

// Default returns the process-wide CSPRNG.
func Default() Source {
	return rand.Reader
}

// MaxAccepted returns the largest 32-bit word that can be reduced modulo b
// without bias: floor(2^32/b)*b - 1.
func MaxAccepted(b int) uint32 {
	const space = uint64(1) << 32
	return uint32(space/uint64(b)*uint64(b) - 1)
}

// String returns n characters drawn uniformly from Alphabet.
func String(src Source, n int) (string, error) {
	return StringFrom(src, Alphabet, n)
}

// StringFrom returns n symbols drawn uniformly from alphabet using
// rejection sampling over 32-bit words read from src in batches of n words.
// The alphabet must be ASCII with at least two symbols.
func StringFrom(src Source, alphabet string, n int) (string, error) {
	if n < 0 || n > MaxLength {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	b := len(alphabet)
	if b < 2 || b > 128 {
		return "", fmt.Errorf("%w: size %d", ErrInvalidAlphabet, b)
	}
	for i := 0; i < b; i++ {
		if alphabet[i] >= utf8.RuneSelf {
			return "", fmt.Errorf("%w: non-ASCII byte at %d", ErrInvalidAlphabet, i)
		}
	}
	if n == 0 {
		return "", nil
	}
	max := MaxAccepted(b)
	out := make([]byte, 0, n)
	buf := make([]byte, 4*n)
	for len(out) < n {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRandomSourceUnavailable, err)
		}
		for i := 0; i+4 <= len(buf) && len(out) < n; i += 4 {
			v := binary.BigEndian.Uint32(buf[i:])
			if v > max {
				continue
			}
			out = append(out, alphabet[v%uint32(b)])
		}
	}
	return string(out), nil
}
