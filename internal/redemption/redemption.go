// Package redemption generates unique 32-character redemption keys.
package redemption

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

const keyLength = 32

var counter uint64

// GenerateKey builds one 32-character key:
//
//	prefix (<=20 chars) || random hex fill || base36(unix_ms, last 8) || base36(counter mod 36^4, last 4)
//
// The result is trimmed or right-padded with '0' to exactly keyLength.
func GenerateKey(prefix string) (string, error) {
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}

	ts := base36(uint64(time.Now().UnixMilli()))
	ts = lastN(ts, 8)

	n := atomic.AddUint64(&counter, 1) % (36 * 36 * 36 * 36)
	ctr := base36(n)
	ctr = lastN(padLeft(ctr, 4), 4)

	fillLen := keyLength - len(prefix) - len(ts) - len(ctr)
	var fill string
	if fillLen > 0 {
		raw := make([]byte, (fillLen+1)/2+1)
		if _, err := rand.Read(raw); err != nil {
			return "", fmt.Errorf("generate fill: %w", err)
		}
		fill = lastN(hex.EncodeToString(raw), fillLen)
	}

	key := prefix + fill + ts + ctr
	if len(key) > keyLength {
		key = key[:keyLength]
	}
	for len(key) < keyLength {
		key += "0"
	}
	return key, nil
}

// GenerateBatch produces n unique keys, retrying collisions against the
// existing set up to 3x the requested count before giving up.
func GenerateBatch(prefix string, n int, existing map[string]bool) ([]string, error) {
	seen := make(map[string]bool, n)
	for k := range existing {
		seen[k] = true
	}

	out := make([]string, 0, n)
	maxAttempts := n * 3
	attempts := 0
	for len(out) < n {
		if attempts >= maxAttempts {
			return nil, fmt.Errorf("redemption: could not generate %d unique keys after %d attempts", n, maxAttempts)
		}
		attempts++

		key, err := GenerateKey(prefix)
		if err != nil {
			return nil, err
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out, nil
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func base36(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [32]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base36Alphabet[n%36]
		n /= 36
	}
	return string(buf[i:])
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func padLeft(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}
