package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// hashChunkSize is the read granularity for hashing and progress reporting.
const hashChunkSize = 256 * 1024

// Sum computes the sha256 digest of r, returning the hex digest and the
// number of bytes consumed. The optional progress callback receives the
// running byte count after each chunk; it must be fast and must not block.
func Sum(r io.Reader, progress func(bytes int64)) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, werr := h.Write(buf[:n]); werr != nil {
				return "", total, fmt.Errorf("hash write: %w", werr)
			}
			if progress != nil {
				progress(total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", total, fmt.Errorf("hash read: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), total, nil
}

// SumBytes is a convenience for already-buffered content.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
