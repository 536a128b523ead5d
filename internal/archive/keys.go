package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// PartitionPath renders the UTC partition prefix for a millisecond
// timestamp: dt=YYYY-MM-DD/HH/MM, zero-padded.
func PartitionPath(ms int64) string {
	t := time.UnixMilli(ms).UTC()
	return fmt.Sprintf("dt=%04d-%02d-%02d/%02d/%02d", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute())
}

// ObjectKey builds the raw-layer object key. The symbol is embedded as-is,
// without any escaping.
func ObjectKey(exchange, stream, symbol, partition, filename string) string {
	return fmt.Sprintf("raw/exchange=%s/stream=%s/symbol=%s/%s/%s", exchange, stream, symbol, partition, filename)
}

// FileSHA256 streams a file through SHA-256 and returns the hex digest.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NowMS returns the current UTC time in milliseconds since epoch.
func NowMS() int64 {
	return time.Now().UTC().UnixMilli()
}
