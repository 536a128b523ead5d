package segment

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// compressFile gzips rawPath into rawPath+".gz" and returns the archive
// path together with the uncompressed and compressed byte sizes.
func compressFile(rawPath string) (gzPath string, rawSize, gzSize int64, err error) {
	gzPath = rawPath + ".gz"

	in, err := os.Open(rawPath)
	if err != nil {
		return "", 0, 0, fmt.Errorf("open %s: %w", rawPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(gzPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, 0, fmt.Errorf("create %s: %w", gzPath, err)
	}

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		out.Close()
		return "", 0, 0, fmt.Errorf("compress %s: %w", rawPath, err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return "", 0, 0, fmt.Errorf("finish gzip %s: %w", gzPath, err)
	}
	if err := out.Close(); err != nil {
		return "", 0, 0, fmt.Errorf("close %s: %w", gzPath, err)
	}

	rawInfo, err := os.Stat(rawPath)
	if err != nil {
		return "", 0, 0, err
	}
	gzInfo, err := os.Stat(gzPath)
	if err != nil {
		return "", 0, 0, err
	}
	return gzPath, rawInfo.Size(), gzInfo.Size(), nil
}
