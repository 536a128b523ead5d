package segment

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tickvault/internal/domain"
)

// Replay scans dir for segment files left behind by a previous process —
// rotations whose uploads failed, or a hard kill mid-rotate — recomputes
// their statistics from the raw lines, and runs the normal commit
// pipeline for each. Files that fail to parse or to upload are kept on
// disk; replay never discards data.
func Replay(ctx context.Context, dir string, up Uploader, src domain.Source, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}

	var firstErr error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "part-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		path := filepath.Join(dir, name)
		st, err := scanStats(path)
		if err != nil {
			log.Warn("skipping unparseable leftover segment", "path", path, "err", err)
			continue
		}
		if st.records == 0 {
			log.Info("removing empty leftover segment", "path", path)
			_ = os.Remove(path)
			continue
		}
		log.Info("replaying leftover segment", "path", path, "records", st.records)
		if err := commitSegment(ctx, up, log, src, path, st); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// scanStats rebuilds segment statistics by re-reading the jsonl lines.
func scanStats(path string) (stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return stats{}, err
	}
	defer f.Close()

	var st stats
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return stats{}, fmt.Errorf("line %d: %w", st.records+1, err)
		}
		st.observe(ev)
	}
	if err := sc.Err(); err != nil {
		return stats{}, err
	}
	return st, nil
}
