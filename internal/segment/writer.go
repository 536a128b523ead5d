package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tickvault/internal/archive"
	"tickvault/internal/domain"
)

// Uploader is the slice of the store client the engine depends on.
type Uploader interface {
	UploadFile(ctx context.Context, path, key string) error
	UploadJSON(ctx context.Context, doc any, key string) error
}

type Config struct {
	LocalDir string
	Source   domain.Source
	MaxBytes int64         // rotation size threshold
	MaxAge   time.Duration // rotation time threshold
}

func (c *Config) withDefaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 << 20
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 5 * time.Second
	}
}

// stats is the per-segment bookkeeping carried into the manifest. Events
// missing the timestamp or id field leave the corresponding bound
// untouched.
type stats struct {
	records int64

	hasTime bool
	timeMin int64
	timeMax int64
	hasID   bool
	idFirst int64
	idLast  int64
}

func (s *stats) observe(ev domain.Event) {
	s.records++
	if ms, ok := ev.TradeTimeMS(); ok {
		if !s.hasTime {
			s.timeMin, s.timeMax = ms, ms
			s.hasTime = true
		} else {
			if ms < s.timeMin {
				s.timeMin = ms
			}
			if ms > s.timeMax {
				s.timeMax = ms
			}
		}
	}
	if id, ok := ev.TradeID(); ok {
		if !s.hasID {
			s.idFirst = id
			s.hasID = true
		}
		s.idLast = id
	}
}

// RotatingWriter owns the active segment: it appends events to a local
// jsonl file, decides rotation before each append, and on rotation drives
// the compress/checksum/upload commit pipeline. Not safe for concurrent
// use; event processing is single-threaded by design.
type RotatingWriter struct {
	cfg Config
	up  Uploader
	log *slog.Logger
	now func() time.Time

	file      *os.File
	path      string
	createdAt time.Time
	size      int64
	st        stats
}

func NewRotatingWriter(cfg Config, up Uploader, log *slog.Logger) *RotatingWriter {
	cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &RotatingWriter{cfg: cfg, up: up, log: log, now: time.Now}
}

// Write appends one event to the active segment, rotating first if the
// size or age threshold was crossed. Rotation runs the full commit
// pipeline synchronously, so a slow upload stalls the caller.
func (w *RotatingWriter) Write(ctx context.Context, ev domain.Event) error {
	var rotateErr error
	if w.shouldRotate() {
		rotateErr = w.rotate(ctx)
	}
	if w.file == nil {
		if err := w.openSegment(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("append to %s: %w", w.path, err)
	}
	w.size += int64(len(line))
	w.st.observe(ev)
	return rotateErr
}

// shouldRotate is evaluated before each append. Size is checked before
// time; either alone triggers rotation.
func (w *RotatingWriter) shouldRotate() bool {
	if w.file == nil {
		return true
	}
	if w.size >= w.cfg.MaxBytes {
		w.log.Info("rotation triggered by size", "size", w.size, "max_bytes", w.cfg.MaxBytes)
		return true
	}
	if elapsed := w.now().Sub(w.createdAt); elapsed >= w.cfg.MaxAge {
		w.log.Info("rotation triggered by time", "elapsed", elapsed, "max_age", w.cfg.MaxAge)
		return true
	}
	return false
}

func (w *RotatingWriter) openSegment() error {
	created := w.now()
	name := fmt.Sprintf("part-%s-%d.jsonl", w.cfg.Source.InstanceID, created.UTC().UnixMilli())
	path := filepath.Join(w.cfg.LocalDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", path, err)
	}
	w.file = f
	w.path = path
	w.createdAt = created
	w.size = 0
	w.st = stats{}
	w.log.Info("opened segment", "path", path)
	return nil
}

// rotate closes the active segment and commits it. It always leaves the
// writer empty; on upload failure the local segment and archive files are
// retained for replay, never discarded.
func (w *RotatingWriter) rotate(ctx context.Context) error {
	if w.file == nil {
		return nil
	}
	path, st := w.path, w.st
	if err := w.file.Close(); err != nil {
		w.log.Error("close segment", "path", path, "err", err)
	}
	w.file = nil
	w.path = ""
	w.size = 0
	w.st = stats{}

	if st.records == 0 {
		// Segment was opened but never written; drop the empty file.
		_ = os.Remove(path)
		w.log.Info("no data to rotate")
		return nil
	}

	w.log.Info("rotating segment", "path", path, "records", st.records)
	return commitSegment(ctx, w.up, w.log, w.cfg.Source, path, st)
}

// Flush forces rotation of the active segment.
func (w *RotatingWriter) Flush(ctx context.Context) error {
	w.log.Info("forcing flush")
	return w.rotate(ctx)
}

// Close flushes any buffered events and releases the writer.
func (w *RotatingWriter) Close(ctx context.Context) error {
	w.log.Info("closing writer")
	if w.file == nil {
		return nil
	}
	return w.rotate(ctx)
}

// commitSegment runs the commit pipeline for one closed segment file:
// compress, checksum, upload archive, then build and upload the manifest,
// and delete the local pair only after both uploads succeeded. A manifest
// is never published for data that was not confirmed stored.
func commitSegment(ctx context.Context, up Uploader, log *slog.Logger, src domain.Source, rawPath string, st stats) error {
	gzPath, rawSize, gzSize, err := compressFile(rawPath)
	if err != nil {
		return err
	}
	log.Info("compressed segment", "raw_bytes", rawSize, "gzip_bytes", gzSize)

	digest, err := archive.FileSHA256(gzPath)
	if err != nil {
		return err
	}

	partitionMS := st.timeMin
	if !st.hasTime {
		partitionMS = archive.NowMS()
	}
	partition := archive.PartitionPath(partitionMS)
	archiveKey := archive.ObjectKey(src.Exchange, src.Stream, src.Symbol, partition, filepath.Base(gzPath))

	if err := up.UploadFile(ctx, gzPath, archiveKey); err != nil {
		log.Error("archive upload failed, keeping local files", "path", rawPath, "err", err)
		return err
	}

	manifest := archive.BuildManifest(src, archive.ManifestPayload{
		S3Key:             archiveKey,
		RecordCount:       st.records,
		BytesUncompressed: rawSize,
		BytesGzip:         gzSize,
		TimeMinMS:         st.timeMin,
		TimeMaxMS:         st.timeMax,
		IDFirst:           st.idFirst,
		IDLast:            st.idLast,
		SHA256:            digest,
	})
	manifestName := fmt.Sprintf("manifest-%s-%d.json", src.InstanceID, partitionMS)
	manifestKey := archive.ObjectKey(src.Exchange, src.Stream, src.Symbol, partition, manifestName)

	if err := up.UploadJSON(ctx, manifest, manifestKey); err != nil {
		// The archive is durably stored but unreferenced; keep the local
		// pair so an operator or the startup replay scan can reprocess it.
		log.Error("manifest upload failed, keeping local files", "path", rawPath, "err", err)
		return err
	}

	if err := os.Remove(rawPath); err != nil {
		log.Error("remove segment file", "path", rawPath, "err", err)
	}
	if err := os.Remove(gzPath); err != nil {
		log.Error("remove archive file", "path", gzPath, "err", err)
	}
	log.Info("committed segment", "key", archiveKey, "records", st.records)
	return nil
}
