package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"thingcraft.ai/internal/render"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// SetClock replaces the clock used to pick the hourly file.
func (w *JSONLZstdWriter) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

func (w *JSONLZstdWriter) clock() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// Files lists the log files written so far in name order.
func (w *JSONLZstdWriter) Files() ([]string, error) {
	return filepath.Glob(filepath.Join(w.baseDir, w.prefix+"-*.jsonl.zst"))
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// RenderEntry is one journaled backend write.
type RenderEntry struct {
	Time  time.Time `json:"time"`
	Scene string    `json:"scene,omitempty"`
	Op    render.Op `json:"op"`
}

// RenderLogger journals accepted backend writes (compressed). It satisfies
// render.Journal.
type RenderLogger struct {
	w     *JSONLZstdWriter
	scene string
}

func NewRenderLogger(dataDir, scene string) *RenderLogger {
	return &RenderLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "journal"), "render"), scene: scene}
}

func (l *RenderLogger) WriteOp(op render.Op) error {
	return l.w.Write(RenderEntry{Time: l.w.clock().UTC(), Scene: l.scene, Op: op})
}
func (l *RenderLogger) Writer() *JSONLZstdWriter { return l.w }
func (l *RenderLogger) Close() error             { return l.w.Close() }

// BuildEntry records one thing lifecycle action.
type BuildEntry struct {
	Time    time.Time `json:"time"`
	Scene   string    `json:"scene"`
	Thing   string    `json:"thing"`
	Name    string    `json:"name,omitempty"`
	Action  string    `json:"action"`
	Min     [3]int    `json:"min"`
	Max     [3]int    `json:"max"`
	Voxels  int       `json:"voxels"`
	Digest  string    `json:"digest,omitempty"`
	Message string    `json:"message,omitempty"`
}

// AuditLogger writes thing lifecycle entries (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteBuild(v BuildEntry) error {
	if v.Time.IsZero() {
		v.Time = l.w.clock().UTC()
	}
	return l.w.Write(v)
}
func (l *AuditLogger) Writer() *JSONLZstdWriter { return l.w }
func (l *AuditLogger) Close() error             { return l.w.Close() }

// ReadJSONL decodes every line of a zstd-compressed JSONL file into fn.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
