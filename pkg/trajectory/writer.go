// Package trajectory records particle positions frame by frame into a
// bundle directory that external renderers can replay:
//
//	manifest.json    bundle description
//	frames.bin.zst   zstd stream of length-prefixed frames
//	events.jsonl.sz  snappy stream of per-frame step statistics
package trajectory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/chazu/sdfsim/pkg/particle"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

const (
	ManifestFile = "manifest.json"
	FramesFile   = "frames.bin.zst"
	EventsFile   = "events.jsonl.sz"

	// frameHeaderSize is frame index (u64), time (f64 bits), particle count (u32).
	frameHeaderSize = 8 + 8 + 4
)

var nameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manifest describes the bundle layout. Frames is filled in on Close.
type Manifest struct {
	Version    int     `json:"version"`
	Name       string  `json:"name"`
	CreatedAt  string  `json:"created_at"`
	Dt         float64 `json:"dt"`
	Every      int     `json:"every"`
	Particles  int     `json:"particles"`
	Frames     int     `json:"frames"`
	EventsPath string  `json:"events_path"`
	FramesPath string  `json:"frames_path"`
}

// Event is one line of the event log.
type Event struct {
	Frame      int     `json:"frame"`
	Time       float64 `json:"time"`
	Collisions int     `json:"collisions"`
	PushOuts   int     `json:"push_outs"`
	CapturedAt string  `json:"captured_at"`
}

// Writer streams frames and events to disk. It is safe for concurrent use.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	manifest    Manifest
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	buf         []byte
	closed      bool
}

// Options configure a new bundle.
type Options struct {
	Name      string
	Dt        float64
	Every     int
	Particles int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewWriter creates a fresh bundle directory under root, named after
// opts.Name and the creation time, and opens the compressed sinks.
func NewWriter(root string, opts Options) (*Writer, error) {
	if root == "" {
		return nil, fmt.Errorf("trajectory: root must be provided")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	name := nameCleaner.ReplaceAllString(opts.Name, "")
	if name == "" {
		name = "run"
	}
	created := clock().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", name, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trajectory: %w", err)
	}

	eventFile, err := os.Create(filepath.Join(dir, EventsFile))
	if err != nil {
		return nil, fmt.Errorf("trajectory: %w", err)
	}
	frameFile, err := os.Create(filepath.Join(dir, FramesFile))
	if err != nil {
		eventFile.Close()
		return nil, fmt.Errorf("trajectory: %w", err)
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, fmt.Errorf("trajectory: %w", err)
	}

	every := opts.Every
	if every < 1 {
		every = 1
	}
	w := &Writer{
		dir: dir,
		now: clock,
		manifest: Manifest{
			Version:    1,
			Name:       name,
			CreatedAt:  created.Format(time.RFC3339Nano),
			Dt:         opts.Dt,
			Every:      every,
			Particles:  opts.Particles,
			EventsPath: EventsFile,
			FramesPath: FramesFile,
		},
		eventFile:   eventFile,
		eventStream: snappy.NewBufferedWriter(eventFile),
		frameFile:   frameFile,
		frameStream: frameStream,
	}
	if err := w.writeManifest(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Directory is the bundle directory.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// Manifest returns a copy of the current manifest.
func (w *Writer) Manifest() Manifest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.manifest
}

// Record appends the positions of ps and the step statistics for frame.
// Frames whose index is not a multiple of Every are skipped.
func (w *Writer) Record(frame int, t float64, ps []particle.Particle, stats particle.StepStats) error {
	if w == nil {
		return fmt.Errorf("trajectory: writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("trajectory: writer closed")
	}
	if frame%w.manifest.Every != 0 {
		return nil
	}
	if err := w.appendFrameLocked(frame, t, ps); err != nil {
		return err
	}
	return w.appendEventLocked(Event{
		Frame:      frame,
		Time:       t,
		Collisions: stats.Collisions,
		PushOuts:   stats.PushOuts,
		CapturedAt: w.now().UTC().Format(time.RFC3339Nano),
	})
}

func (w *Writer) appendFrameLocked(frame int, t float64, ps []particle.Particle) error {
	need := frameHeaderSize + 12*len(ps)
	if cap(w.buf) < need {
		w.buf = make([]byte, need)
	}
	b := w.buf[:need]
	binary.LittleEndian.PutUint64(b[0:8], uint64(frame))
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(t))
	binary.LittleEndian.PutUint32(b[16:20], uint32(len(ps)))
	off := frameHeaderSize
	for _, p := range ps {
		for _, c := range [3]float64{p.Position.X, p.Position.Y, p.Position.Z} {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(float32(c)))
			off += 4
		}
	}
	if _, err := w.frameStream.Write(b); err != nil {
		return fmt.Errorf("trajectory: frame %d: %w", frame, err)
	}
	w.manifest.Frames++
	return nil
}

func (w *Writer) appendEventLocked(e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := w.eventStream.Write(line); err != nil {
		return fmt.Errorf("trajectory: event %d: %w", e.Frame, err)
	}
	return nil
}

func (w *Writer) writeManifest() error {
	data, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("trajectory: %w", err)
	}
	return nil
}

// Close flushes both streams, rewrites the manifest with the final frame
// count and releases the files. Every step is attempted; the first
// failure is returned.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(w.eventStream.Close())
	keep(w.eventFile.Close())
	keep(w.frameStream.Close())
	keep(w.frameFile.Close())
	keep(w.writeManifest())
	return firstErr
}
