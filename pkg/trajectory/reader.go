package trajectory

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Frame is one decoded frame.
type Frame struct {
	Index     int
	Time      float64
	Positions []v3.Vec
}

// Reader decodes a bundle written by Writer.
type Reader struct {
	Manifest Manifest

	dir    string
	file   *os.File
	stream *zstd.Decoder
	header [frameHeaderSize]byte
}

// Open reads the manifest in dir and opens the frame stream.
func Open(dir string) (*Reader, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("trajectory: %w", err)
	}
	r := &Reader{dir: dir}
	if err := json.Unmarshal(data, &r.Manifest); err != nil {
		return nil, fmt.Errorf("trajectory: manifest: %w", err)
	}
	if r.Manifest.Version != 1 {
		return nil, fmt.Errorf("trajectory: unsupported bundle version %d", r.Manifest.Version)
	}

	r.file, err = os.Open(filepath.Join(dir, r.Manifest.FramesPath))
	if err != nil {
		return nil, fmt.Errorf("trajectory: %w", err)
	}
	r.stream, err = zstd.NewReader(r.file)
	if err != nil {
		r.file.Close()
		return nil, fmt.Errorf("trajectory: %w", err)
	}
	return r, nil
}

// Next decodes the next frame. It returns io.EOF after the last one.
func (r *Reader) Next() (Frame, error) {
	if _, err := io.ReadFull(r.stream, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("trajectory: frame header: %w", err)
	}
	f := Frame{
		Index: int(binary.LittleEndian.Uint64(r.header[0:8])),
		Time:  math.Float64frombits(binary.LittleEndian.Uint64(r.header[8:16])),
	}
	n := int(binary.LittleEndian.Uint32(r.header[16:20]))
	body := make([]byte, 12*n)
	if _, err := io.ReadFull(r.stream, body); err != nil {
		return Frame{}, fmt.Errorf("trajectory: frame %d: %w", f.Index, err)
	}
	f.Positions = make([]v3.Vec, n)
	for i := range f.Positions {
		c := body[12*i:]
		f.Positions[i] = v3.Vec{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(c[0:4]))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(c[4:8]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(c[8:12]))),
		}
	}
	return f, nil
}

// ReadAll decodes every remaining frame.
func (r *Reader) ReadAll() ([]Frame, error) {
	var frames []Frame
	for {
		f, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// Events decodes the whole event log.
func (r *Reader) Events() ([]Event, error) {
	f, err := os.Open(filepath.Join(r.dir, r.Manifest.EventsPath))
	if err != nil {
		return nil, fmt.Errorf("trajectory: %w", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(snappy.NewReader(f))
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return events, fmt.Errorf("trajectory: event %d: %w", len(events), err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return events, fmt.Errorf("trajectory: events: %w", err)
	}
	return events, nil
}

// Close releases the frame stream.
func (r *Reader) Close() error {
	r.stream.Close()
	return r.file.Close()
}
