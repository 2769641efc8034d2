package grid

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/phil-mansfield/table"
)

// Format selects a text layout for grid files.
type Format int

const (
	// FormatCells is one "x y z i j k d" record per line.
	FormatCells Format = iota
	// FormatBatty is a three-line header, "nx ny nz", "ox oy oz" and
	// "cellSize", followed by nx*ny*nz samples one per line, x fastest.
	// The origin is always read as zero, so only grids with a zero origin
	// can be written in it.
	FormatBatty
	// FormatBinary is the zstd-compressed cache written by WriteBinary.
	FormatBinary
)

// ParseFormat maps "cells", "batty" and "binary" to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "cells", "a", "":
		return FormatCells, nil
	case "batty", "b":
		return FormatBatty, nil
	case "binary", "sdfz":
		return FormatBinary, nil
	}
	return 0, fmt.Errorf("grid: unknown format %q", s)
}

func (f Format) String() string {
	switch f {
	case FormatCells:
		return "cells"
	case FormatBatty:
		return "batty"
	case FormatBinary:
		return "binary"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Ext is the file extension Save output is usually given.
func (f Format) Ext() string {
	if f == FormatBinary {
		return ".sdfz"
	}
	return ".sdf"
}

// FormatOf guesses the format of path from its extension: ".sdfz" is
// binary, ".batty" is Batty and anything else is cells.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sdfz":
		return FormatBinary
	case ".batty":
		return FormatBatty
	}
	return FormatCells
}

// Load reads a grid file in the given format. A file that cannot be opened
// is logged and returned as an error.
func Load(path string, f Format) (*Grid, error) {
	switch f {
	case FormatCells:
		return LoadCells(path)
	case FormatBatty:
		return LoadBatty(path)
	case FormatBinary:
		return LoadBinary(path)
	}
	return nil, fmt.Errorf("grid: unknown format %v", f)
}

// Save writes g to path in the given format. A grid that cannot be stored
// in f is rejected before path is created.
func Save(path string, g *Grid, f Format) error {
	if f == FormatBatty {
		if err := checkBatty(g); err != nil {
			return fmt.Errorf("grid: save %s: %w", path, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	switch f {
	case FormatCells:
		err = WriteCells(file, g)
	case FormatBatty:
		err = WriteBatty(file, g)
	case FormatBinary:
		err = WriteBinary(file, g)
	default:
		err = fmt.Errorf("grid: unknown format %v", f)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("grid: save %s: %w", path, err)
	}
	return nil
}

// LoadCells reads a "x y z i j k d" file. The extents are one more than the
// largest index on each axis; the origin and cell size are recovered from
// the recorded positions, which needs two records with different indices.
// Cells missing from the file stay at Sentinel.
func LoadCells(path string) (*Grid, error) {
	if _, err := os.Stat(path); err != nil {
		log.Printf("failed to open grid file %s: %v", path, err)
		return nil, fmt.Errorf("grid: %w", err)
	}
	cols, err := table.ReadTable(path, []int{0, 1, 2, 3, 4, 5, 6}, nil)
	if err != nil {
		return nil, fmt.Errorf("grid: read %s: %w", path, err)
	}
	xs, ys, zs := cols[0], cols[1], cols[2]
	is, js, ks, ds := cols[3], cols[4], cols[5], cols[6]
	if len(ds) == 0 {
		return nil, fmt.Errorf("%w: %s has no records", ErrDimensions, path)
	}

	var dims [3]int
	for r := range ds {
		idx := [3]int{int(is[r]), int(js[r]), int(ks[r])}
		for a := 0; a < 3; a++ {
			if idx[a] < 0 {
				return nil, fmt.Errorf("%w: record %d has negative index %v", ErrDimensions, r+1, idx)
			}
			if idx[a]+1 > dims[a] {
				dims[a] = idx[a] + 1
			}
		}
	}

	// The spacing comes from the first record whose index differs from the
	// first record's on some axis; the origin from the first record.
	cs := 0.0
	pos := [3][]float64{xs, ys, zs}
	idx := [3][]float64{is, js, ks}
spacing:
	for r := 1; r < len(ds); r++ {
		for a := 0; a < 3; a++ {
			if di := idx[a][r] - idx[a][0]; di != 0 {
				cs = (pos[a][r] - pos[a][0]) / di
				break spacing
			}
		}
	}
	if !(cs > 0) {
		return nil, fmt.Errorf("%w: cannot recover the cell size of %s", ErrDimensions, path)
	}
	origin := v3.Vec{X: xs[0], Y: ys[0], Z: zs[0]}.Sub(v3.Vec{X: is[0], Y: js[0], Z: ks[0]}.MulScalar(cs))

	g, err := New(origin, cs, dims)
	if err != nil {
		return nil, fmt.Errorf("grid: %s: %w", path, err)
	}
	for r := range ds {
		g.cells[g.Index(int(is[r]), int(js[r]), int(ks[r]))].Distance = ds[r]
	}
	return g, nil
}

// WriteCells writes g as "x y z i j k d" records in flat-index order.
func WriteCells(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	for _, c := range g.cells {
		fmt.Fprintf(bw, "%g %g %g %d %d %d %g\n",
			c.Pos.X, c.Pos.Y, c.Pos.Z, c.Index[0], c.Index[1], c.Index[2], c.Distance)
	}
	return bw.Flush()
}

// LoadBatty reads a Batty-style grid file.
func LoadBatty(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("failed to open grid file %s: %v", path, err)
		return nil, fmt.Errorf("grid: %w", err)
	}
	defer f.Close()
	g, err := ReadBatty(f)
	if err != nil {
		return nil, fmt.Errorf("grid: %s: %w", path, err)
	}
	return g, nil
}

// ReadBatty parses a Batty-style grid. The header origin is discarded and
// the grid is placed at (0, 0, 0).
func ReadBatty(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)
	next := func(what string) (float64, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("%w: unexpected end of data reading %s", ErrDimensions, what)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return 0, fmt.Errorf("bad %s %q", what, sc.Text())
		}
		return v, nil
	}

	var header [7]float64
	names := [7]string{"nx", "ny", "nz", "origin x", "origin y", "origin z", "cell size"}
	for i := range header {
		v, err := next(names[i])
		if err != nil {
			return nil, err
		}
		header[i] = v
	}
	dims := [3]int{int(header[0]), int(header[1]), int(header[2])}
	g, err := New(v3.Vec{}, header[6], dims)
	if err != nil {
		return nil, err
	}
	for i := range g.cells {
		d, err := next(fmt.Sprintf("sample %d", i))
		if err != nil {
			return nil, err
		}
		g.cells[i].Distance = d
	}
	return g, nil
}

// WriteBatty writes g in the Batty layout. Readers place every Batty grid
// at the zero origin, so a grid with any other origin is refused with
// ErrDimensions instead of being written shifted.
func WriteBatty(w io.Writer, g *Grid) error {
	if err := checkBatty(g); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n%g %g %g\n%g\n",
		g.Cells[0], g.Cells[1], g.Cells[2],
		g.Origin.X, g.Origin.Y, g.Origin.Z, g.CellSize)
	for _, c := range g.cells {
		fmt.Fprintf(bw, "%g\n", c.Distance)
	}
	return bw.Flush()
}

func checkBatty(g *Grid) error {
	if g.Origin != (v3.Vec{}) {
		return fmt.Errorf("%w: batty grids have a zero origin, got %v; use the cells or binary format",
			ErrDimensions, g.Origin)
	}
	return nil
}

var binaryMagic = [4]byte{'S', 'D', 'F', 'Z'}

const binaryVersion uint32 = 1

// ErrBadMagic is returned when a binary grid does not start with SDFZ.
var ErrBadMagic = errors.New("grid: not an sdfz file")

type binaryHeader struct {
	Magic    [4]byte
	Version  uint32
	Cells    [3]int32
	Origin   [3]float64
	CellSize float64
}

// WriteBinary writes g as a zstd-compressed little-endian stream: header
// followed by float32 samples in flat-index order.
func WriteBinary(w io.Writer, g *Grid) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	hdr := binaryHeader{
		Magic:    binaryMagic,
		Version:  binaryVersion,
		Cells:    [3]int32{int32(g.Cells[0]), int32(g.Cells[1]), int32(g.Cells[2])},
		Origin:   [3]float64{g.Origin.X, g.Origin.Y, g.Origin.Z},
		CellSize: g.CellSize,
	}
	bw := bufio.NewWriter(enc)
	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		enc.Close()
		return err
	}
	var buf [4]byte
	for _, c := range g.cells {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(c.Distance)))
		if _, err := bw.Write(buf[:]); err != nil {
			enc.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadBinary decodes a stream written by WriteBinary.
func ReadBinary(r io.Reader) (*Grid, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var hdr binaryHeader
	if err := binary.Read(dec, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("grid: read header: %w", err)
	}
	if hdr.Magic != binaryMagic {
		return nil, ErrBadMagic
	}
	if hdr.Version != binaryVersion {
		return nil, fmt.Errorf("grid: unsupported sdfz version %d", hdr.Version)
	}
	dims := [3]int{int(hdr.Cells[0]), int(hdr.Cells[1]), int(hdr.Cells[2])}
	origin := v3.Vec{X: hdr.Origin[0], Y: hdr.Origin[1], Z: hdr.Origin[2]}
	g, err := New(origin, hdr.CellSize, dims)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(dec)
	var buf [4]byte
	for i := range g.cells {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("grid: sample %d: %w", i, err)
		}
		g.cells[i].Distance = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))
	}
	return g, nil
}

// LoadBinary reads an sdfz file from disk.
func LoadBinary(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("failed to open grid file %s: %v", path, err)
		return nil, fmt.Errorf("grid: %w", err)
	}
	defer f.Close()
	g, err := ReadBinary(f)
	if err != nil {
		return nil, fmt.Errorf("grid: %s: %w", path, err)
	}
	return g, nil
}
