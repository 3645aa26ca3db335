// Level file format: one TOML document per level.
//
//	name = "Ridge"
//	rows = 2
//	columns = 3
//	scale = 1.0
//	heights = [[1, 1, 2], [1, 3, 2]]
package level

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// FileExt is the extension of level files.
const FileExt = ".toml"

// document is the serialized shape of a Level, shared by TOML and JSON.
type document struct {
	Name    string     `toml:"name" json:"name"`
	Rows    int        `toml:"rows" json:"rows"`
	Columns int        `toml:"columns" json:"columns"`
	Scale   float32    `toml:"scale" json:"scale"`
	Heights [][]uint32 `toml:"heights" json:"heights"`
}

func (l *Level) toDocument() document {
	doc := document{
		Name:    l.name,
		Rows:    l.rows,
		Columns: l.cols,
		Scale:   l.scale,
		Heights: make([][]uint32, l.rows),
	}
	for row := range doc.Heights {
		doc.Heights[row] = append([]uint32(nil), l.heights[row*l.cols:(row+1)*l.cols]...)
	}
	return doc
}

// fromDocument validates a decoded document. Nothing is repaired: any
// mismatch between declared and actual dimensions is an error.
func fromDocument(doc document) (*Level, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformed)
	}
	if err := checkDimensions(doc.Rows, doc.Columns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(doc.Heights) != doc.Rows {
		return nil, fmt.Errorf("%w: heights has %d rows, declared %d", ErrMalformed, len(doc.Heights), doc.Rows)
	}

	l, err := New(doc.Name, doc.Rows, doc.Columns, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for row, values := range doc.Heights {
		if len(values) != doc.Columns {
			return nil, fmt.Errorf("%w: row %d has %d heights, declared %d", ErrMalformed, row, len(values), doc.Columns)
		}
		copy(l.heights[row*doc.Columns:], values)
	}

	scale := doc.Scale
	if scale == 0 {
		scale = DefaultScale
	}
	if !(scale > 0) || math.IsInf(float64(scale), 0) {
		return nil, fmt.Errorf("%w: scale %v", ErrMalformed, doc.Scale)
	}
	l.scale = scale

	return l, nil
}

// Encode writes the level as TOML.
func Encode(w io.Writer, l *Level) error {
	if err := l.Check(); err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(l.toDocument())
}

// Decode reads one TOML level. Unknown keys are rejected.
func Decode(r io.Reader) (*Level, error) {
	var doc document
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromDocument(doc)
}

// MarshalJSON encodes the level in the same shape as the TOML document.
func (l *Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.toDocument())
}

// UnmarshalJSON decodes and validates a level.
func (l *Level) UnmarshalJSON(data []byte) error {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	parsed, err := fromDocument(doc)
	if err != nil {
		return err
	}
	*l = *parsed
	return nil
}

// FileName derives a file name from a level name: "Ridge Pass" -> "ridge_pass.toml".
func FileName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "level" + FileExt
	}
	return b.String() + FileExt
}

// SaveFile writes the level to dir/filename, creating dir if needed.
func SaveFile(dir, filename string, l *Level) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create level dir: %w", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, l); err != nil {
		return fmt.Errorf("encode level %q: %w", l.Name(), err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write level: %w", err)
	}

	slog.Info("level saved", "name", l.Name(), "path", path)
	return nil
}

// LoadFile reads one level file.
func LoadFile(path string) (*Level, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open level: %w", err)
	}
	defer f.Close()

	l, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return l, nil
}

// ReadDirectory loads every level file in dir in file name order. Unreadable or
// malformed files are logged and skipped. A missing directory is an error.
func ReadDirectory(dir string) ([]*Level, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read levels dir: %w", err)
	}

	var levels []*Level
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != FileExt {
			continue
		}
		l, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Warn("skipping level file", "file", e.Name(), "error", err)
			continue
		}
		slog.Info("level loaded", "name", l.Name(), "rows", l.Rows(), "columns", l.Columns())
		levels = append(levels, l)
	}
	return levels, nil
}

// LoadDirectory builds a catalog from ReadDirectory. A missing directory, or
// one with no valid levels, yields DefaultCatalog.
func LoadDirectory(dir string) (*Catalog, error) {
	slog.Info("loading levels", "dir", dir)

	levels, err := ReadDirectory(dir)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("levels directory not found, using default level", "dir", dir)
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, err
	}

	if len(levels) == 0 {
		slog.Warn("no valid level files found, using default level", "dir", dir)
		return DefaultCatalog(), nil
	}

	c := NewCatalog(levels...)
	slog.Info("levels loaded", "count", c.Len())
	return c, nil
}
