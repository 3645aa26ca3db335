// Package level owns the per-cell height field of a tactical map.
// Heights are discrete, non-negative levels; HeightToWorld scales them.
package level

import (
	"fmt"
	"math"
)

// DefaultScale is one world unit per height level.
const DefaultScale float32 = 1.0

// MaxCells caps rows*columns for any level.
const MaxCells = 1 << 20

// Level is one tactical map: a name plus a rows x columns height field.
// The field is stored row-major and always holds exactly rows*columns values.
type Level struct {
	name    string
	rows    int
	cols    int
	heights []uint32
	scale   float32
}

// New creates a level filled uniformly with defaultHeight.
// Empty names, non-positive dimensions, and fields larger than MaxCells are
// rejected, never clamped.
func New(name string, rows, columns int, defaultHeight uint32) (*Level, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if err := checkDimensions(rows, columns); err != nil {
		return nil, err
	}

	heights := make([]uint32, rows*columns)
	for i := range heights {
		heights[i] = defaultHeight
	}

	return &Level{
		name:    name,
		rows:    rows,
		cols:    columns,
		heights: heights,
		scale:   DefaultScale,
	}, nil
}

func checkDimensions(rows, columns int) error {
	if rows <= 0 || columns <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, rows, columns)
	}
	if rows > MaxCells/columns {
		return fmt.Errorf("%w: %dx%d exceeds %d cells", ErrInvalidDimensions, rows, columns, MaxCells)
	}
	return nil
}

// Name returns the display name.
func (l *Level) Name() string { return l.name }

// Rows returns the number of grid rows.
func (l *Level) Rows() int { return l.rows }

// Columns returns the number of grid columns.
func (l *Level) Columns() int { return l.cols }

// Scale returns world units per height level.
func (l *Level) Scale() float32 { return l.scale }

// SetScale changes the height-to-world factor. It must be positive and finite.
func (l *Level) SetScale(s float32) error {
	if !(s > 0) || math.IsInf(float64(s), 0) {
		return fmt.Errorf("height scale must be positive, got %v", s)
	}
	l.scale = s
	return nil
}

// InBounds reports whether (row, col) addresses a cell of this level.
func (l *Level) InBounds(row, col int) bool {
	return row >= 0 && row < l.rows && col >= 0 && col < l.cols
}

func (l *Level) index(row, col int) (int, error) {
	if !l.InBounds(row, col) {
		return 0, &BoundsError{Row: row, Col: col, Rows: l.rows, Cols: l.cols}
	}
	return row*l.cols + col, nil
}

// Height returns the height level at (row, col).
func (l *Level) Height(row, col int) (uint32, error) {
	i, err := l.index(row, col)
	if err != nil {
		return 0, err
	}
	return l.heights[i], nil
}

// SetHeight replaces the height level at (row, col). No other cell changes.
func (l *Level) SetHeight(row, col int, h uint32) error {
	i, err := l.index(row, col)
	if err != nil {
		return err
	}
	l.heights[i] = h
	return nil
}

// HeightToWorld converts a height level to vertical world distance.
func (l *Level) HeightToWorld(h uint32) float32 {
	return float32(h) * l.scale
}

// MaxHeight returns the tallest height level in the field.
func (l *Level) MaxHeight() uint32 {
	var m uint32
	for _, h := range l.heights {
		m = max(m, h)
	}
	return m
}

// Check verifies the structural invariant. A failure here is a defect,
// not a recoverable condition.
func (l *Level) Check() error {
	if l == nil {
		return fmt.Errorf("%w: nil level", ErrCorrupt)
	}
	if l.rows <= 0 || l.cols <= 0 || len(l.heights) != l.rows*l.cols {
		return fmt.Errorf("%w: %dx%d with %d heights", ErrCorrupt, l.rows, l.cols, len(l.heights))
	}
	return nil
}

// Cells calls fn for every cell in row-major order, stopping early if fn
// returns false.
func (l *Level) Cells(fn func(row, col int, h uint32) bool) {
	for row := 0; row < l.rows; row++ {
		for col := 0; col < l.cols; col++ {
			if !fn(row, col, l.heights[row*l.cols+col]) {
				return
			}
		}
	}
}

// Clone returns a deep copy.
func (l *Level) Clone() *Level {
	c := *l
	c.heights = append([]uint32(nil), l.heights...)
	return &c
}

// Equal reports whether two levels have the same metadata and heights.
func (l *Level) Equal(o *Level) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.name != o.name || l.rows != o.rows || l.cols != o.cols || l.scale != o.scale {
		return false
	}
	if len(l.heights) != len(o.heights) {
		return false
	}
	for i, h := range l.heights {
		if o.heights[i] != h {
			return false
		}
	}
	return true
}

// String returns a summary of the level.
func (l *Level) String() string {
	return fmt.Sprintf("Level(%q, %dx%d, max=%d)", l.name, l.rows, l.cols, l.MaxHeight())
}
