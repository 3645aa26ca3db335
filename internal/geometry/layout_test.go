package geometry

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/talgya/system-tactics/internal/hexgrid"
	"github.com/talgya/system-tactics/internal/level"
)

func mustLevel(t *testing.T, rows, cols int, h uint32) *level.Level {
	t.Helper()
	l, err := level.New("default_level", rows, cols, h)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestGenerateLevelLayoutRowMajorAndUnique(t *testing.T) {
	l, err := level.NewGradient("g", 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	cells, err := GenerateLevelLayout(l, hexgrid.DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 100 {
		t.Fatalf("got %d cells, want 100", len(cells))
	}

	seen := make(map[hexgrid.HexCoord]bool)
	for i, c := range cells {
		if c.Row != i/10 || c.Col != i%10 {
			t.Fatalf("cell %d is (%d, %d), not row-major", i, c.Row, c.Col)
		}
		if seen[c.Coord] {
			t.Fatalf("duplicate coordinate %v", c.Coord)
		}
		seen[c.Coord] = true
		if c.Mesh == nil {
			t.Fatalf("cell %d has no mesh", i)
		}
	}
}

func TestGenerateLevelLayoutDeterministic(t *testing.T) {
	l, _ := level.NewGradient("g", 10, 10)
	layout := hexgrid.DefaultLayout()

	a, err := GenerateLevelLayout(l, layout)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateLevelLayout(l, layout)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("layouts differ between runs")
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatal("layout encodings differ between runs")
	}

	p, err := GenerateLevelLayoutParallel(l, layout, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, p) {
		t.Fatal("parallel layout differs from sequential")
	}
}

func TestRaisedCellSitsHigher(t *testing.T) {
	l := mustLevel(t, 10, 10, 1)
	if err := l.SetHeight(0, 0, 5); err != nil {
		t.Fatal(err)
	}
	cells, err := GenerateLevelLayout(l, hexgrid.DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}

	byCoord := make(map[hexgrid.HexCoord]Cell)
	for _, c := range cells {
		byCoord[c.Coord] = c
	}
	raised := byCoord[hexgrid.ToAxial(hexgrid.PointyTop, 0, 0)]
	flat := byCoord[hexgrid.ToAxial(hexgrid.PointyTop, 0, 1)]
	if raised.Position.Y <= flat.Position.Y {
		t.Fatalf("raised cell Y %v not above neighbour Y %v", raised.Position.Y, flat.Position.Y)
	}
	if raised.Mesh == flat.Mesh {
		t.Fatal("different heights should not share a mesh")
	}
}

func TestCellWorldPosition(t *testing.T) {
	l := mustLevel(t, 3, 3, 2)
	_ = l.SetScale(0.5)
	layout := hexgrid.Layout{Orientation: hexgrid.FlatTop, CellRadius: 2}

	p, err := CellWorldPosition(l, layout, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	x, z := hexgrid.ToWorldOffset(layout, hexgrid.ToAxial(layout.Orientation, 1, 2))
	if p.X != float32(x) || p.Z != float32(z) || p.Y != 1 {
		t.Fatalf("position %v, want (%v, 1, %v)", p, x, z)
	}

	if _, err := CellWorldPosition(l, layout, 3, 0); !errors.Is(err, level.ErrOutOfBounds) {
		t.Fatalf("out of range error = %v", err)
	}
}

func TestCenterCells(t *testing.T) {
	tests := []struct {
		rows, cols int
		want       []GridPos
	}{
		{5, 5, []GridPos{{2, 2}}},
		{4, 4, []GridPos{{1, 1}, {1, 2}, {2, 1}, {2, 2}}},
		{5, 4, []GridPos{{2, 1}, {2, 2}}},
		{4, 5, []GridPos{{1, 2}, {2, 2}}},
		{1, 1, []GridPos{{0, 0}}},
	}
	for _, tt := range tests {
		got := CenterCells(mustLevel(t, tt.rows, tt.cols, 0))
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("CenterCells(%dx%d) = %v, want %v", tt.rows, tt.cols, got, tt.want)
		}
	}
}

func TestWorldBoundsAndExtent(t *testing.T) {
	l, _ := level.NewGradient("g", 6, 8)
	layout := hexgrid.DefaultLayout()
	b := WorldBounds(l, layout)

	cells, _ := GenerateLevelLayout(l, layout)
	for _, c := range cells {
		if !b.Contains(c.Position) {
			t.Fatalf("cell %v at %v outside bounds %v", c.Coord, c.Position, b)
		}
	}
	if b.Min.Y != 1 || b.Max.Y != 4 {
		t.Fatalf("vertical bounds %v..%v, want 1..4", b.Min.Y, b.Max.Y)
	}
	if d := DiagonalExtent(l, layout); d <= b.Size().X {
		t.Fatalf("diagonal %v shorter than width %v", d, b.Size().X)
	}

	center := CenterWorldPosition(l, layout)
	if !b.Contains(center) {
		t.Fatalf("centre %v outside bounds", center)
	}
}
