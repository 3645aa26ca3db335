// Package geometry turns a level into renderable data: world placement for
// every cell and hexagonal column meshes. It produces data, not draw calls.
package geometry

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/talgya/system-tactics/internal/hexgrid"
	"github.com/talgya/system-tactics/internal/level"
)

// GridPos addresses a cell by row and column.
type GridPos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Cell is one entry of a level layout.
type Cell struct {
	Coord    hexgrid.HexCoord `json:"coord"`
	Row      int              `json:"row"`
	Col      int              `json:"col"`
	Height   uint32           `json:"height"`
	Position Vec3             `json:"position"`
	Mesh     *ColumnMesh      `json:"-"` // Shared between cells of equal height
}

// CellWorldPosition is the single placement function for a cell: X and Z
// from the hex layout, Y from the level's height scale. The result is the
// centre of the column's top face.
func CellWorldPosition(lvl *level.Level, layout hexgrid.Layout, row, col int) (Vec3, error) {
	h, err := lvl.Height(row, col)
	if err != nil {
		return Vec3{}, err
	}
	return place(lvl, layout, row, col, h), nil
}

func place(lvl *level.Level, layout hexgrid.Layout, row, col int, h uint32) Vec3 {
	x, z := hexgrid.ToWorldOffset(layout, hexgrid.ToAxial(layout.Orientation, row, col))
	return Vec3{X: float32(x), Y: lvl.HeightToWorld(h), Z: float32(z)}
}

// GenerateLevelLayout returns one Cell per grid cell in row-major order.
// The output depends only on the level and layout, so repeated calls are
// identical. A level failing its consistency check is a fatal defect and
// comes back as level.ErrCorrupt.
func GenerateLevelLayout(lvl *level.Level, layout hexgrid.Layout) ([]Cell, error) {
	if err := lvl.Check(); err != nil {
		return nil, fmt.Errorf("generate layout: %w", err)
	}

	cache := NewMeshCache(layout)
	cells := make([]Cell, 0, lvl.Rows()*lvl.Columns())
	lvl.Cells(func(row, col int, h uint32) bool {
		cells = append(cells, buildCell(lvl, layout, cache, row, col, h))
		return true
	})
	return cells, nil
}

// GenerateLevelLayoutParallel is GenerateLevelLayout fanned out over
// workers goroutines (GOMAXPROCS when workers <= 0). Each cell is written to
// its own slot, so the output order matches the sequential version.
func GenerateLevelLayoutParallel(lvl *level.Level, layout hexgrid.Layout, workers int) ([]Cell, error) {
	if err := lvl.Check(); err != nil {
		return nil, fmt.Errorf("generate layout: %w", err)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	cols := lvl.Columns()
	cells := make([]Cell, lvl.Rows()*cols)
	cache := NewMeshCache(layout)

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				row, col := i/cols, i%cols
				// In bounds by construction; Check passed above.
				h, _ := lvl.Height(row, col)
				cells[i] = buildCell(lvl, layout, cache, row, col, h)
			}
		}()
	}
	for i := range cells {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return cells, nil
}

func buildCell(lvl *level.Level, layout hexgrid.Layout, cache *MeshCache, row, col int, h uint32) Cell {
	return Cell{
		Coord:    hexgrid.ToAxial(layout.Orientation, row, col),
		Row:      row,
		Col:      col,
		Height:   h,
		Position: place(lvl, layout, row, col, h),
		Mesh:     cache.Get(lvl.HeightToWorld(h)),
	}
}

// WorldBounds returns the box spanned by every cell's placement point.
func WorldBounds(lvl *level.Level, layout hexgrid.Layout) Bounds {
	inf := float32(math.Inf(1))
	b := Bounds{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
	lvl.Cells(func(row, col int, h uint32) bool {
		p := place(lvl, layout, row, col, h)
		b.Min = b.Min.Min(p)
		b.Max = b.Max.Max(p)
		return true
	})
	return b
}

// CenterCells returns the one, two, or four cells at the middle of the grid,
// depending on whether each dimension is odd or even.
func CenterCells(lvl *level.Level) []GridPos {
	rows, cols := lvl.Rows(), lvl.Columns()
	r, c := rows/2, cols/2

	switch {
	case rows%2 == 1 && cols%2 == 1:
		return []GridPos{{r, c}}
	case rows%2 == 0 && cols%2 == 0:
		return []GridPos{{r - 1, c - 1}, {r - 1, c}, {r, c - 1}, {r, c}}
	case cols%2 == 0:
		return []GridPos{{r, c - 1}, {r, c}}
	default:
		return []GridPos{{r - 1, c}, {r, c}}
	}
}

// CenterWorldPosition averages the placement of the centre cells.
func CenterWorldPosition(lvl *level.Level, layout hexgrid.Layout) Vec3 {
	centers := CenterCells(lvl)
	var total Vec3
	for _, p := range centers {
		h, _ := lvl.Height(p.Row, p.Col)
		total = total.Add(place(lvl, layout, p.Row, p.Col, h))
	}
	return total.Scale(1 / float32(len(centers)))
}

// DiagonalExtent is the 3D diagonal of WorldBounds, used to fit the whole
// level into an isometric view.
func DiagonalExtent(lvl *level.Level, layout hexgrid.Layout) float32 {
	return WorldBounds(lvl, layout).Size().Length()
}
