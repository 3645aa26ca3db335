package geometry

import (
	"fmt"
	"math"
	"testing"

	"github.com/talgya/system-tactics/internal/hexgrid"
)

func posKey(v Vec3) string {
	return fmt.Sprintf("%.4f,%.4f,%.4f", v.X, v.Y, v.Z)
}

// checkClosed welds vertices by position and verifies every directed edge is
// matched by exactly one reverse edge: the surface is closed and consistently
// wound.
func checkClosed(t *testing.T, m *ColumnMesh) {
	t.Helper()
	edges := make(map[[2]string]int)
	for i := 0; i < len(m.Indices); i += 3 {
		tri := [3]string{
			posKey(m.Vertices[m.Indices[i]]),
			posKey(m.Vertices[m.Indices[i+1]]),
			posKey(m.Vertices[m.Indices[i+2]]),
		}
		for k := 0; k < 3; k++ {
			edges[[2]string{tri[k], tri[(k+1)%3]}]++
		}
	}
	for e, n := range edges {
		if n != 1 {
			t.Fatalf("directed edge %v used %d times", e, n)
		}
		if edges[[2]string{e[1], e[0]}] != 1 {
			t.Fatalf("edge %v has no matching reverse edge", e)
		}
	}
}

func TestColumnMeshClosedAndOutwardFacing(t *testing.T) {
	for _, o := range []hexgrid.Orientation{hexgrid.PointyTop, hexgrid.FlatTop} {
		for _, h := range []float32{0.5, 1, 4} {
			t.Run(fmt.Sprintf("%s/%v", o, h), func(t *testing.T) {
				m := GenerateColumnMesh(h, hexgrid.Layout{Orientation: o, CellRadius: 1})
				if len(m.Vertices) != meshVertices || len(m.Normals) != meshVertices || len(m.UVs) != meshVertices {
					t.Fatalf("got %d vertices, %d normals, %d uvs", len(m.Vertices), len(m.Normals), len(m.UVs))
				}
				if m.TriangleCount() != meshTriangles {
					t.Fatalf("got %d triangles, want %d", m.TriangleCount(), meshTriangles)
				}
				checkClosed(t, m)

				for i := 0; i < len(m.Indices); i += 3 {
					a, b, c := m.Vertices[m.Indices[i]], m.Vertices[m.Indices[i+1]], m.Vertices[m.Indices[i+2]]
					face := b.Sub(a).Cross(c.Sub(a))
					if face.Dot(m.Normals[m.Indices[i]]) <= 0 {
						t.Fatalf("triangle %d winds against its normal", i/3)
					}
				}

				for _, v := range m.Vertices {
					if v.Y > 0 || v.Y < -h {
						t.Fatalf("vertex %v outside [-%v, 0]", v, h)
					}
				}
			})
		}
	}
}

func TestColumnMeshZeroHeight(t *testing.T) {
	m := GenerateColumnMesh(0, hexgrid.DefaultLayout())
	if len(m.Vertices) != meshVertices || m.TriangleCount() != meshTriangles {
		t.Fatalf("flat mesh has %d vertices, %d triangles", len(m.Vertices), m.TriangleCount())
	}
	for _, idx := range append(append([]uint16{}, m.Indices...), m.EdgeIndices...) {
		if int(idx) >= len(m.Vertices) {
			t.Fatalf("index %d out of range", idx)
		}
	}
	for i, n := range m.Normals {
		if math.Abs(float64(n.Length())-1) > 1e-5 {
			t.Fatalf("normal %d = %v is not unit length", i, n)
		}
		if v := m.Vertices[i]; v.Y != 0 {
			t.Fatalf("flat mesh vertex %v off the plane", v)
		}
	}
	if got := GenerateColumnMesh(-3, hexgrid.DefaultLayout()); got.Vertices[8].Y != 0 {
		t.Fatal("negative heights should be treated as zero")
	}
}

func TestColumnMeshOutline(t *testing.T) {
	m := GenerateColumnMesh(2, hexgrid.DefaultLayout())
	if len(m.EdgeIndices) != 36 {
		t.Fatalf("outline has %d indices, want 36 (18 segments)", len(m.EdgeIndices))
	}
	segments := make(map[[2]string]bool)
	for i := 0; i < len(m.EdgeIndices); i += 2 {
		a, b := posKey(m.Vertices[m.EdgeIndices[i]]), posKey(m.Vertices[m.EdgeIndices[i+1]])
		if a > b {
			a, b = b, a
		}
		segments[[2]string{a, b}] = true
	}
	if len(segments) != 18 {
		t.Fatalf("outline has %d distinct segments, want 18", len(segments))
	}
}

func TestMeshCacheSharesByHeight(t *testing.T) {
	c := NewMeshCache(hexgrid.DefaultLayout())
	a := c.Get(2)
	if c.Get(2) != a {
		t.Fatal("same height should return the same mesh")
	}
	if c.Get(3) == a {
		t.Fatal("different heights should not share a mesh")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}
