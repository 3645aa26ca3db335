package geometry

import (
	"sync"

	"github.com/talgya/system-tactics/internal/hexgrid"
)

// Vertex counts of a column mesh: two capped fans plus six side quads.
const (
	capVertices   = 7
	sideVertices  = 4 * 6
	meshVertices  = 2*capVertices + sideVertices
	meshTriangles = 6 + 6 + 2*6
)

// ColumnMesh is API-neutral geometry for one hex column. Indices form a
// triangle list wound counter-clockwise seen from outside (right-handed,
// Y up). EdgeIndices form a line list over the prism's 18 edges so cell
// boundaries can be drawn with a separate material.
type ColumnMesh struct {
	Vertices    []Vec3       `json:"vertices"`
	Normals     []Vec3       `json:"normals"`
	UVs         [][2]float32 `json:"uvs"`
	Indices     []uint16     `json:"indices"`
	EdgeIndices []uint16     `json:"edge_indices"`
}

// GenerateColumnMesh builds a closed hexagonal prism. The top face sits at
// y = 0 and the bottom at y = -height, so placing the mesh at a cell's world
// position puts its top surface at the cell height and its base on the
// ground plane. Height 0 gives a flat, degenerate but well-formed prism.
func GenerateColumnMesh(height float32, layout hexgrid.Layout) *ColumnMesh {
	if height < 0 {
		height = 0
	}

	corners := hexgrid.Corners(layout)
	var ring [6]Vec3
	var uv [6][2]float32
	for i, c := range corners {
		ring[i] = Vec3{X: float32(c[0]), Z: float32(c[1])}
		// Cap UVs map the hex into the unit square.
		r := layout.CellRadius
		uv[i] = [2]float32{float32(0.5 + c[0]/(2*r)), float32(0.5 + c[1]/(2*r))}
	}

	m := &ColumnMesh{
		Vertices:    make([]Vec3, 0, meshVertices),
		Normals:     make([]Vec3, 0, meshVertices),
		UVs:         make([][2]float32, 0, meshVertices),
		Indices:     make([]uint16, 0, 3*meshTriangles),
		EdgeIndices: make([]uint16, 0, 2*18),
	}

	up := Vec3{Y: 1}
	down := Vec3{Y: -1}
	bottom := Vec3{Y: -height}

	// Top cap: centre then corners.
	top0 := m.addVertex(Vec3{}, up, [2]float32{0.5, 0.5})
	for i := range ring {
		m.addVertex(ring[i], up, uv[i])
	}
	for i := uint16(0); i < 6; i++ {
		m.Indices = append(m.Indices, top0, top0+1+(i+1)%6, top0+1+i)
	}

	// Bottom cap faces down, so the fan winds the other way.
	bot0 := m.addVertex(bottom, down, [2]float32{0.5, 0.5})
	for i := range ring {
		m.addVertex(ring[i].Add(bottom), down, uv[i])
	}
	for i := uint16(0); i < 6; i++ {
		m.Indices = append(m.Indices, bot0, bot0+1+i, bot0+1+(i+1)%6)
	}

	// Sides: one flat-shaded quad per edge, normal through the edge midpoint.
	for i := 0; i < 6; i++ {
		j := (i + 1) % 6
		n := ring[i].Add(ring[j]).Normalize()
		base := m.addVertex(ring[i], n, [2]float32{0, 0})
		m.addVertex(ring[j], n, [2]float32{1, 0})
		m.addVertex(ring[j].Add(bottom), n, [2]float32{1, 1})
		m.addVertex(ring[i].Add(bottom), n, [2]float32{0, 1})
		m.Indices = append(m.Indices,
			base, base+2, base+3,
			base, base+1, base+2,
		)
	}

	// Outline: top rim, bottom rim, and the six vertical edges.
	for i := uint16(0); i < 6; i++ {
		j := (i + 1) % 6
		m.EdgeIndices = append(m.EdgeIndices,
			top0+1+i, top0+1+j,
			bot0+1+i, bot0+1+j,
			top0+1+i, bot0+1+i,
		)
	}

	return m
}

func (m *ColumnMesh) addVertex(p, n Vec3, uv [2]float32) uint16 {
	m.Vertices = append(m.Vertices, p)
	m.Normals = append(m.Normals, n)
	m.UVs = append(m.UVs, uv)
	return uint16(len(m.Vertices) - 1)
}

// TriangleCount returns the number of triangles in Indices.
func (m *ColumnMesh) TriangleCount() int { return len(m.Indices) / 3 }

// MeshCache shares one mesh per distinct world height, since every column
// of a given height and layout is identical. Safe for concurrent use.
type MeshCache struct {
	layout hexgrid.Layout

	mu     sync.Mutex
	meshes map[float32]*ColumnMesh
}

// NewMeshCache creates an empty cache for one layout.
func NewMeshCache(layout hexgrid.Layout) *MeshCache {
	return &MeshCache{layout: layout, meshes: make(map[float32]*ColumnMesh)}
}

// Get returns the shared mesh for a world height, building it on first use.
func (c *MeshCache) Get(height float32) *ColumnMesh {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.meshes[height]
	if !ok {
		m = GenerateColumnMesh(height, c.layout)
		c.meshes[height] = m
	}
	return m
}

// Len returns the number of distinct meshes built.
func (c *MeshCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.meshes)
}
