// Package hexgrid provides pure coordinate math for the tactical hex lattice.
// Uses axial coordinates (q, r); the cube coordinate s is derived.
package hexgrid

import "fmt"

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q" toml:"q"`
	R int `json:"r" toml:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Add returns the component-wise sum of two coordinates.
func (h HexCoord) Add(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q + o.Q, R: h.R + o.R}
}

// Sub returns the component-wise difference h - o.
func (h HexCoord) Sub(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q - o.Q, R: h.R - o.R}
}

// Scale multiplies both components by k.
func (h HexCoord) Scale(k int) HexCoord {
	return HexCoord{Q: h.Q * k, R: h.R * k}
}

func (h HexCoord) String() string {
	return fmt.Sprintf("(%d, %d)", h.Q, h.R)
}

// NeighborDirections defines the six neighbor offsets in axial coordinates,
// counter-clockwise starting east.
var NeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
// No bounds filtering is done here; callers check against their level.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range NeighborDirections {
		result[i] = h.Add(dir)
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	d := a.Sub(b)
	return max(abs(d.Q), abs(d.R), abs(d.S()))
}

// Ring returns the cells exactly n steps from center, walking the ring
// counter-clockwise. Ring(c, 0) is just c.
func Ring(center HexCoord, n int) []HexCoord {
	if n <= 0 {
		return []HexCoord{center}
	}

	result := make([]HexCoord, 0, 6*n)
	cur := center.Add(NeighborDirections[4].Scale(n))
	for i := 0; i < 6; i++ {
		for j := 0; j < n; j++ {
			result = append(result, cur)
			cur = cur.Add(NeighborDirections[i])
		}
	}
	return result
}

// Range returns every cell within n steps of center, including center.
func Range(center HexCoord, n int) []HexCoord {
	if n < 0 {
		return nil
	}

	var result []HexCoord
	for q := -n; q <= n; q++ {
		for r := -n; r <= n; r++ {
			// Cube coordinate constraint: max(|q|,|r|,|s|) <= n
			if abs(-q-r) > n {
				continue
			}
			result = append(result, center.Add(HexCoord{Q: q, R: r}))
		}
	}
	return result
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
