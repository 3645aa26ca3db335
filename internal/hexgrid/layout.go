package hexgrid

import (
	"fmt"
	"math"
	"strings"
)

// Orientation selects how hexes sit on the plane. It is part of every Layout
// so game and editor code cannot disagree on it.
type Orientation uint8

const (
	PointyTop Orientation = iota // Vertex up; rows are offset (odd-r)
	FlatTop                      // Edge up; columns are offset (odd-q)
)

func (o Orientation) String() string {
	switch o {
	case PointyTop:
		return "pointy"
	case FlatTop:
		return "flat"
	default:
		return "unknown"
	}
}

// ParseOrientation accepts "pointy" or "flat" (case-insensitive).
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pointy", "pointy-top", "pointy_top":
		return PointyTop, nil
	case "flat", "flat-top", "flat_top":
		return FlatTop, nil
	}
	return PointyTop, fmt.Errorf("unknown hex orientation %q", s)
}

func (o Orientation) MarshalText() ([]byte, error) {
	if o > FlatTop {
		return nil, fmt.Errorf("invalid hex orientation %d", o)
	}
	return []byte(o.String()), nil
}

func (o *Orientation) UnmarshalText(b []byte) error {
	parsed, err := ParseOrientation(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Layout pairs an orientation with a cell radius (centre to corner).
type Layout struct {
	Orientation Orientation `json:"orientation"`
	CellRadius  float64     `json:"cell_radius"`
}

// DefaultLayout is pointy-top with unit radius.
func DefaultLayout() Layout {
	return Layout{Orientation: PointyTop, CellRadius: 1.0}
}

var sqrt3 = math.Sqrt(3.0)

// ToAxial converts grid indices to an axial coordinate.
// Pointy-top grids shift odd rows right; flat-top grids shift odd columns down.
// Total over all integers, including indices outside any level.
func ToAxial(o Orientation, row, col int) HexCoord {
	if o == FlatTop {
		return HexCoord{Q: col, R: row - (col-(col&1))/2}
	}
	return HexCoord{Q: col - (row-(row&1))/2, R: row}
}

// ToOffset is the exact inverse of ToAxial.
func ToOffset(o Orientation, h HexCoord) (row, col int) {
	if o == FlatTop {
		return h.R + (h.Q-(h.Q&1))/2, h.Q
	}
	return h.R, h.Q + (h.R-(h.R&1))/2
}

// ToWorldOffset returns the planar (x, z) centre of a cell. Each call is
// computed from the coordinate directly, so there is no accumulated drift.
func ToWorldOffset(l Layout, h HexCoord) (x, z float64) {
	q, r := float64(h.Q), float64(h.R)
	if l.Orientation == FlatTop {
		x = l.CellRadius * (1.5 * q)
		z = l.CellRadius * (sqrt3/2*q + sqrt3*r)
		return x, z
	}
	x = l.CellRadius * (sqrt3*q + sqrt3/2*r)
	z = l.CellRadius * (1.5 * r)
	return x, z
}

// FromWorld returns the cell containing the planar point (x, z).
func FromWorld(l Layout, x, z float64) HexCoord {
	if l.CellRadius <= 0 {
		return HexCoord{}
	}
	x /= l.CellRadius
	z /= l.CellRadius

	var q, r float64
	if l.Orientation == FlatTop {
		q = 2.0 / 3.0 * x
		r = -1.0/3.0*x + sqrt3/3.0*z
	} else {
		q = sqrt3/3.0*x - 1.0/3.0*z
		r = 2.0 / 3.0 * z
	}
	return cubeRound(q, r)
}

// cubeRound rounds fractional axial coordinates to the nearest cell,
// fixing whichever component drifted furthest so q + r + s stays zero.
func cubeRound(fq, fr float64) HexCoord {
	fs := -fq - fr
	q, r, s := math.Round(fq), math.Round(fr), math.Round(fs)

	dq, dr, ds := math.Abs(q-fq), math.Abs(r-fr), math.Abs(s-fs)
	if dq > dr && dq > ds {
		q = -r - s
	} else if dr > ds {
		r = -q - s
	}
	return HexCoord{Q: int(q), R: int(r)}
}

// Corners returns the six corner offsets (x, z) of a cell centred at the
// origin, in counter-clockwise order of increasing angle.
func Corners(l Layout) [6][2]float64 {
	var out [6][2]float64
	start := 30.0
	if l.Orientation == FlatTop {
		start = 0
	}
	for i := range out {
		angle := (start + 60*float64(i)) * math.Pi / 180
		out[i] = [2]float64{l.CellRadius * math.Cos(angle), l.CellRadius * math.Sin(angle)}
	}
	return out
}
