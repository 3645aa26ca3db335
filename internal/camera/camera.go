// Package camera holds the isometric tactical camera state. It reads level
// extents to frame the map and bound movement, but never mutates the level.
package camera

import (
	"errors"
	"log/slog"
	"math"

	"github.com/talgya/system-tactics/internal/geometry"
	"github.com/talgya/system-tactics/internal/hexgrid"
	"github.com/talgya/system-tactics/internal/level"
)

// Tuning constants for the orthographic tactical view.
const (
	DefaultYaw   = -30.0 // degrees around Y
	DefaultPitch = -30.0 // degrees around X; negative looks down
	FocusHeight  = 20.0  // camera height above the focus point
	FramePadding = 3.0   // world units added to the level diagonal
	MoveSpeed    = 10.0  // world units per second
	ZoomSpeed    = 0.0001
	MinScale     = 0.005
	MaxScale     = 0.05
	DefaultScale = 0.1
)

// ErrNotLookingDown is returned when framing with a pitch that never meets
// the ground plane.
var ErrNotLookingDown = errors.New("camera pitch must look downward")

// Viewport is the render target size in pixels.
type Viewport struct {
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// State is the camera for one session. Position is derived from Focus, the
// viewing angles, and FocusHeight.
type State struct {
	Focus    geometry.Vec3   `json:"focus"`
	Position geometry.Vec3   `json:"position"`
	Yaw      float64         `json:"yaw"`
	Pitch    float64         `json:"pitch"`
	Scale    float32         `json:"scale"`
	MinScale float32         `json:"min_scale"`
	MaxScale float32         `json:"max_scale"`
	Bounds   geometry.Bounds `json:"bounds"`
}

// Default returns the unframed starting camera. Its zoom range is widened
// to include DefaultScale, the same way FrameLevel widens it for a framed level.
func Default() State {
	s := State{
		Focus:    geometry.Vec3{X: 4.5, Z: -4.5},
		Yaw:      DefaultYaw,
		Pitch:    DefaultPitch,
		Scale:    DefaultScale,
		MinScale: MinScale,
		MaxScale: max(MaxScale, DefaultScale),
	}
	s.Bounds = geometry.Bounds{Min: s.Focus, Max: s.Focus}
	s.updatePosition()
	return s
}

// ForLevel returns a default camera framed on lvl.
func ForLevel(lvl *level.Level, layout hexgrid.Layout, vp Viewport) (State, error) {
	s := Default()
	if err := s.FrameLevel(lvl, layout, vp); err != nil {
		return State{}, err
	}
	return s, nil
}

// Forward returns the unit view direction for the current yaw and pitch.
func (s *State) Forward() geometry.Vec3 {
	yaw, pitch := radians(s.Yaw), radians(s.Pitch)
	return geometry.Vec3{
		X: float32(-math.Cos(pitch) * math.Sin(yaw)),
		Y: float32(math.Sin(pitch)),
		Z: float32(-math.Cos(pitch) * math.Cos(yaw)),
	}
}

// Right returns the unit right vector, always horizontal.
func (s *State) Right() geometry.Vec3 {
	yaw := radians(s.Yaw)
	return geometry.Vec3{X: float32(math.Cos(yaw)), Z: float32(-math.Sin(yaw))}
}

// FrameLevel centres the camera on the level and picks an orthographic scale
// that fits the padded 3D diagonal into the viewport. When the camera is
// rotated a quarter turn the viewport height is the limiting dimension.
func (s *State) FrameLevel(lvl *level.Level, layout hexgrid.Layout, vp Viewport) error {
	if s.Forward().Y >= 0 {
		return ErrNotLookingDown
	}

	s.Focus = geometry.CenterWorldPosition(lvl, layout)
	s.Bounds = geometry.WorldBounds(lvl, layout)
	s.updatePosition()

	portrait := s.isPortrait()
	size := vp.Width
	if portrait {
		size = vp.Height
	}
	if size > 0 {
		s.Scale = (geometry.DiagonalExtent(lvl, layout) + FramePadding) / size
	}
	s.MinScale = MinScale
	s.MaxScale = max(MaxScale, s.Scale)

	slog.Debug("camera framed",
		"level", lvl.Name(),
		"focus", s.Focus,
		"scale", s.Scale,
		"portrait", portrait,
	)
	return nil
}

// Move pans the focus parallel to the ground. forward and right are input
// axes in [-1, 1]; dt is seconds. The focus stays inside the level bounds.
func (s *State) Move(forward, right, dt float32) {
	f := s.Forward()
	planar := geometry.Vec3{X: f.X, Z: f.Z}.Normalize()
	delta := planar.Scale(forward).Add(s.Right().Scale(right)).Scale(MoveSpeed * dt)

	s.Focus = s.Focus.Add(delta)
	s.Focus.X = clamp(s.Focus.X, s.Bounds.Min.X, s.Bounds.Max.X)
	s.Focus.Z = clamp(s.Focus.Z, s.Bounds.Min.Z, s.Bounds.Max.Z)
	s.updatePosition()
}

// Zoom applies a scroll delta. Positive delta zooms in (smaller scale).
func (s *State) Zoom(delta float32) {
	s.Scale = clamp(s.Scale-delta*ZoomSpeed, s.MinScale, s.MaxScale)
}

// updatePosition places the camera FocusHeight above the focus, backed off
// along the view ray so the ray hits the focus point.
func (s *State) updatePosition() {
	f := s.Forward()
	if f.Y >= 0 {
		return
	}
	t := FocusHeight / -f.Y
	s.Position = s.Focus.Sub(f.Scale(t))
}

func (s *State) isPortrait() bool {
	yaw := math.Mod(s.Yaw, 360)
	if yaw < 0 {
		yaw += 360
	}
	return (yaw >= 35 && yaw <= 55) || (yaw >= 215 && yaw <= 235)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
