// Level generation: the default gradient map and layered simplex-noise terrain.
package level

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/system-tactics/internal/hexgrid"
)

// DefaultName is the name of the fallback level used when nothing else loads.
const DefaultName = "Default Level"

// NewGradient creates a level whose heights rise from 1 at the front-left
// corner to 4 at the back-right corner.
func NewGradient(name string, rows, columns int) (*Level, error) {
	l, err := New(name, rows, columns, 1)
	if err != nil {
		return nil, err
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < columns; col++ {
			factor := (normalized(col, columns) + normalized(row, rows)) / 2
			l.heights[row*columns+col] = 1 + uint32(math.Round(factor*3))
		}
	}
	return l, nil
}

// Default returns the 10x10 gradient fallback level.
func Default() *Level {
	l, _ := NewGradient(DefaultName, 10, 10)
	return l
}

func normalized(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}

// GenConfig holds noise terrain parameters.
type GenConfig struct {
	Name        string
	Rows        int
	Columns     int
	Seed        int64               // Random seed (0 = random)
	MaxHeight   uint32              // Tallest height level produced
	Frequency   float64             // Base noise frequency in hex-centre space
	Octaves     int                 // Noise layers, each at double frequency
	Persistence float64             // Amplitude falloff per octave
	Orientation hexgrid.Orientation // Grid convention used to sample the noise
}

// DefaultGenConfig returns a reasonable skirmish-sized map.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Name:        "Generated Level",
		Rows:        12,
		Columns:     12,
		Seed:        0,
		MaxHeight:   6,
		Frequency:   0.12,
		Octaves:     3,
		Persistence: 0.5,
		Orientation: hexgrid.PointyTop,
	}
}

// Generate creates a level from layered simplex noise. The same seed and
// configuration always produce the same heights.
func Generate(cfg GenConfig) (*Level, error) {
	if cfg.Octaves <= 0 {
		return nil, fmt.Errorf("octaves must be positive, got %d", cfg.Octaves)
	}
	if !(cfg.Persistence > 0) || math.IsInf(cfg.Persistence, 0) {
		return nil, fmt.Errorf("persistence must be positive and finite, got %v", cfg.Persistence)
	}
	if !(cfg.Frequency > 0) || math.IsInf(cfg.Frequency, 0) {
		return nil, fmt.Errorf("frequency must be positive and finite, got %v", cfg.Frequency)
	}
	if cfg.MaxHeight == 0 {
		return nil, errors.New("max height must be at least 1")
	}

	l, err := New(cfg.Name, cfg.Rows, cfg.Columns, 0)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	noise := opensimplex.NewNormalized(seed)

	// Sample in unit-radius world space so neighbouring hexes get
	// neighbouring noise values regardless of row offset.
	unit := hexgrid.Layout{Orientation: cfg.Orientation, CellRadius: 1}
	for row := 0; row < cfg.Rows; row++ {
		for col := 0; col < cfg.Columns; col++ {
			x, z := hexgrid.ToWorldOffset(unit, hexgrid.ToAxial(cfg.Orientation, row, col))
			elev := octaveNoise(noise, x, z, cfg.Octaves, cfg.Frequency, cfg.Persistence)
			l.heights[row*cfg.Columns+col] = uint32(math.Round(elev * float64(cfg.MaxHeight)))
		}
	}
	return l, nil
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	v := total / maxVal
	return math.Min(math.Max(v, 0), 1)
}
