package level

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when a level is given an empty name.
	ErrInvalidName = errors.New("level name must not be empty")

	// ErrInvalidDimensions is returned when rows or columns is not positive.
	ErrInvalidDimensions = errors.New("level dimensions must be positive")

	// ErrOutOfBounds matches any *BoundsError under errors.Is.
	ErrOutOfBounds = errors.New("cell out of bounds")

	// ErrCorrupt reports a height field that disagrees with its declared
	// dimensions. It is never expected and should be treated as fatal.
	ErrCorrupt = errors.New("level height field is inconsistent with its dimensions")

	// ErrMalformed is returned when a serialized level cannot be accepted.
	ErrMalformed = errors.New("malformed level document")
)

// BoundsError describes an access outside a level's grid.
type BoundsError struct {
	Row, Col   int
	Rows, Cols int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("cell (%d, %d) out of bounds for %dx%d level", e.Row, e.Col, e.Rows, e.Cols)
}

// Is lets errors.Is(err, ErrOutOfBounds) match.
func (e *BoundsError) Is(target error) bool {
	return target == ErrOutOfBounds
}
