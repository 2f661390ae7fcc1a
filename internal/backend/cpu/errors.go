package cpu

import (
	"fmt"

	"github.com/born-ml/vision/internal/vision"
)

func wrapOp(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// checkGradTarget validates the output extents handed to a pooling backward pass.
func checkGradTarget(op string, batch, channels, height, width int) error {
	if batch < 0 || channels <= 0 || height <= 0 || width <= 0 {
		return fmt.Errorf("%s: %w: gradient shape [%d,%d,%d,%d] needs a non-negative batch and positive extents",
			op, vision.ErrInvalidParameter, batch, channels, height, width)
	}
	return nil
}
