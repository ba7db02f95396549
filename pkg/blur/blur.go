package blur

import (
	"fmt"

	"go-boxblur/pkg/common"
)

// Apply runs the 5x5 box blur over an interleaved pixel buffer and returns a
// new buffer of the same size. Each output sample is the truncated mean of
// the in-bounds samples of its window, so the divisor shrinks to as low as 9
// in the corners. The window is never padded or clamped.
func Apply(src []byte, width, height, channels int) []byte {
	if width < 1 || height < 1 || channels < 1 || len(src) != width*height*channels {
		panic(fmt.Errorf("%w: %dx%dx%d with %d bytes", common.ErrInvalidGeometry, width, height, channels, len(src)))
	}

	dst := make([]byte, len(src))
	r := common.BLUR_RADIUS
	stride := width * channels

	for y := 0; y < height; y++ {
		y0, y1 := max(0, y-r), min(height-1, y+r)
		for x := 0; x < width; x++ {
			x0, x1 := max(0, x-r), min(width-1, x+r)
			count := (y1 - y0 + 1) * (x1 - x0 + 1)

			for c := 0; c < channels; c++ {
				sum := 0
				for ny := y0; ny <= y1; ny++ {
					row := ny * stride
					for nx := x0; nx <= x1; nx++ {
						sum += int(src[row+nx*channels+c])
					}
				}
				dst[y*stride+x*channels+c] = uint8(sum / count)
			}
		}
	}

	return dst
}

// ApplyToTask blurs a task's buffer and returns the result as a new task
// carrying the same identity.
func ApplyToTask(task *common.ImageTask) *common.ImageTask {
	out := *task
	out.Pix = Apply(task.Pix, task.Width, task.Height, task.Channels)
	return &out
}
