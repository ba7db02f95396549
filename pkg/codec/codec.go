package codec

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"

	"go-boxblur/pkg/common"
)

// File decodes images from disk into interleaved pixel buffers and writes
// blurred buffers back out, choosing the format from the file extension.
type File struct{}

// Decode opens path and returns its pixels with 1 (gray), 3 (opaque colour)
// or 4 (colour with alpha) channels, keeping the source's own channel count.
func (File) Decode(path string) (*common.ImageTask, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrDecode, path, err)
	}

	pix, width, height, channels := ToPixels(img)
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: %s: empty image", common.ErrDecode, path)
	}
	return common.NewImageTask(0, path, pix, width, height, channels), nil
}

// Encode writes the task's buffer to path. quality only applies to JPEG.
func (File) Encode(path string, task *common.ImageTask, quality int) error {
	encoder, err := encoderFor(path, quality)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrEncode, path, err)
	}

	img, err := FromPixels(task.Pix, task.Width, task.Height, task.Channels)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrEncode, path, err)
	}

	if err := imgio.Save(path, img, encoder); err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrEncode, path, err)
	}
	return nil
}

func encoderFor(path string, quality int) (imgio.Encoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return imgio.JPEGEncoder(quality), nil
	case ".png":
		return imgio.PNGEncoder(), nil
	case ".bmp":
		return imgio.BMPEncoder(), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
}

// ToPixels flattens img into a row-major interleaved buffer.
func ToPixels(img image.Image) (pix []byte, width, height, channels int) {
	bounds := img.Bounds()
	width, height = bounds.Dx(), bounds.Dy()
	channels = channelsOf(img)
	pix = make([]byte, width*height*channels)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			switch channels {
			case 1:
				pix[i] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			case 3:
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
			default:
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
			}
			i += channels
		}
	}
	return pix, width, height, channels
}

// FromPixels is the inverse of ToPixels.
func FromPixels(pix []byte, width, height, channels int) (image.Image, error) {
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("%w: %d bytes for %dx%dx%d", common.ErrInvalidGeometry, len(pix), width, height, channels)
	}
	rect := image.Rect(0, 0, width, height)

	switch channels {
	case 1:
		gray := image.NewGray(rect)
		copy(gray.Pix, pix)
		return gray, nil
	case 3:
		out := image.NewNRGBA(rect)
		for i, j := 0, 0; i < len(pix); i, j = i+3, j+4 {
			out.Pix[j], out.Pix[j+1], out.Pix[j+2], out.Pix[j+3] = pix[i], pix[i+1], pix[i+2], 0xff
		}
		return out, nil
	case 4:
		out := image.NewNRGBA(rect)
		copy(out.Pix, pix)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d channels", common.ErrInvalidGeometry, channels)
	}
}

func channelsOf(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}
