package codec

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-boxblur/pkg/common"
)

func TestChannelDetection(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))

	opaque := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}

	translucent := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	translucent.SetNRGBA(0, 0, color.NRGBA{R: 10, A: 128})

	assert.Equal(t, 1, channelsOf(gray))
	assert.Equal(t, 3, channelsOf(opaque))
	assert.Equal(t, 4, channelsOf(translucent))
}

func TestPixelsRoundTrip(t *testing.T) {
	for _, channels := range []int{1, 3, 4} {
		pix := make([]byte, 4*3*channels)
		for i := range pix {
			pix[i] = byte(i * 13)
		}
		if channels == 4 {
			for i := 3; i < len(pix); i += 4 {
				pix[i] = 200
			}
		}

		img, err := FromPixels(pix, 4, 3, channels)
		require.NoError(t, err)

		got, w, h, c := ToPixels(img)
		assert.Equal(t, 4, w)
		assert.Equal(t, 3, h)
		assert.Equal(t, channels, c)
		assert.Equal(t, pix, got, "channels=%d", channels)
	}
}

func TestFromPixelsRejectsBadGeometry(t *testing.T) {
	_, err := FromPixels(make([]byte, 5), 2, 2, 1)
	assert.ErrorIs(t, err, common.ErrInvalidGeometry)

	_, err = FromPixels(make([]byte, 8), 2, 2, 2)
	assert.ErrorIs(t, err, common.ErrInvalidGeometry)
}

func TestPNGFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")

	task := common.NewImageTask(0, "mem", make([]byte, 5*4*3), 5, 4, 3)
	for i := range task.Pix {
		task.Pix[i] = byte(i)
	}

	var f File
	require.NoError(t, f.Encode(path, task, common.DEFAULT_QUALITY))

	got, err := f.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, path, got.Source)
	assert.Equal(t, 3, got.Channels)
	assert.Equal(t, task.Pix, got.Pix)
}

func TestJPEGEncodeWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blurred_image1.jpg")

	task := common.NewImageTask(0, "mem", make([]byte, 16*16), 16, 16, 1)
	var f File
	require.NoError(t, f.Encode(path, task, common.DEFAULT_QUALITY))

	got, err := f.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 16, got.Width)
	assert.Equal(t, 16, got.Height)
}

func TestDecodeFailures(t *testing.T) {
	dir := t.TempDir()
	var f File

	_, err := f.Decode(filepath.Join(dir, "missing.jpg"))
	assert.ErrorIs(t, err, common.ErrDecode)

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0644))
	_, err = f.Decode(garbage)
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestEncodeFailures(t *testing.T) {
	dir := t.TempDir()
	task := common.NewImageTask(0, "mem", make([]byte, 4), 2, 2, 1)
	var f File

	err := f.Encode(filepath.Join(dir, "out.tiff"), task, 90)
	assert.ErrorIs(t, err, common.ErrEncode)

	err = f.Encode(filepath.Join(dir, "no", "such", "dir.png"), task, 90)
	assert.ErrorIs(t, err, common.ErrEncode)
}
