package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-boxblur/pkg/common"
	"go-boxblur/pkg/config"
)

func writePNG(t *testing.T, path string, seed int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.NRGBA{uint8(seed + x*20), uint8(y * 30), uint8(seed * 7), 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func testConfig(t *testing.T, mode string) *config.Config {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.Mkdir(in, 0755))
	for i := 1; i <= 3; i++ {
		writePNG(t, filepath.Join(in, fmt.Sprintf("image%d.png", i)), i)
	}

	cfg := config.Default()
	cfg.Mode = mode
	cfg.Workers = 2
	cfg.Input = config.InputConfig{Dir: in}
	cfg.Output = config.OutputConfig{Dir: filepath.Join(dir, "res"), Pattern: "blurred_image%d.png"}
	cfg.Stats.Dir = filepath.Join(dir, "logs")
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestRunModes(t *testing.T) {
	tests := []struct {
		mode    string
		outputs []string
	}{
		{config.ModeSequential, []string{"blurred_image1.png", "blurred_image2.png", "blurred_image3.png"}},
		{config.ModeParallel, []string{"blurred_image1.png", "blurred_image2.png", "blurred_image3.png"}},
		{config.ModeCompare, []string{
			"sequential/blurred_image1.png", "sequential/blurred_image3.png",
			"parallel/blurred_image1.png", "parallel/blurred_image3.png",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := testConfig(t, tt.mode)
			require.NoError(t, run(context.Background(), cfg, "test"))

			for _, name := range tt.outputs {
				assert.FileExists(t, filepath.Join(cfg.Output.Dir, name))
			}
			logs, err := os.ReadDir(cfg.Stats.Dir)
			require.NoError(t, err)
			assert.Len(t, logs, 1)
		})
	}
}

func TestRunEmptyInputDir(t *testing.T) {
	cfg := testConfig(t, config.ModeParallel)
	cfg.Input.Dir = t.TempDir()

	err := run(context.Background(), cfg, "test")
	assert.ErrorIs(t, err, common.ErrNoInput)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
