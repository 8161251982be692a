package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEncodeFrame(t *testing.T) {
	t.Run("re-encodes as JPEG", func(t *testing.T) {
		frame, err := EncodeFrame(encodePNG(t, 64, 48), DefaultFrameConfig())
		require.NoError(t, err)

		decoded, format, err := image.Decode(bytes.NewReader(frame.Data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 64, decoded.Bounds().Dx())
		assert.Equal(t, 64, frame.Width)
		assert.Equal(t, 48, frame.Height)
	})

	t.Run("downscales preserving aspect ratio", func(t *testing.T) {
		frame, err := EncodeFrame(encodePNG(t, 2048, 1024), DefaultFrameConfig())
		require.NoError(t, err)
		assert.Equal(t, 1024, frame.Width)
		assert.Equal(t, 512, frame.Height)
	})

	t.Run("never upscales", func(t *testing.T) {
		frame, err := EncodeFrame(encodePNG(t, 100, 80), DefaultFrameConfig())
		require.NoError(t, err)
		assert.Equal(t, 100, frame.Width)
		assert.Equal(t, 80, frame.Height)
	})

	t.Run("quality bounds the payload", func(t *testing.T) {
		data := encodePNG(t, 512, 512)

		high, err := EncodeFrame(data, FrameConfig{Quality: 95})
		require.NoError(t, err)
		low, err := EncodeFrame(data, FrameConfig{Quality: 10})
		require.NoError(t, err)
		assert.Less(t, len(low.Data), len(high.Data))
	})

	t.Run("accepts JPEG input", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 32, 32))
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, img, nil))

		frame, err := EncodeFrame(buf.Bytes(), DefaultFrameConfig())
		require.NoError(t, err)
		assert.Equal(t, 32, frame.Width)
	})

	t.Run("rejects empty and undecodable data", func(t *testing.T) {
		_, err := EncodeFrame(nil, DefaultFrameConfig())
		assert.Error(t, err)

		_, err = EncodeFrame([]byte("not an image"), DefaultFrameConfig())
		assert.Error(t, err)
	})
}

func TestFitDimensions(t *testing.T) {
	cases := []struct {
		name             string
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{"fits already", 800, 600, 1024, 1024, 800, 600},
		{"width bound", 2048, 1024, 1024, 1024, 1024, 512},
		{"height bound", 1024, 2048, 1024, 1024, 512, 1024},
		{"both bounds", 4096, 2048, 1024, 512, 1024, 512},
		{"no limits", 4096, 4096, 0, 0, 4096, 4096},
		{"degenerate stays positive", 10000, 1, 100, 100, 100, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := fitDimensions(tc.w, tc.h, tc.maxW, tc.maxH)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}
