package biometric

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// testImagePNG renders a small PNG with a deterministic pattern; seed shifts
// the pattern so different seeds produce visually different images.
func testImagePNG(t *testing.T, seed uint8) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*7+y*3) + seed*31})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// flatImagePNG renders a uniform image with no structure at all.
func flatImagePNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 128
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func writeTempImage(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing test image: %v", err)
	}
	return path
}
