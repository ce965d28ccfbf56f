package landmark

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"
)

// textureImage renders a deterministic mosaic of random gray blocks. The
// block corners give the FAST detector plenty of distinctive keypoints.
func textureImage(seed int64, w, h int) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))

	const block = 8
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			v := color.Gray{Y: uint8(rng.Intn(256))}
			for y := by; y < by+block && y < h; y++ {
				for x := bx; x < bx+block && x < w; x++ {
					img.SetGray(x, y, v)
				}
			}
		}
	}
	return img
}

func blankImage(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	test.That(t, png.Encode(&buf, img), test.ShouldBeNil)
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	test.That(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}), test.ShouldBeNil)
	return buf.Bytes()
}

func writeRef(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	test.That(t, os.WriteFile(path, data, 0o644), test.ShouldBeNil)
	return path
}

func newTestRecognizer(t *testing.T, dir string) *Recognizer {
	t.Helper()
	conf := &Config{ReferenceDir: dir}
	conf.setDefaults()
	return NewRecognizer(conf, logging.NewTestLogger(t))
}
