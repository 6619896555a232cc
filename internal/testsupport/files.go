package testsupport

import (
	"encoding/csv"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	mkdirFor(t, path)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteJPEG encodes a w x h colour JPEG with a simple gradient.
func WriteJPEG(t testing.TB, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / max(w, 1)), G: uint8(y * 255 / max(h, 1)), B: 128, A: 255})
		}
	}
	writeImage(t, path, func(f *os.File) error {
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	})
}

// WriteGrayJPEG encodes a w x h single-channel JPEG, the layout infrared
// night captures use.
func WriteGrayJPEG(t testing.TB, path string, w, h int) {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	writeImage(t, path, func(f *os.File) error {
		return jpeg.Encode(f, img, nil)
	})
}

// WritePNG encodes a w x h PNG filled with c.
func WritePNG(t testing.TB, path string, w, h int, c color.Color) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	writeImage(t, path, func(f *os.File) error {
		return png.Encode(f, img)
	})
}

// DefaultHeader returns the metadata header matching the default column names.
func DefaultHeader() []string {
	return []string{"Image Name", "Date", "Camera Trap Station Label", "Species", "Photo Type "}
}

// WriteCSV writes header and records to path.
func WriteCSV(t testing.TB, path string, header []string, records [][]string) {
	t.Helper()

	mkdirFor(t, path)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.WriteAll(records); err != nil {
		t.Fatalf("write records: %v", err)
	}
}

func writeImage(t testing.TB, path string, encode func(*os.File) error) {
	t.Helper()

	mkdirFor(t, path)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := encode(f); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func mkdirFor(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
}
