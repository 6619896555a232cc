package imagemeta

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"math"
	"os"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ErrEmptyImage reports an image whose header declares no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Info is the result of probing one image file.
type Info struct {
	Width     int
	Height    int
	Format    string
	Grayscale bool
	// Sums is populated only when the Prober collects statistics.
	Sums *ChannelSums
}

// Prober reads image metadata from disk.
type Prober struct {
	// Stats enables full decoding to accumulate per-channel sums.
	Stats bool
}

// Probe reads path. The context is checked before the file is opened and
// between rows when decoding pixels.
func (p Prober) Probe(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	cfg, format, err := image.DecodeConfig(reader)
	if err != nil {
		return Info{}, fmt.Errorf("decode %s header: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%s: %w (%dx%d)", path, ErrEmptyImage, cfg.Width, cfg.Height)
	}
	info := Info{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		Grayscale: isGrayModel(cfg.ColorModel),
	}
	if !p.Stats {
		return info, nil
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return Info{}, fmt.Errorf("rewind image: %w", err)
	}
	img, _, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return Info{}, fmt.Errorf("decode %s: %w", path, err)
	}
	sums, err := accumulate(ctx, img)
	if err != nil {
		return Info{}, err
	}
	info.Sums = &sums
	return info, nil
}

func isGrayModel(model color.Model) bool {
	return model == color.GrayModel || model == color.Gray16Model
}

// ChannelSums holds running sums for R, G and B on a 0-1 scale.
type ChannelSums struct {
	Sum    [3]float64
	SumSq  [3]float64
	Pixels int64
}

// Add folds other into s.
func (s *ChannelSums) Add(other ChannelSums) {
	for ch := range 3 {
		s.Sum[ch] += other.Sum[ch]
		s.SumSq[ch] += other.SumSq[ch]
	}
	s.Pixels += other.Pixels
}

// MeanStd returns per-channel mean and population standard deviation. ok is
// false when no pixels were accumulated.
func (s ChannelSums) MeanStd() (mean, std [3]float64, ok bool) {
	if s.Pixels == 0 {
		return mean, std, false
	}
	n := float64(s.Pixels)
	for ch := range 3 {
		m := s.Sum[ch] / n
		variance := s.SumSq[ch]/n - m*m
		if variance < 0 {
			variance = 0
		}
		mean[ch] = m
		std[ch] = math.Sqrt(variance)
	}
	return mean, std, true
}

func accumulate(ctx context.Context, img image.Image) (ChannelSums, error) {
	var sums ChannelSums
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		if err := ctx.Err(); err != nil {
			return ChannelSums{}, err
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			values := [3]float64{float64(r) / 0xffff, float64(g) / 0xffff, float64(b) / 0xffff}
			for ch, v := range values {
				sums.Sum[ch] += v
				sums.SumSq[ch] += v * v
			}
		}
	}
	sums.Pixels = int64(bounds.Dx()) * int64(bounds.Dy())
	return sums, nil
}
