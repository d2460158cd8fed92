package output

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/fogleman/gg"
	"github.com/regen-network/open-science/internal/raster"
)

// MaxQuicklookSize bounds the longer side of a preview, in pixels.
const MaxQuicklookSize = 1024

const legendHeight = 24

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

func valueToColor(norm float64) color.RGBA {
	var r, g, b uint8
	if norm <= 0.5 {
		// Transition from blue to green
		ratio := norm / 0.5
		r = 0
		g = uint8(255 * ratio)
		b = uint8(255 * (1 - ratio))
	} else {
		// Transition from green to red
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * ratio)
		g = uint8(255 * (1 - ratio))
		b = 0
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// stretch returns the 2nd and 98th percentile of the valid (non-zero,
// finite) pixels.
func stretch(data []float64) (float64, float64, bool) {
	valid := make([]float64, 0, len(data))
	for _, v := range data {
		if v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0, 0, false
	}
	sort.Float64s(valid)
	lo := valid[int(0.02*float64(len(valid)-1))]
	hi := valid[int(0.98*float64(len(valid)-1))]
	return lo, hi, true
}

// Quicklook renders the first band of src as a colour-ramped PNG at dst.
// Zero pixels are masked and drawn black. The image is downsampled so its
// longer side is at most MaxQuicklookSize.
func Quicklook(src, dst string) error {
	data, meta, err := raster.ReadBand(src)
	if err != nil {
		return err
	}
	if meta.Width == 0 || meta.Height == 0 {
		return fmt.Errorf("%s is empty", src)
	}

	step := 1
	if longer := max(meta.Width, meta.Height); longer > MaxQuicklookSize {
		step = int(math.Ceil(float64(longer) / MaxQuicklookSize))
	}
	width := (meta.Width + step - 1) / step
	height := (meta.Height + step - 1) / step
	lo, hi, ok := stretch(data)

	dc := gg.NewContext(width, height+legendHeight)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	if ok {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := data[(y*step)*meta.Width+x*step]
				if v == 0 || math.IsNaN(v) {
					continue
				}
				c := valueToColor(normalize(v, lo, hi))
				dc.SetRGB255(int(c.R), int(c.G), int(c.B))
				dc.SetPixel(x, y)
			}
		}
	}

	// colour ramp legend with the stretch bounds
	for x := 0; x < width; x++ {
		c := valueToColor(float64(x) / float64(max(width-1, 1)))
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.DrawRectangle(float64(x), float64(height), 1, legendHeight/2)
		dc.Fill()
	}
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", lo), 2, float64(height+legendHeight)-2, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", hi), float64(width-2), float64(height+legendHeight)-2, 1, 0)

	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := dc.SavePNG(dst); err != nil {
		return fmt.Errorf("failed to save quicklook %s: %w", dst, err)
	}
	return nil
}
