// Package preview renders decoded frames as 8-bit PNG images.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/caio-sobreiro/dicomizer/codec"
)

// PhotometricMonochrome1 is the interpretation whose minimum value is white.
const PhotometricMonochrome1 = "MONOCHROME1"

// Options control rendering.
type Options struct {
	// Invert renders high values dark, for MONOCHROME1 frames.
	Invert bool
	// Signed treats samples as two's complement (PixelRepresentation 1).
	Signed bool
}

// Render rescales pixels linearly to 0..255: negative samples clamp to zero
// and the largest sample maps to 255. With Invert the result is mirrored
// around its own maximum.
func Render(pixels *codec.PixelBuffer, opts Options) (image.Image, error) {
	if err := pixels.Validate(); err != nil {
		return nil, fmt.Errorf("cannot render preview: %w", err)
	}

	n := pixels.Len() * pixels.SamplesPerPixel
	values := make([]float64, n)
	maxValue := 0.0
	for i := 0; i < pixels.Len(); i++ {
		for s := 0; s < pixels.SamplesPerPixel; s++ {
			v := sampleValue(pixels, i, s, opts.Signed)
			if v < 0 {
				v = 0
			}
			values[i*pixels.SamplesPerPixel+s] = v
			if v > maxValue {
				maxValue = v
			}
		}
	}

	scaled := make([]uint8, n)
	var scaledMax uint8
	for i, v := range values {
		if maxValue > 0 {
			scaled[i] = uint8(v / maxValue * 255)
		}
		if scaled[i] > scaledMax {
			scaledMax = scaled[i]
		}
	}
	if opts.Invert {
		for i := range scaled {
			scaled[i] = scaledMax - scaled[i]
		}
	}

	rect := image.Rect(0, 0, pixels.Columns, pixels.Rows)
	if pixels.SamplesPerPixel == 1 {
		img := image.NewGray(rect)
		copy(img.Pix, scaled)
		return img, nil
	}

	img := image.NewRGBA(rect)
	for i := 0; i < pixels.Len(); i++ {
		base := i * pixels.SamplesPerPixel
		var c color.RGBA
		c.A = 255
		c.R = scaled[base]
		if pixels.SamplesPerPixel >= 3 {
			c.G = scaled[base+1]
			c.B = scaled[base+2]
		} else {
			c.G, c.B = c.R, c.R
		}
		img.SetRGBA(i%pixels.Columns, i/pixels.Columns, c)
	}
	return img, nil
}

// Encode renders pixels and writes them to w as PNG.
func Encode(w io.Writer, pixels *codec.PixelBuffer, opts Options) error {
	img, err := Render(pixels, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	return nil
}

func sampleValue(pixels *codec.PixelBuffer, i, s int, signed bool) float64 {
	raw := pixels.Sample(i, s)
	if !signed {
		return float64(raw)
	}
	if pixels.BitsAllocated == 16 {
		return float64(int16(raw))
	}
	return float64(int8(uint8(raw)))
}
