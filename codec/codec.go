// Package codec decodes compressed frame payloads into pixel buffers.
// JPEG 2000 frames go through the go-dicom-codec registry; PNG, JPEG and GIF
// frames through the standard image decoders.
package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

// Photometric interpretations produced by the decoders.
const (
	Monochrome2 = "MONOCHROME2"
	RGB         = "RGB"
)

// PixelBuffer is one decoded frame. Data holds samples in row-major order,
// little endian when BitsAllocated is 16, interleaved when SamplesPerPixel > 1.
type PixelBuffer struct {
	Rows                      int
	Columns                   int
	BitsAllocated             int
	SamplesPerPixel           int
	PhotometricInterpretation string
	Data                      []byte
}

// Len returns the number of pixels.
func (p *PixelBuffer) Len() int {
	return p.Rows * p.Columns
}

// Validate checks that Data matches the declared geometry.
func (p *PixelBuffer) Validate() error {
	if p.Rows <= 0 || p.Columns <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", p.Columns, p.Rows)
	}
	if p.BitsAllocated != 8 && p.BitsAllocated != 16 {
		return fmt.Errorf("unsupported bits allocated %d", p.BitsAllocated)
	}
	want := p.Len() * p.SamplesPerPixel * p.BitsAllocated / 8
	if len(p.Data) != want {
		return fmt.Errorf("pixel data is %d bytes, want %d", len(p.Data), want)
	}
	return nil
}

// Sample returns sample s of pixel i as an unsigned value.
func (p *PixelBuffer) Sample(i, s int) uint16 {
	index := i*p.SamplesPerPixel + s
	if p.BitsAllocated == 16 {
		return binary.LittleEndian.Uint16(p.Data[index*2:])
	}
	return uint16(p.Data[index])
}

// Decoder turns a compressed frame payload into pixels.
type Decoder interface {
	Decode(ctx context.Context, payload []byte) (*PixelBuffer, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, payload []byte) (*PixelBuffer, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, payload []byte) (*PixelBuffer, error) {
	return f(ctx, payload)
}

// FormatDecoder picks a decoder from the payload signature: JPEG 2000
// codestreams and JP2 files go to J2K, everything else to Image.
type FormatDecoder struct {
	J2K   Decoder
	Image Decoder
}

// NewDecoder returns the decoder used for image store frames.
func NewDecoder() *FormatDecoder {
	return &FormatDecoder{
		J2K:   NewJ2KDecoder(""),
		Image: NewImageDecoder(),
	}
}

// Decode implements Decoder.
func (d *FormatDecoder) Decode(ctx context.Context, payload []byte) (*PixelBuffer, error) {
	if IsJ2K(payload) {
		return d.J2K.Decode(ctx, payload)
	}
	return d.Image.Decode(ctx, payload)
}

// ImageDecoder decodes frames stored in a registered image format (PNG,
// JPEG, GIF). Gray images keep their bit depth; colour images become 8-bit RGB.
type ImageDecoder struct{}

// NewImageDecoder creates an image decoder.
func NewImageDecoder() *ImageDecoder {
	return &ImageDecoder{}
}

// Decode implements Decoder.
func (d *ImageDecoder) Decode(ctx context.Context, payload []byte) (*PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dcmerrors.ErrFrameDecode, err)
	}

	bounds := img.Bounds()
	buf := &PixelBuffer{
		Rows:    bounds.Dy(),
		Columns: bounds.Dx(),
	}

	switch src := img.(type) {
	case *image.Gray16:
		buf.BitsAllocated = 16
		buf.SamplesPerPixel = 1
		buf.PhotometricInterpretation = Monochrome2
		buf.Data = make([]byte, 0, buf.Len()*2)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				buf.Data = binary.LittleEndian.AppendUint16(buf.Data, src.Gray16At(x, y).Y)
			}
		}
	case *image.Gray:
		buf.BitsAllocated = 8
		buf.SamplesPerPixel = 1
		buf.PhotometricInterpretation = Monochrome2
		buf.Data = make([]byte, 0, buf.Len())
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				buf.Data = append(buf.Data, src.GrayAt(x, y).Y)
			}
		}
	default:
		buf.BitsAllocated = 8
		buf.SamplesPerPixel = 3
		buf.PhotometricInterpretation = RGB
		buf.Data = make([]byte, 0, buf.Len()*3)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
				buf.Data = append(buf.Data, c.R, c.G, c.B)
			}
		}
	}

	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s frame: %v", dcmerrors.ErrFrameDecode, format, err)
	}
	return buf, nil
}
