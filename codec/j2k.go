package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cocosip/go-dicom/pkg/dicom/parser"
	"github.com/cocosip/go-dicom/pkg/imaging"

	// Register the JPEG 2000 codecs with the imaging package
	_ "github.com/cocosip/go-dicom-codec/jpeg2000/lossless"
	_ "github.com/cocosip/go-dicom-codec/jpeg2000/lossy"

	"github.com/caio-sobreiro/dicomizer/dicom"
	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/types"
)

// Codestream markers read from the main header.
const (
	markerCAP = 0xFF50
	markerSIZ = 0xFF51
	markerCOD = 0xFF52
	markerSOT = 0xFF90
	markerSOD = 0xFF93
)

// frameInstanceUID identifies the throwaway file handed to the codec.
const frameInstanceUID = types.ImplementationClassUID + ".1"

var (
	codestreamMagic = []byte{0xFF, 0x4F, 0xFF, 0x51}
	jp2Signature    = []byte{0x00, 0x00, 0x00, 0x0C, 'j', 'P', ' ', ' ', 0x0D, 0x0A, 0x87, 0x0A}
)

// J2KHeader describes the image of a JPEG 2000 codestream.
type J2KHeader struct {
	Width      int
	Height     int
	Components int
	BitDepth   int
	Signed     bool

	// Reversible is set for the 5/3 wavelet, i.e. lossless coding.
	Reversible bool
	// ColorTransform is set when the components use a multiple component transform.
	ColorTransform bool
	// HighThroughput is set when the codestream declares HTJ2K capabilities.
	HighThroughput bool
}

// TransferSyntax returns the DICOM transfer syntax matching the coding.
func (h J2KHeader) TransferSyntax() string {
	switch {
	case h.HighThroughput && h.Reversible:
		return types.HTJ2KLossless
	case h.HighThroughput:
		return types.HTJ2K
	case h.Reversible:
		return types.JPEG2000Lossless
	default:
		return types.JPEG2000
	}
}

// BitsAllocated returns the container size of one sample.
func (h J2KHeader) BitsAllocated() int {
	if h.BitDepth > 8 {
		return 16
	}
	return 8
}

func (h J2KHeader) photometric() string {
	switch {
	case h.Components == 1:
		return Monochrome2
	case h.ColorTransform && h.Reversible:
		return "YBR_RCT"
	case h.ColorTransform:
		return "YBR_ICT"
	default:
		return RGB
	}
}

// IsJ2K reports whether payload is a raw JPEG 2000 codestream or a JP2 file.
func IsJ2K(payload []byte) bool {
	return bytes.HasPrefix(payload, codestreamMagic) || bytes.HasPrefix(payload, jp2Signature)
}

// Codestream returns the codestream of payload, unwrapping JP2 boxes.
func Codestream(payload []byte) ([]byte, error) {
	if bytes.HasPrefix(payload, codestreamMagic) {
		return payload, nil
	}
	if !bytes.HasPrefix(payload, jp2Signature) {
		return nil, fmt.Errorf("not a JPEG 2000 codestream")
	}

	for rest := payload; len(rest) >= 8; {
		length := uint64(binary.BigEndian.Uint32(rest))
		boxType := string(rest[4:8])
		header := uint64(8)
		switch length {
		case 0:
			length = uint64(len(rest))
		case 1:
			if len(rest) < 16 {
				return nil, fmt.Errorf("truncated JP2 box %q", boxType)
			}
			length = binary.BigEndian.Uint64(rest[8:])
			header = 16
		}
		if length < header || length > uint64(len(rest)) {
			return nil, fmt.Errorf("JP2 box %q has invalid length %d", boxType, length)
		}
		if boxType == "jp2c" {
			return rest[header:length], nil
		}
		rest = rest[length:]
	}
	return nil, fmt.Errorf("JP2 file has no codestream box")
}

// ParseJ2KHeader reads the main header of a codestream up to the first tile.
func ParseJ2KHeader(codestream []byte) (J2KHeader, error) {
	var h J2KHeader
	if !bytes.HasPrefix(codestream, codestreamMagic) {
		return h, fmt.Errorf("codestream does not start with SOC and SIZ markers")
	}

	seenSIZ := false
	for pos := 2; pos+4 <= len(codestream); {
		marker := binary.BigEndian.Uint16(codestream[pos:])
		if marker == markerSOT || marker == markerSOD {
			break
		}
		length := int(binary.BigEndian.Uint16(codestream[pos+2:]))
		if length < 2 || pos+2+length > len(codestream) {
			return h, fmt.Errorf("truncated marker segment %04X at offset %d", marker, pos)
		}
		segment := codestream[pos+4 : pos+2+length]

		switch marker {
		case markerSIZ:
			if err := parseSIZ(segment, &h); err != nil {
				return h, err
			}
			seenSIZ = true
		case markerCAP:
			h.HighThroughput = true
		case markerCOD:
			if len(segment) < 10 {
				return h, fmt.Errorf("COD segment is %d bytes", len(segment))
			}
			h.ColorTransform = segment[4] != 0
			h.Reversible = segment[9] == 1
		}
		pos += 2 + length
	}

	if !seenSIZ {
		return h, fmt.Errorf("codestream has no SIZ segment")
	}
	return h, nil
}

func parseSIZ(segment []byte, h *J2KHeader) error {
	if len(segment) < 36 {
		return fmt.Errorf("SIZ segment is %d bytes", len(segment))
	}
	width := binary.BigEndian.Uint32(segment[2:]) - binary.BigEndian.Uint32(segment[10:])
	height := binary.BigEndian.Uint32(segment[6:]) - binary.BigEndian.Uint32(segment[14:])
	components := int(binary.BigEndian.Uint16(segment[34:]))
	if components != 1 && components != 3 {
		return fmt.Errorf("unsupported component count %d", components)
	}
	if len(segment) < 36+3*components {
		return fmt.Errorf("SIZ segment too short for %d components", components)
	}

	ssiz := segment[36]
	h.Width = int(width)
	h.Height = int(height)
	h.Components = components
	h.BitDepth = int(ssiz&0x7F) + 1
	h.Signed = ssiz&0x80 != 0
	if h.BitDepth > 16 {
		return fmt.Errorf("unsupported bit depth %d", h.BitDepth)
	}
	return nil
}

// Encapsulate wraps a codestream in a single frame Part 10 file whose image
// pixel attributes come from h.
func Encapsulate(h J2KHeader, codestream []byte) ([]byte, error) {
	ds := dicom.NewDataset()
	ds.AddElement(dicom.TagSOPClassUID, types.VR_UI, []string{types.SecondaryCaptureImageStorage})
	ds.AddElement(dicom.TagSOPInstanceUID, types.VR_UI, []string{frameInstanceUID})
	ds.AddElement(dicom.TagSamplesPerPixel, types.VR_US, []int64{int64(h.Components)})
	ds.AddElement(dicom.TagPhotometricInterpretation, types.VR_CS, []string{h.photometric()})
	if h.Components > 1 {
		ds.AddElement(dicom.TagPlanarConfiguration, types.VR_US, []int64{0})
	}
	ds.AddElement(dicom.TagRows, types.VR_US, []int64{int64(h.Height)})
	ds.AddElement(dicom.TagColumns, types.VR_US, []int64{int64(h.Width)})
	ds.AddElement(dicom.TagBitsAllocated, types.VR_US, []int64{int64(h.BitsAllocated())})
	ds.AddElement(dicom.TagBitsStored, types.VR_US, []int64{int64(h.BitDepth)})
	ds.AddElement(dicom.TagHighBit, types.VR_US, []int64{int64(h.BitDepth - 1)})
	representation := int64(0)
	if h.Signed {
		representation = 1
	}
	ds.AddElement(dicom.TagPixelRepresentation, types.VR_US, []int64{representation})
	ds.AddElement(dicom.TagPixelData, types.VR_OB, dicom.Fragments{codestream})

	var buf bytes.Buffer
	err := dicom.WritePart10(&buf, ds, dicom.FileMeta{
		SOPClassUID:       types.SecondaryCaptureImageStorage,
		SOPInstanceUID:    frameInstanceUID,
		TransferSyntaxUID: h.TransferSyntax(),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// J2KDecoder decodes JPEG 2000 codestreams (raw or JP2) with the codecs of
// github.com/cocosip/go-dicom-codec. The codestream is encapsulated in a
// temporary Part 10 file, which is how the codec registry consumes frames.
type J2KDecoder struct {
	tempDir string
}

// NewJ2KDecoder creates a decoder writing its temporary files to tempDir,
// or to the system default when tempDir is empty.
func NewJ2KDecoder(tempDir string) *J2KDecoder {
	return &J2KDecoder{tempDir: tempDir}
}

// Decode implements Decoder.
func (d *J2KDecoder) Decode(ctx context.Context, payload []byte) (*PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	codestream, err := Codestream(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dcmerrors.ErrFrameDecode, err)
	}
	header, err := ParseJ2KHeader(codestream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dcmerrors.ErrFrameDecode, err)
	}
	file, err := Encapsulate(header, codestream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dcmerrors.ErrFrameDecode, err)
	}

	buf, err := d.decodeFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", dcmerrors.ErrFrameDecode, types.TransferSyntaxName(header.TransferSyntax()), err)
	}
	if header.Components == 1 {
		buf.PhotometricInterpretation = Monochrome2
	} else {
		buf.PhotometricInterpretation = RGB
	}

	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: decoded frame: %v", dcmerrors.ErrFrameDecode, err)
	}
	return buf, nil
}

func (d *J2KDecoder) decodeFile(data []byte) (*PixelBuffer, error) {
	f, err := os.CreateTemp(d.tempDir, "dicomizer-frame-*.dcm")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	res, err := parser.ParseFile(path, parser.WithReadOption(parser.ReadAll))
	if err != nil {
		return nil, err
	}
	pd, err := imaging.CreatePixelData(res.Dataset)
	if err != nil {
		return nil, err
	}
	frame, err := pd.GetFrame(0)
	if err != nil {
		return nil, err
	}

	info := pd.Info
	return &PixelBuffer{
		Rows:            int(info.Height),
		Columns:         int(info.Width),
		BitsAllocated:   int(info.BitsAllocated),
		SamplesPerPixel: int(info.SamplesPerPixel),
		Data:            frame,
	}, nil
}
