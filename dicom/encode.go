package dicom

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/caio-sobreiro/dicomizer/types"
)

// EncodeDataset encodes a dataset to bytes (Explicit VR Little Endian).
// Ambiguous VRs are written with a concrete VR chosen from the dataset's
// PixelRepresentation and BitsAllocated.
func (d *Dataset) EncodeDataset() ([]byte, error) {
	return encodeDataset(d, d)
}

func encodeDataset(d, root *Dataset) ([]byte, error) {
	var result []byte

	// Add elements in sorted tag order (DICOM requires tag ordering)
	for _, tag := range d.Tags() {
		element := d.Elements[tag]

		if fragments, ok := element.Value.(Fragments); ok {
			result = appendEncapsulated(result, tag, fragments)
			continue
		}

		vr := ConcreteVR(element, root)
		valueBytes, err := encodeElementValue(element, vr, root)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", tag, err)
		}

		// Add padding if odd length (DICOM requires even lengths)
		if len(valueBytes)%2 == 1 {
			valueBytes = append(valueBytes, types.PaddingByte(vr))
		}

		if !fitsLength(vr, len(valueBytes)) {
			return nil, fmt.Errorf("encode %s: value of %d bytes too long for %s", tag, len(valueBytes), vr)
		}
		result = appendHeader(result, tag, vr, len(valueBytes))
		result = append(result, valueBytes...)
	}

	if result == nil {
		result = []byte{}
	}
	return result, nil
}

func fitsLength(vr string, length int) bool {
	if types.IsLongVR(vr) {
		// 0xFFFFFFFF is reserved for undefined length
		return uint64(length) < math.MaxUint32
	}
	return length <= math.MaxUint16
}

// appendHeader writes tag, VR and length.
func appendHeader(result []byte, tag Tag, vr string, length int) []byte {
	// Tag (4 bytes - Little Endian)
	result = binary.LittleEndian.AppendUint16(result, tag.Group)
	result = binary.LittleEndian.AppendUint16(result, tag.Element)

	// VR (2 bytes - ASCII)
	result = append(result, vr...)

	if types.IsLongVR(vr) {
		// Long VR format: VR (2 bytes) + Reserved (2 bytes) + Length (4 bytes)
		result = append(result, 0x00, 0x00)
		return binary.LittleEndian.AppendUint32(result, uint32(length))
	}

	// Short VR format: VR (2 bytes) + Length (2 bytes)
	return binary.LittleEndian.AppendUint16(result, uint16(length))
}

// Fragments is encapsulated pixel data: one compressed frame per fragment.
// It is written as undefined length OB with an empty basic offset table.
type Fragments [][]byte

func appendEncapsulated(result []byte, tag Tag, fragments Fragments) []byte {
	result = binary.LittleEndian.AppendUint16(result, tag.Group)
	result = binary.LittleEndian.AppendUint16(result, tag.Element)
	result = append(result, types.VR_OB...)
	result = append(result, 0x00, 0x00)
	result = binary.LittleEndian.AppendUint32(result, undefinedLength)

	result = appendItem(result, TagItem, nil)
	for _, fragment := range fragments {
		if len(fragment)%2 == 1 {
			fragment = append(fragment[:len(fragment):len(fragment)], 0x00)
		}
		result = appendItem(result, TagItem, fragment)
	}
	return appendItem(result, TagSequenceDelimitation, nil)
}

func appendItem(result []byte, tag Tag, value []byte) []byte {
	result = binary.LittleEndian.AppendUint16(result, tag.Group)
	result = binary.LittleEndian.AppendUint16(result, tag.Element)
	result = binary.LittleEndian.AppendUint32(result, uint32(len(value)))
	return append(result, value...)
}

// ConcreteVR returns the two-letter VR written for element. Unambiguous VRs
// are returned unchanged.
func ConcreteVR(element *Element, root *Dataset) string {
	if !types.IsAmbiguous(element.VR) {
		return element.VR
	}
	alternatives := types.SplitVR(element.VR)

	switch element.VR {
	case types.VR_USorSS:
		if representation, ok := root.GetInt(TagPixelRepresentation); ok && representation == 1 {
			return types.VR_SS
		}
		if values, ok := element.Value.([]int64); ok {
			for _, v := range values {
				if v < 0 {
					return types.VR_SS
				}
			}
		}
		return types.VR_US
	case "OB or OW":
		if bits, ok := root.GetInt(TagBitsAllocated); ok && bits > 8 {
			return types.VR_OW
		}
		return types.VR_OB
	}
	return alternatives[0]
}

// encodeElementValue encodes an element value to bytes
func encodeElementValue(element *Element, vr string, root *Dataset) ([]byte, error) {
	switch v := element.Value.(type) {
	case []string:
		joined := strings.Join(v, "\\")
		joined = strings.TrimRight(joined, "\x00")
		return []byte(joined), nil
	case string:
		return []byte(strings.TrimRight(v, "\x00")), nil
	case []byte:
		return v, nil
	case []int64:
		return encodeInts(v, vr)
	case []float64:
		return encodeFloats(v, vr)
	case []Tag:
		result := make([]byte, 0, 4*len(v))
		for _, tag := range v {
			result = binary.LittleEndian.AppendUint16(result, tag.Group)
			result = binary.LittleEndian.AppendUint16(result, tag.Element)
		}
		return result, nil
	case []*Dataset:
		return encodeSequence(v, root)
	case nil:
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T for %s", element.Value, vr)
	}
}

func encodeInts(values []int64, vr string) ([]byte, error) {
	result := make([]byte, 0, types.ValueWidth(vr)*len(values))
	for _, v := range values {
		switch vr {
		case types.VR_US, types.VR_SS:
			result = binary.LittleEndian.AppendUint16(result, uint16(v))
		case types.VR_UL, types.VR_SL:
			result = binary.LittleEndian.AppendUint32(result, uint32(v))
		case types.VR_UV, types.VR_SV:
			result = binary.LittleEndian.AppendUint64(result, uint64(v))
		default:
			return nil, fmt.Errorf("integer values for non-integer VR %s", vr)
		}
	}
	return result, nil
}

func encodeFloats(values []float64, vr string) ([]byte, error) {
	result := make([]byte, 0, types.ValueWidth(vr)*len(values))
	for _, v := range values {
		switch vr {
		case types.VR_FL:
			result = binary.LittleEndian.AppendUint32(result, math.Float32bits(float32(v)))
		case types.VR_FD:
			result = binary.LittleEndian.AppendUint64(result, math.Float64bits(v))
		default:
			return nil, fmt.Errorf("float values for non-float VR %s", vr)
		}
	}
	return result, nil
}

// encodeSequence writes each item with an explicit length.
func encodeSequence(items []*Dataset, root *Dataset) ([]byte, error) {
	var result []byte
	for i, item := range items {
		encoded, err := encodeDataset(item, root)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		result = binary.LittleEndian.AppendUint16(result, TagItem.Group)
		result = binary.LittleEndian.AppendUint16(result, TagItem.Element)
		result = binary.LittleEndian.AppendUint32(result, uint32(len(encoded)))
		result = append(result, encoded...)
	}
	if result == nil {
		result = []byte{}
	}
	return result, nil
}
