package dicom

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/caio-sobreiro/dicomizer/types"
)

const undefinedLength = 0xFFFFFFFF

// ParseDataset parses a DICOM dataset from raw bytes (Explicit VR Little Endian)
func ParseDataset(data []byte) (*Dataset, error) {
	dataset, _, err := parseDataset(data, false)
	return dataset, err
}

// parseDataset reads elements until data is exhausted or, when inItem is set,
// an item delimitation tag is found. It returns the number of bytes consumed.
func parseDataset(data []byte, inItem bool) (*Dataset, int, error) {
	dataset := NewDataset()

	offset := 0
	for offset < len(data) {
		// Need at least 8 bytes for tag + VR + length
		if offset+8 > len(data) {
			return nil, offset, fmt.Errorf("truncated element header at offset %d", offset)
		}

		// Read tag (4 bytes)
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		tag := Tag{Group: group, Element: element}

		if tag == TagItemDelimitation {
			if !inItem {
				return nil, offset, fmt.Errorf("unexpected item delimitation at offset %d", offset)
			}
			return dataset, offset + 8, nil
		}

		// Read VR (2 bytes)
		vr := string(data[offset+4 : offset+6])

		var length uint32
		var valueOffset int

		if types.IsLongVR(vr) {
			// Long VR: Tag (4) + VR (2) + Reserved (2) + Length (4) = 12 bytes header
			if offset+12 > len(data) {
				return nil, offset, fmt.Errorf("truncated long header for %s", tag)
			}
			length = binary.LittleEndian.Uint32(data[offset+8 : offset+12])
			valueOffset = offset + 12
		} else {
			// Short VR: Tag (4) + VR (2) + Length (2) = 8 bytes header
			length = uint32(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
			valueOffset = offset + 8
		}

		if vr == types.VR_SQ {
			items, consumed, err := parseSequence(data[valueOffset:], length)
			if err != nil {
				return nil, offset, fmt.Errorf("sequence %s: %w", tag, err)
			}
			dataset.AddElement(tag, vr, items)
			offset = valueOffset + consumed
			continue
		}

		if length == undefinedLength {
			return nil, offset, fmt.Errorf("undefined length for %s %s is not supported", tag, vr)
		}

		// Ensure we have enough data for the value
		if valueOffset+int(length) > len(data) {
			return nil, offset, fmt.Errorf("value of %s overruns data (%d bytes)", tag, length)
		}

		value, err := parseElementValue(vr, data[valueOffset:valueOffset+int(length)])
		if err != nil {
			return nil, offset, fmt.Errorf("value of %s: %w", tag, err)
		}
		dataset.AddElement(tag, vr, value)

		offset = valueOffset + int(length)
	}

	// Explicit length items end with their data
	return dataset, offset, nil
}

// parseSequence reads items of a sequence with explicit or undefined length.
func parseSequence(data []byte, length uint32) ([]*Dataset, int, error) {
	limit := len(data)
	if length != undefinedLength {
		if int(length) > len(data) {
			return nil, 0, fmt.Errorf("sequence length %d overruns data", length)
		}
		limit = int(length)
	}

	items := []*Dataset{}
	offset := 0
	for offset < limit {
		if offset+8 > limit {
			return nil, offset, fmt.Errorf("truncated item header")
		}
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		itemLength := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		tag := Tag{Group: group, Element: element}
		offset += 8

		if tag == TagSequenceDelimitation {
			return items, offset, nil
		}
		if tag != TagItem {
			return nil, offset, fmt.Errorf("expected item tag, got %s", tag)
		}

		if itemLength == undefinedLength {
			item, consumed, err := parseDataset(data[offset:limit], true)
			if err != nil {
				return nil, offset, err
			}
			items = append(items, item)
			offset += consumed
			continue
		}

		if offset+int(itemLength) > limit {
			return nil, offset, fmt.Errorf("item length %d overruns sequence", itemLength)
		}
		item, _, err := parseDataset(data[offset:offset+int(itemLength)], true)
		if err != nil {
			return nil, offset, err
		}
		items = append(items, item)
		offset += int(itemLength)
	}

	if length == undefinedLength {
		return nil, offset, fmt.Errorf("missing sequence delimitation")
	}
	return items, offset, nil
}

// parseElementValue parses the value based on the VR and raw data
func parseElementValue(vr string, data []byte) (interface{}, error) {
	switch vr {
	case types.VR_US:
		return readInts(data, 2, func(b []byte) int64 { return int64(binary.LittleEndian.Uint16(b)) })
	case types.VR_SS:
		return readInts(data, 2, func(b []byte) int64 { return int64(int16(binary.LittleEndian.Uint16(b))) })
	case types.VR_UL:
		return readInts(data, 4, func(b []byte) int64 { return int64(binary.LittleEndian.Uint32(b)) })
	case types.VR_SL:
		return readInts(data, 4, func(b []byte) int64 { return int64(int32(binary.LittleEndian.Uint32(b))) })
	case types.VR_UV, types.VR_SV:
		return readInts(data, 8, func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) })
	case types.VR_FL:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("FL length %d not a multiple of 4", len(data))
		}
		values := make([]float64, 0, len(data)/4)
		for i := 0; i < len(data); i += 4 {
			values = append(values, float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i:i+4]))))
		}
		return values, nil
	case types.VR_FD:
		if len(data)%8 != 0 {
			return nil, fmt.Errorf("FD length %d not a multiple of 8", len(data))
		}
		values := make([]float64, 0, len(data)/8)
		for i := 0; i < len(data); i += 8 {
			values = append(values, math.Float64frombits(binary.LittleEndian.Uint64(data[i:i+8])))
		}
		return values, nil
	case types.VR_AT:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("AT length %d not a multiple of 4", len(data))
		}
		values := make([]Tag, 0, len(data)/4)
		for i := 0; i < len(data); i += 4 {
			values = append(values, Tag{
				Group:   binary.LittleEndian.Uint16(data[i : i+2]),
				Element: binary.LittleEndian.Uint16(data[i+2 : i+4]),
			})
		}
		return values, nil
	}

	if types.IsBinaryOpaque(vr) {
		raw := make([]byte, len(data))
		copy(raw, data)
		return raw, nil
	}

	// Remove null and space padding from text values
	value := strings.TrimRight(string(data), "\x00 ")
	if value == "" {
		return []string{}, nil
	}
	if singleValuedText(vr) {
		return []string{value}, nil
	}
	return strings.Split(value, "\\"), nil
}

func readInts(data []byte, width int, read func([]byte) int64) ([]int64, error) {
	if len(data)%width != 0 {
		return nil, fmt.Errorf("length %d not a multiple of %d", len(data), width)
	}
	values := make([]int64, 0, len(data)/width)
	for i := 0; i < len(data); i += width {
		values = append(values, read(data[i:i+width]))
	}
	return values, nil
}
