package dicom

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/types"
)

// NewElement builds an element from a decoded JSON metadata value, converting
// it to the Go representation expected for vr. Binary VRs expect []byte and
// SQ expects []*Dataset; callers perform base64 decoding and recursion.
func NewElement(tag Tag, vr string, value interface{}) (*Element, error) {
	converted, err := convertValue(vr, value)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", tag, vr, err)
	}
	return &Element{Tag: tag, VR: vr, Value: converted}, nil
}

func convertValue(vr string, value interface{}) (interface{}, error) {
	switch {
	case types.IsSequence(vr):
		items, ok := value.([]*Dataset)
		if !ok {
			return nil, invalid("sequence value must be a list of datasets, got %T", value)
		}
		return items, nil
	case types.IsBinaryOpaque(vr):
		raw, ok := value.([]byte)
		if !ok {
			return nil, invalid("binary value must be bytes, got %T", value)
		}
		return raw, nil
	case types.IsInteger(vr):
		values, err := toInts(value)
		if err != nil {
			return nil, err
		}
		min, max := types.IntegerRange(vr)
		for _, v := range values {
			if v < min || v > max {
				return nil, invalid("value %d out of range for %s", v, vr)
			}
		}
		return values, nil
	case types.IsFloat(vr):
		return toFloats(value)
	case vr == types.VR_AT:
		return toTags(value)
	case types.IsAmbiguous(vr):
		// Resolved at write time by the first alternative.
		return convertValue(types.SplitVR(vr)[0], value)
	default:
		return toStrings(vr, value)
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, dcmerrors.ErrInvalidValue)...)
}

// singleValuedText VRs may contain backslashes as ordinary characters.
func singleValuedText(vr string) bool {
	switch vr {
	case types.VR_LT, types.VR_ST, types.VR_UT, types.VR_UR:
		return true
	}
	return false
}

func toStrings(vr string, value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return []string{}, nil
	case string:
		if singleValuedText(vr) {
			return []string{v}, nil
		}
		return strings.Split(v, "\\"), nil
	case json.Number:
		return []string{v.String()}, nil
	case float64:
		return []string{strconv.FormatFloat(v, 'g', -1, 64)}, nil
	case int:
		return []string{strconv.Itoa(v)}, nil
	case int64:
		return []string{strconv.FormatInt(v, 10)}, nil
	case []string:
		return v, nil
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if _, nested := item.([]interface{}); nested {
				return nil, invalid("nested list in %s value", vr)
			}
			parts, err := toStrings(vr, item)
			if err != nil {
				return nil, err
			}
			result = append(result, strings.Join(parts, "\\"))
		}
		return result, nil
	default:
		return nil, invalid("cannot use %T as %s", value, vr)
	}
}

func toInts(value interface{}) ([]int64, error) {
	switch v := value.(type) {
	case []int64:
		return v, nil
	case int64:
		return []int64{v}, nil
	case int:
		return []int64{int64(v)}, nil
	case json.Number:
		return parseIntText(v.String())
	case float64:
		if v != math.Trunc(v) {
			return nil, invalid("%v is not an integer", v)
		}
		return []int64{int64(v)}, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []int64{}, nil
		}
		var result []int64
		for _, part := range strings.Split(v, "\\") {
			parsed, err := parseIntText(part)
			if err != nil {
				return nil, err
			}
			result = append(result, parsed...)
		}
		return result, nil
	case []string:
		return toInts(strings.Join(v, "\\"))
	case []interface{}:
		result := make([]int64, 0, len(v))
		for _, item := range v {
			if _, nested := item.([]interface{}); nested {
				return nil, invalid("nested list in integer value")
			}
			parsed, err := toInts(item)
			if err != nil {
				return nil, err
			}
			result = append(result, parsed...)
		}
		return result, nil
	default:
		return nil, invalid("cannot use %T as integer", value)
	}
}

func parseIntText(text string) ([]int64, error) {
	text = strings.TrimSpace(text)
	if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
		return []int64{parsed}, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) {
		return nil, invalid("%q is not an integer", text)
	}
	return []int64{int64(f)}, nil
}

func toFloats(value interface{}) ([]float64, error) {
	switch v := value.(type) {
	case []float64:
		return v, nil
	case float64:
		return []float64{v}, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, invalid("%q is not a number", v.String())
		}
		return []float64{f}, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []float64{}, nil
		}
		var result []float64
		for _, part := range strings.Split(v, "\\") {
			f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, invalid("%q is not a number", part)
			}
			result = append(result, f)
		}
		return result, nil
	case []interface{}:
		result := make([]float64, 0, len(v))
		for _, item := range v {
			if _, nested := item.([]interface{}); nested {
				return nil, invalid("nested list in float value")
			}
			parsed, err := toFloats(item)
			if err != nil {
				return nil, err
			}
			result = append(result, parsed...)
		}
		return result, nil
	default:
		return nil, invalid("cannot use %T as float", value)
	}
}

func toTags(value interface{}) ([]Tag, error) {
	texts, err := toStrings(types.VR_AT, value)
	if err != nil {
		return nil, err
	}
	result := make([]Tag, 0, len(texts))
	for _, text := range texts {
		tag, ok := parseHexTag(strings.TrimSpace(text))
		if !ok {
			return nil, invalid("%q is not a tag", text)
		}
		result = append(result, tag)
	}
	return result, nil
}
