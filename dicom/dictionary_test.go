package dicom

import (
	"errors"
	"testing"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/types"
)

type mapOverrides map[string]string

func (m mapOverrides) Lookup(key string) (string, bool) {
	vr, ok := m[key]
	return vr, ok
}

func TestParseTagKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    Tag
		wantErr bool
	}{
		{"Keyword", "PatientName", Tag{0x0010, 0x0010}, false},
		{"Hex", "00091001", Tag{0x0009, 0x1001}, false},
		{"Hex upper case", "7FE00010", Tag{0x7FE0, 0x0010}, false},
		{"Bracketed", "(0029,1010)", Tag{0x0029, 0x1010}, false},
		{"Comma", "0029,1010", Tag{0x0029, 0x1010}, false},
		{"Unknown keyword", "NotAKeyword", Tag{}, true},
		{"Bad hex", "0009ZZZZ", Tag{}, true},
		{"Empty", "", Tag{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTagKey(tt.key, StandardDictionary)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTagKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, dcmerrors.ErrInvalidValue) {
					t.Errorf("error %v does not wrap ErrInvalidValue", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseTagKey(%q) = %s, want %s", tt.key, got, tt.want)
			}
		})
	}
}

func TestStandardDictionary_LookupVR(t *testing.T) {
	tests := []struct {
		name   string
		tag    Tag
		want   string
		wantOK bool
	}{
		{"Patient name", Tag{0x0010, 0x0010}, types.VR_PN, true},
		{"Rows", Tag{0x0028, 0x0010}, types.VR_US, true},
		{"Referenced image sequence", Tag{0x0008, 0x1140}, types.VR_SQ, true},
		{"SOP instance", Tag{0x0008, 0x0018}, types.VR_UI, true},
		{"Private", Tag{0x0009, 0x1001}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StandardDictionary.LookupVR(tt.tag)
			if ok != tt.wantOK {
				t.Fatalf("LookupVR(%s) ok = %v, want %v", tt.tag, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("LookupVR(%s) = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestStandardDictionary_AmbiguousVR(t *testing.T) {
	// Smallest Image Pixel Value is defined as US or SS
	vr, ok := StandardDictionary.LookupVR(Tag{0x0028, 0x0106})
	if !ok {
		t.Fatal("SmallestImagePixelValue not found")
	}
	if !types.IsAmbiguous(vr) {
		t.Errorf("LookupVR = %q, want an ambiguous VR", vr)
	}
}

func TestResolver_Resolve(t *testing.T) {
	resolver := NewResolver(nil)

	tests := []struct {
		name      string
		key       string
		overrides VROverrides
		want      string
		wantErr   error
	}{
		{"Dictionary keyword", "PatientName", nil, types.VR_PN, nil},
		{"Dictionary wins over override", "PatientName", mapOverrides{"PatientName": types.VR_LO}, types.VR_PN, nil},
		{"Private from override", "00091001", mapOverrides{"00091001": types.VR_LO}, types.VR_LO, nil},
		{"Unknown keyword from override", "VendorThing", mapOverrides{"VendorThing": types.VR_DS}, types.VR_DS, nil},
		{"Unresolved private", "00091001", mapOverrides{}, "", dcmerrors.ErrUnresolvedVR},
		{"Unresolved without overrides", "VendorThing", nil, "", dcmerrors.ErrUnresolvedVR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(tt.key, tt.overrides)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.key, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error = %v", tt.key, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestNewElement(t *testing.T) {
	tests := []struct {
		name    string
		vr      string
		value   interface{}
		wantErr bool
	}{
		{"Text", types.VR_LO, "A\\B", false},
		{"Integer", types.VR_US, float64(512), false},
		{"Integer list", types.VR_US, []interface{}{float64(1), float64(2)}, false},
		{"Out of range", types.VR_US, float64(70000), true},
		{"Negative unsigned", types.VR_US, float64(-1), true},
		{"Fraction for integer", types.VR_SL, 1.5, true},
		{"Float", types.VR_FD, "1.5\\2.5", false},
		{"Bad float", types.VR_FL, "abc", true},
		{"Tag", types.VR_AT, "00100010", false},
		{"Bad tag", types.VR_AT, "xyz", true},
		{"Binary needs bytes", types.VR_OB, "AAEC", true},
		{"Binary", types.VR_OB, []byte{1, 2}, false},
		{"Sequence needs datasets", types.VR_SQ, []interface{}{}, true},
		{"Null", types.VR_LO, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewElement(Tag{0x0011, 0x1001}, tt.vr, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewElement() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, dcmerrors.ErrInvalidValue) {
				t.Errorf("error %v does not wrap ErrInvalidValue", err)
			}
		})
	}
}

func TestNewElement_SingleValuedText(t *testing.T) {
	element, err := NewElement(Tag{0x0020, 0x4000}, types.VR_LT, "line\\with\\slashes")
	if err != nil {
		t.Fatalf("NewElement() error = %v", err)
	}
	values := element.Value.([]string)
	if len(values) != 1 || values[0] != "line\\with\\slashes" {
		t.Errorf("LT value = %q, want a single value", values)
	}
}
