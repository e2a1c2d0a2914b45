package dicom

import (
	"bytes"
	"errors"
	"testing"

	"github.com/caio-sobreiro/dicomizer/types"
)

func createTestDataset() *Dataset {
	ds := NewDataset()
	ds.AddElement(TagSOPClassUID, types.VR_UI, []string{types.CTImageStorage})
	ds.AddElement(TagSOPInstanceUID, types.VR_UI, []string{"1.2.3.4.5"})
	ds.AddElement(TagPatientName, types.VR_PN, []string{"TEST^PATIENT"})
	ds.AddElement(TagRows, types.VR_US, []int64{2})
	ds.AddElement(TagColumns, types.VR_US, []int64{2})
	ds.AddElement(TagBitsAllocated, types.VR_US, []int64{16})
	ds.AddElement(TagPixelData, "OB or OW", []byte{1, 0, 2, 0, 3, 0, 4, 0})
	return ds
}

func TestWritePart10_Header(t *testing.T) {
	var buf bytes.Buffer
	err := WritePart10(&buf, createTestDataset(), FileMeta{
		SOPClassUID:    types.CTImageStorage,
		SOPInstanceUID: "1.2.3.4.5",
	})
	if err != nil {
		t.Fatalf("WritePart10() error = %v", err)
	}

	data := buf.Bytes()
	if !HasPart10Header(data) {
		t.Fatal("HasPart10Header() = false for written file")
	}
	for i := 0; i < preambleLength; i++ {
		if data[i] != 0 {
			t.Fatalf("preamble byte %d = %#x, want 0", i, data[i])
		}
	}

	// File meta group length is the first element after the prefix
	if !bytes.Equal(data[132:136], []byte{0x02, 0x00, 0x00, 0x00}) {
		t.Errorf("first element tag = % x, want group length", data[132:136])
	}
}

func TestWritePart10_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := WritePart10(&buf, createTestDataset(), FileMeta{
		SOPClassUID:    types.CTImageStorage,
		SOPInstanceUID: "1.2.3.4.5",
	})
	if err != nil {
		t.Fatalf("WritePart10() error = %v", err)
	}

	meta, ds, err := ReadPart10(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPart10() error = %v", err)
	}

	tests := []struct {
		name     string
		dataset  *Dataset
		tag      Tag
		expected string
	}{
		{"Transfer syntax", meta, TagTransferSyntaxUID, types.ExplicitVRLittleEndian},
		{"Media storage class", meta, TagMediaStorageSOPClassUID, types.CTImageStorage},
		{"Media storage instance", meta, TagMediaStorageSOPInstanceUID, "1.2.3.4.5"},
		{"Implementation class", meta, TagImplementationClassUID, types.ImplementationClassUID},
		{"Patient name", ds, TagPatientName, "TEST^PATIENT"},
		{"SOP instance", ds, TagSOPInstanceUID, "1.2.3.4.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dataset.GetString(tt.tag); got != tt.expected {
				t.Errorf("GetString(%s) = %q, want %q", tt.tag, got, tt.expected)
			}
		})
	}

	pixels, ok := ds.GetElement(TagPixelData)
	if !ok {
		t.Fatal("PixelData missing")
	}
	if pixels.VR != types.VR_OW {
		t.Errorf("PixelData VR = %s, want OW for 16-bit samples", pixels.VR)
	}
	if !bytes.Equal(pixels.Value.([]byte), []byte{1, 0, 2, 0, 3, 0, 4, 0}) {
		t.Errorf("PixelData = % x", pixels.Value)
	}
}

func TestWritePart10_GroupLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePart10(&buf, NewDataset(), FileMeta{SOPInstanceUID: "1.2"}); err != nil {
		t.Fatalf("WritePart10() error = %v", err)
	}

	meta, ds, err := ReadPart10(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPart10() error = %v", err)
	}
	if ds.Len() != 0 {
		t.Errorf("dataset has %d elements, want 0", ds.Len())
	}

	length, ok := meta.GetInt(TagFileMetaGroupLength)
	if !ok {
		t.Fatal("group length missing")
	}
	// Everything after the group length element belongs to the meta group
	want := int64(buf.Len() - 132 - 12)
	if length != want {
		t.Errorf("group length = %d, want %d", length, want)
	}
	if got := meta.GetString(TagMediaStorageSOPClassUID); got != types.SecondaryCaptureImageStorage {
		t.Errorf("default SOP class = %q, want secondary capture", got)
	}
}

func TestWritePart10_DropsFileMetaFromDataset(t *testing.T) {
	ds := createTestDataset()
	ds.AddElement(TagTransferSyntaxUID, types.VR_UI, []string{"9.9.9"})

	var buf bytes.Buffer
	if err := WritePart10(&buf, ds, FileMeta{SOPInstanceUID: "1.2.3.4.5"}); err != nil {
		t.Fatalf("WritePart10() error = %v", err)
	}

	meta, _, err := ReadPart10(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPart10() error = %v", err)
	}
	if got := meta.GetString(TagTransferSyntaxUID); got != types.ExplicitVRLittleEndian {
		t.Errorf("transfer syntax = %q, want explicit little endian", got)
	}
}

func TestWritePart10_Errors(t *testing.T) {
	tests := []struct {
		name string
		meta FileMeta
	}{
		{"Missing instance", FileMeta{}},
		{"Unsupported syntax", FileMeta{SOPInstanceUID: "1.2", TransferSyntaxUID: types.ImplicitVRLittleEndian}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WritePart10(&buf, NewDataset(), tt.meta); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestWritePart10_Encapsulated(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(TagRows, types.VR_US, []int64{1})
	ds.AddElement(TagPixelData, types.VR_OB, Fragments{{0xFF, 0x4F, 0xFF}})

	var buf bytes.Buffer
	err := WritePart10(&buf, ds, FileMeta{SOPInstanceUID: "1.2", TransferSyntaxUID: types.JPEG2000Lossless})
	if err != nil {
		t.Fatalf("WritePart10() error = %v", err)
	}

	want := []byte{
		0xE0, 0x7F, 0x10, 0x00, 'O', 'B', 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF,
		0xFE, 0xFF, 0x00, 0xE0, 0x00, 0x00, 0x00, 0x00, // empty offset table
		0xFE, 0xFF, 0x00, 0xE0, 0x04, 0x00, 0x00, 0x00, 0xFF, 0x4F, 0xFF, 0x00,
		0xFE, 0xFF, 0xDD, 0xE0, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.HasSuffix(buf.Bytes(), want) {
		t.Errorf("encapsulated pixel data tail = % X, want % X", buf.Bytes()[buf.Len()-len(want):], want)
	}
	if !bytes.Contains(buf.Bytes(), []byte(types.JPEG2000Lossless)) {
		t.Error("file meta does not declare the JPEG 2000 transfer syntax")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWritePart10_WriterError(t *testing.T) {
	err := WritePart10(failingWriter{}, NewDataset(), FileMeta{SOPInstanceUID: "1.2"})
	if err == nil {
		t.Fatal("Expected error from failing writer")
	}
}

func TestReadPart10_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Too short", make([]byte, 100)},
		{"Missing prefix", make([]byte, 200)},
		{"Wrong prefix", append(make([]byte, 128), []byte("ABCD")...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ReadPart10(tt.data); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestHasPart10Header(t *testing.T) {
	valid := append(make([]byte, 128), []byte("DICM")...)

	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{"Valid header", valid, true},
		{"Too short", make([]byte, 100), false},
		{"No DICM", make([]byte, 132), false},
		{"Empty", []byte{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPart10Header(tt.data); got != tt.expected {
				t.Errorf("HasPart10Header() = %v, want %v", got, tt.expected)
			}
		})
	}
}
