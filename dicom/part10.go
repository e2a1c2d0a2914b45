package dicom

import (
	"fmt"
	"io"

	"github.com/caio-sobreiro/dicomizer/types"
)

const (
	preambleLength = 128
	part10Prefix   = "DICM"
)

// FileMeta carries the values written into the File Meta Information group.
type FileMeta struct {
	SOPClassUID       string
	SOPInstanceUID    string
	TransferSyntaxUID string
}

// WritePart10 writes dataset as a DICOM Part 10 file.
//
// DICOM Part 10 files contain:
//   - 128 byte preamble
//   - 4 byte "DICM" prefix
//   - File Meta Information elements (group 0x0002), always Explicit VR Little Endian
//   - Dataset (the actual DICOM data)
//
// Group 0002 elements found in dataset are ignored; the file meta group is
// generated from meta. An empty TransferSyntaxUID selects Explicit VR Little
// Endian. The dataset is always encoded Explicit VR Little Endian; the
// JPEG 2000 syntaxes are accepted for files whose PixelData is Fragments.
// An empty SOPClassUID selects Secondary Capture.
//
// Example:
//
//	f, _ := os.Create("image.dcm")
//	defer f.Close()
//	err := dicom.WritePart10(f, ds, dicom.FileMeta{SOPInstanceUID: uid})
func WritePart10(w io.Writer, dataset *Dataset, meta FileMeta) error {
	if meta.SOPInstanceUID == "" {
		return fmt.Errorf("file meta requires a SOP instance UID")
	}
	if meta.TransferSyntaxUID == "" {
		meta.TransferSyntaxUID = types.ExplicitVRLittleEndian
	}
	if meta.TransferSyntaxUID != types.ExplicitVRLittleEndian && !types.IsEncapsulated(meta.TransferSyntaxUID) {
		return fmt.Errorf("unsupported transfer syntax %s", types.TransferSyntaxName(meta.TransferSyntaxUID))
	}
	if meta.SOPClassUID == "" {
		meta.SOPClassUID = types.SecondaryCaptureImageStorage
	}

	metaBytes, err := encodeFileMeta(meta)
	if err != nil {
		return err
	}

	body := NewDataset()
	for tag, element := range dataset.Elements {
		if !tag.IsFileMeta() {
			body.Elements[tag] = element
		}
	}
	bodyBytes, err := body.EncodeDataset()
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}

	header := make([]byte, preambleLength, preambleLength+len(part10Prefix))
	header = append(header, part10Prefix...)
	for _, chunk := range [][]byte{header, metaBytes, bodyBytes} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("failed to write part 10 file: %w", err)
		}
	}
	return nil
}

func encodeFileMeta(meta FileMeta) ([]byte, error) {
	group := NewDataset()
	group.AddElement(TagFileMetaVersion, types.VR_OB, []byte{0x00, 0x01})
	group.AddElement(TagMediaStorageSOPClassUID, types.VR_UI, []string{meta.SOPClassUID})
	group.AddElement(TagMediaStorageSOPInstanceUID, types.VR_UI, []string{meta.SOPInstanceUID})
	group.AddElement(TagTransferSyntaxUID, types.VR_UI, []string{meta.TransferSyntaxUID})
	group.AddElement(TagImplementationClassUID, types.VR_UI, []string{types.ImplementationClassUID})
	group.AddElement(TagImplementationVersionName, types.VR_SH, []string{types.ImplementationVersionName})

	elements, err := group.EncodeDataset()
	if err != nil {
		return nil, fmt.Errorf("failed to encode file meta: %w", err)
	}

	length := NewDataset()
	length.AddElement(TagFileMetaGroupLength, types.VR_UL, []int64{int64(len(elements))})
	lengthBytes, err := length.EncodeDataset()
	if err != nil {
		return nil, fmt.Errorf("failed to encode file meta group length: %w", err)
	}

	return append(lengthBytes, elements...), nil
}

// ReadPart10 parses a complete Part 10 file written with Explicit VR Little
// Endian. It returns the file meta group and the dataset separately.
func ReadPart10(data []byte) (meta *Dataset, dataset *Dataset, err error) {
	if len(data) < preambleLength+len(part10Prefix) {
		return nil, nil, fmt.Errorf("data too short to be DICOM Part 10 (need at least 132 bytes, got %d)", len(data))
	}
	if !HasPart10Header(data) {
		return nil, nil, fmt.Errorf("not a valid DICOM Part 10 file (missing DICM prefix at offset 128)")
	}

	all, err := ParseDataset(data[preambleLength+len(part10Prefix):])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse DICOM file: %w", err)
	}

	meta = NewDataset()
	dataset = NewDataset()
	for tag, element := range all.Elements {
		if tag.IsFileMeta() {
			meta.Elements[tag] = element
		} else {
			dataset.Elements[tag] = element
		}
	}

	if ts := meta.GetString(TagTransferSyntaxUID); ts != types.ExplicitVRLittleEndian {
		return nil, nil, fmt.Errorf("unsupported transfer syntax %q", ts)
	}
	return meta, dataset, nil
}

// HasPart10Header checks if the data starts with a DICOM Part 10 header.
//
// Returns true if the data contains the 128-byte preamble followed by "DICM".
func HasPart10Header(data []byte) bool {
	if len(data) < preambleLength+len(part10Prefix) {
		return false
	}
	return string(data[preambleLength:preambleLength+len(part10Prefix)]) == part10Prefix
}
