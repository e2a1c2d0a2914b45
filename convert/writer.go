package convert

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caio-sobreiro/dicomizer/codec"
	"github.com/caio-sobreiro/dicomizer/dicom"
	"github.com/caio-sobreiro/dicomizer/preview"
	"github.com/caio-sobreiro/dicomizer/types"
)

const outputDirMode = 0o775

// Output lists the files written for one instance.
type Output struct {
	DICOMPath   string
	PreviewPath string
}

// Writer emits the DICOM file and PNG preview of converted instances under
// <dir>/<studyId>/<instanceUID>.
type Writer struct {
	dir         string
	skipPreview bool
	verify      bool
	logger      *slog.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, skipPreview, verify bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, skipPreview: skipPreview, verify: verify, logger: logger}
}

// Write attaches pixels to ds and writes both outputs.
func (w *Writer) Write(studyID, instanceUID string, ds *dicom.Dataset, pixels *codec.PixelBuffer) (Output, error) {
	if pixels == nil {
		return Output{}, fmt.Errorf("instance %s has no pixel data", instanceUID)
	}
	if err := pixels.Validate(); err != nil {
		return Output{}, fmt.Errorf("instance %s: %w", instanceUID, err)
	}

	studyDir := filepath.Join(w.dir, studyID)
	if err := os.MkdirAll(studyDir, outputDirMode); err != nil {
		return Output{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	AttachPixels(ds, pixels)

	out := Output{DICOMPath: filepath.Join(studyDir, instanceUID+".dcm")}
	meta := dicom.FileMeta{
		SOPClassUID:    ds.GetString(dicom.TagSOPClassUID),
		SOPInstanceUID: instanceUID,
	}
	if err := writeFile(out.DICOMPath, func(bw *bufio.Writer) error {
		return dicom.WritePart10(bw, ds, meta)
	}); err != nil {
		return out, err
	}

	if w.verify {
		if err := verifyFile(out.DICOMPath, instanceUID, ds, pixels); err != nil {
			return out, err
		}
	}

	if !w.skipPreview {
		out.PreviewPath = filepath.Join(studyDir, instanceUID+".png")
		opts := preview.Options{
			Invert: ds.GetString(dicom.TagPhotometricInterpretation) == preview.PhotometricMonochrome1,
		}
		if representation, ok := ds.GetInt(dicom.TagPixelRepresentation); ok && representation == 1 {
			opts.Signed = true
		}
		if err := writeFile(out.PreviewPath, func(bw *bufio.Writer) error {
			return preview.Encode(bw, pixels, opts)
		}); err != nil {
			return out, err
		}
	}

	w.logger.Debug("Instance written",
		"sop_instance", instanceUID,
		"sop_class", types.SOPClassName(meta.SOPClassUID),
		"dicom_path", out.DICOMPath,
		"preview_path", out.PreviewPath)
	return out, nil
}

// AttachPixels stores the frame as PixelData and makes the image pixel
// attributes describe the decoded buffer. Photometric interpretation and
// pixel representation from the metadata are kept when present.
func AttachPixels(ds *dicom.Dataset, pixels *codec.PixelBuffer) {
	ds.AddElement(dicom.TagRows, types.VR_US, []int64{int64(pixels.Rows)})
	ds.AddElement(dicom.TagColumns, types.VR_US, []int64{int64(pixels.Columns)})
	ds.AddElement(dicom.TagSamplesPerPixel, types.VR_US, []int64{int64(pixels.SamplesPerPixel)})

	if bits, ok := ds.GetInt(dicom.TagBitsAllocated); !ok || bits != int64(pixels.BitsAllocated) {
		ds.AddElement(dicom.TagBitsAllocated, types.VR_US, []int64{int64(pixels.BitsAllocated)})
		ds.AddElement(dicom.TagBitsStored, types.VR_US, []int64{int64(pixels.BitsAllocated)})
	}
	if _, ok := ds.GetElement(dicom.TagBitsStored); !ok {
		ds.AddElement(dicom.TagBitsStored, types.VR_US, []int64{int64(pixels.BitsAllocated)})
	}
	if _, ok := ds.GetElement(dicom.TagPixelRepresentation); !ok {
		ds.AddElement(dicom.TagPixelRepresentation, types.VR_US, []int64{0})
	}
	if ds.GetString(dicom.TagPhotometricInterpretation) == "" {
		ds.AddElement(dicom.TagPhotometricInterpretation, types.VR_CS, []string{pixels.PhotometricInterpretation})
	}
	// Decoded samples are always interleaved
	if pixels.SamplesPerPixel > 1 {
		ds.AddElement(dicom.TagPlanarConfiguration, types.VR_US, []int64{0})
	} else {
		ds.Remove(dicom.TagPlanarConfiguration)
	}

	vr := types.VR_OB
	if pixels.BitsAllocated > 8 {
		vr = types.VR_OW
	}
	ds.AddElement(dicom.TagPixelData, vr, pixels.Data)
}

func writeFile(path string, write func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// verifyFile re-reads a written file and checks its identity, the item
// count of every top-level sequence and the pixels.
func verifyFile(path, instanceUID string, written *dicom.Dataset, pixels *codec.PixelBuffer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	meta, ds, err := dicom.ReadPart10(data)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	if got := meta.GetString(dicom.TagMediaStorageSOPInstanceUID); got != instanceUID {
		return fmt.Errorf("verify %s: media storage instance %q, want %q", path, got, instanceUID)
	}

	for _, tag := range written.Tags() {
		if element, _ := written.GetElement(tag); element.VR != types.VR_SQ {
			continue
		}
		if got, want := len(ds.GetSequence(tag)), len(written.GetSequence(tag)); got != want {
			return fmt.Errorf("verify %s: sequence %s has %d items, want %d", path, tag, got, want)
		}
	}

	element, ok := ds.GetElement(dicom.TagPixelData)
	if !ok {
		return fmt.Errorf("verify %s: pixel data missing", path)
	}
	raw, _ := element.Value.([]byte)
	// Odd length pixel data is padded by one byte on write
	if len(raw) < len(pixels.Data) || !bytes.Equal(raw[:len(pixels.Data)], pixels.Data) {
		return fmt.Errorf("verify %s: pixel data differs from decoded frame", path)
	}
	return nil
}
