// Package metadata models the JSON study metadata returned by the image store:
// a Patient, Study, Series and Instance tree of DICOM attribute mappings with
// per-instance VR overrides and image frame descriptors.
package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

// Attributes maps a tag key (keyword or hex tag) to its JSON value. Sequence
// values are lists of nested map[string]interface{}; numbers are json.Number.
type Attributes map[string]interface{}

// String returns the attribute as text, or "" when absent.
func (a Attributes) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the attribute as an integer. Integer strings are accepted.
func (a Attributes) Int(key string) (int64, bool) {
	text := a.String(key)
	if text == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Level is one node of the tree carrying a DICOM attribute mapping.
type Level struct {
	DICOM Attributes `json:"DICOM"`
}

// Frame describes one image frame of an instance.
type Frame struct {
	ID                  string `json:"ID"`
	FrameSizeInBytes    int64  `json:"FrameSizeInBytes,omitempty"`
	MinPixelValue       *int64 `json:"MinPixelValue,omitempty"`
	MaxPixelValue       *int64 `json:"MaxPixelValue,omitempty"`
	PixelDataChecksumID string `json:"PixelDataChecksumFromBaseToFullResolution,omitempty"`
}

// Instance is one SOP instance.
type Instance struct {
	DICOM                   Attributes `json:"DICOM"`
	DICOMVRs                Overrides  `json:"DICOMVRs,omitempty"`
	ImageFrames             []Frame    `json:"ImageFrames"`
	StoredTransferSyntaxUID string     `json:"StoredTransferSyntaxUID,omitempty"`
}

// Number returns the instance's InstanceNumber attribute.
func (i *Instance) Number() (int64, bool) {
	return i.DICOM.Int("InstanceNumber")
}

// Series is one series and its instances, keyed by SOP instance UID.
type Series struct {
	DICOM     Attributes            `json:"DICOM"`
	Instances OrderedMap[*Instance] `json:"Instances"`
}

// Study holds the study level attributes and its series, keyed by series
// instance UID.
type Study struct {
	DICOM  Attributes          `json:"DICOM"`
	Series OrderedMap[*Series] `json:"Series"`
}

// Tree is the complete metadata document of one study. It is not modified
// after Decode returns.
type Tree struct {
	SchemaVersion string `json:"SchemaVersion,omitempty"`
	DatastoreID   string `json:"DatastoreID,omitempty"`
	ImageSetID    string `json:"ImageSetID,omitempty"`
	Patient       Level  `json:"Patient"`
	Study         Study  `json:"Study"`
}

// Series returns the series with the given UID.
func (t *Tree) Series(seriesUID string) (*Series, error) {
	series, ok := t.Study.Series.Get(seriesUID)
	if !ok || series == nil {
		return nil, fmt.Errorf("series %s: %w", seriesUID, dcmerrors.ErrNotFound)
	}
	return series, nil
}

// Instance returns the instance with the given UID inside a series.
func (t *Tree) Instance(seriesUID, instanceUID string) (*Instance, error) {
	series, err := t.Series(seriesUID)
	if err != nil {
		return nil, err
	}
	instance, ok := series.Instances.Get(instanceUID)
	if !ok || instance == nil {
		return nil, fmt.Errorf("instance %s in series %s: %w", instanceUID, seriesUID, dcmerrors.ErrNotFound)
	}
	return instance, nil
}

// Levels are the four attribute mappings merged into one instance's dataset,
// least specific first.
type Levels struct {
	Patient  Attributes
	Study    Attributes
	Series   Attributes
	Instance Attributes

	// Overrides is the VR table of this instance only.
	Overrides Overrides
}

// All returns the four mappings in merge order: patient, study, series, instance.
func (l Levels) All() []Attributes {
	return []Attributes{l.Patient, l.Study, l.Series, l.Instance}
}

// InstanceLevels collects the attribute mappings that apply to one instance.
func (t *Tree) InstanceLevels(seriesUID, instanceUID string) (Levels, error) {
	series, err := t.Series(seriesUID)
	if err != nil {
		return Levels{}, err
	}
	instance, err := t.Instance(seriesUID, instanceUID)
	if err != nil {
		return Levels{}, err
	}
	return Levels{
		Patient:   t.Patient.DICOM,
		Study:     t.Study.DICOM,
		Series:    series.DICOM,
		Instance:  instance.DICOM,
		Overrides: instance.DICOMVRs,
	}, nil
}
