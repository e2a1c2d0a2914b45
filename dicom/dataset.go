package dicom

import (
	"fmt"
	"sort"
	"strings"
)

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// IsPrivate reports whether the tag belongs to an odd (vendor) group.
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// IsFileMeta reports whether the tag belongs to the file meta group 0002.
func (t Tag) IsFileMeta() bool {
	return t.Group == 0x0002
}

// Less orders tags by group, then element, as the encoding requires.
func (t Tag) Less(other Tag) bool {
	if t.Group != other.Group {
		return t.Group < other.Group
	}
	return t.Element < other.Element
}

// Tags the converter reads or writes directly.
var (
	TagFileMetaGroupLength        = Tag{0x0002, 0x0000}
	TagFileMetaVersion            = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID    = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID          = Tag{0x0002, 0x0010}
	TagImplementationClassUID     = Tag{0x0002, 0x0012}
	TagImplementationVersionName  = Tag{0x0002, 0x0013}
	TagSOPClassUID                = Tag{0x0008, 0x0016}
	TagSOPInstanceUID             = Tag{0x0008, 0x0018}
	TagModality                   = Tag{0x0008, 0x0060}
	TagPatientName                = Tag{0x0010, 0x0010}
	TagPatientID                  = Tag{0x0010, 0x0020}
	TagStudyInstanceUID           = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID          = Tag{0x0020, 0x000E}
	TagInstanceNumber             = Tag{0x0020, 0x0013}
	TagSamplesPerPixel            = Tag{0x0028, 0x0002}
	TagPhotometricInterpretation  = Tag{0x0028, 0x0004}
	TagPlanarConfiguration        = Tag{0x0028, 0x0006}
	TagRows                       = Tag{0x0028, 0x0010}
	TagColumns                    = Tag{0x0028, 0x0011}
	TagBitsAllocated              = Tag{0x0028, 0x0100}
	TagBitsStored                 = Tag{0x0028, 0x0101}
	TagHighBit                    = Tag{0x0028, 0x0102}
	TagPixelRepresentation        = Tag{0x0028, 0x0103}
	TagPixelData                  = Tag{0x7FE0, 0x0010}
	TagItem                       = Tag{0xFFFE, 0xE000}
	TagItemDelimitation           = Tag{0xFFFE, 0xE00D}
	TagSequenceDelimitation       = Tag{0xFFFE, 0xE0DD}
)

// Element represents a DICOM data element.
//
// Value holds one of: []string for text VRs, []int64 for binary integer VRs,
// []float64 for FL/FD, []Tag for AT, []byte for OB/OW/UN and friends, or
// []*Dataset for SQ.
type Element struct {
	Tag   Tag
	VR    string
	Value interface{}
}

// Dataset represents a collection of DICOM elements
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Elements: make(map[Tag]*Element),
	}
}

// AddElement adds an element to the dataset, replacing any element with the same tag
func (d *Dataset) AddElement(tag Tag, vr string, value interface{}) {
	d.Add(&Element{
		Tag:   tag,
		VR:    vr,
		Value: value,
	})
}

// Add stores element under its tag, replacing any previous element.
func (d *Dataset) Add(element *Element) {
	d.Elements[element.Tag] = element
}

// GetElement returns an element by tag
func (d *Dataset) GetElement(tag Tag) (*Element, bool) {
	element, exists := d.Elements[tag]
	return element, exists
}

// Remove deletes the element with the given tag, if present.
func (d *Dataset) Remove(tag Tag) {
	delete(d.Elements, tag)
}

// Len returns the number of top-level elements.
func (d *Dataset) Len() int {
	return len(d.Elements)
}

// Tags returns the dataset's tags in ascending order.
func (d *Dataset) Tags() []Tag {
	tags := make([]Tag, 0, len(d.Elements))
	for tag := range d.Elements {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Less(tags[j]) })
	return tags
}

// Merge copies every element of other into d. Elements already present in d
// are overwritten (last write wins).
func (d *Dataset) Merge(other *Dataset) {
	if other == nil {
		return
	}
	for _, element := range other.Elements {
		d.Add(element)
	}
}

// GetString returns a string value for a tag
func (d *Dataset) GetString(tag Tag) string {
	values := d.GetStrings(tag)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// GetStrings returns a slice of string values for a tag
func (d *Dataset) GetStrings(tag Tag) []string {
	element, exists := d.Elements[tag]
	if !exists {
		return nil
	}
	switch v := element.Value.(type) {
	case string:
		// Split by backslash for multiple values
		parts := strings.Split(v, "\\")
		result := make([]string, len(parts))
		for i, part := range parts {
			result[i] = strings.TrimSpace(part)
		}
		return result
	case []string:
		result := make([]string, len(v))
		for i, part := range v {
			result[i] = strings.TrimSpace(part)
		}
		return result
	}
	return nil
}

// GetInt returns the first integer value of a tag. Integer strings (IS) are
// parsed as well.
func (d *Dataset) GetInt(tag Tag) (int64, bool) {
	element, exists := d.Elements[tag]
	if !exists {
		return 0, false
	}
	values, err := toInts(element.Value)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

// GetSequence returns the items of a sequence element.
func (d *Dataset) GetSequence(tag Tag) []*Dataset {
	element, exists := d.Elements[tag]
	if !exists {
		return nil
	}
	items, _ := element.Value.([]*Dataset)
	return items
}
