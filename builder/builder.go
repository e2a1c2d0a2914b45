// Package builder converts the generic attribute mappings of the metadata
// tree into typed DICOM datasets.
//
// Build is pure: it returns a new dataset together with every key it left
// out and why. Callers decide how to log skips.
package builder

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/caio-sobreiro/dicomizer/dicom"
	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/metadata"
	"github.com/caio-sobreiro/dicomizer/types"
)

// PrivateCreatorKey is the metadata key carrying a private creator
// identifier. It does not name a standard attribute and is always skipped.
const PrivateCreatorKey = "PrivateCreatorID"

// Result is the outcome of building one attribute mapping.
type Result struct {
	Dataset *dicom.Dataset
	Skipped []*dcmerrors.SkipError
}

// Builder builds datasets using a Resolver for VR lookup.
type Builder struct {
	resolver *dicom.Resolver
}

// Option configures a Builder.
type Option func(*Builder)

// WithDictionary replaces the standard data dictionary.
func WithDictionary(dict dicom.Dictionary) Option {
	return func(b *Builder) {
		b.resolver = dicom.NewResolver(dict)
	}
}

// New creates a builder backed by the standard dictionary unless an option
// says otherwise.
func New(opts ...Option) *Builder {
	b := &Builder{resolver: dicom.NewResolver(nil)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build converts one attribute mapping into a dataset. Keys are processed in
// sorted order so skips are reported deterministically. A failure on one key
// never affects the others.
func (b *Builder) Build(level map[string]interface{}, overrides dicom.VROverrides) Result {
	var skipped []*dcmerrors.SkipError
	ds := b.build(level, overrides, "", &skipped)
	return Result{Dataset: ds, Skipped: skipped}
}

// BuildInstance merges the patient, study, series and instance mappings of
// one instance into a single dataset. Later levels overwrite earlier ones
// for the same tag.
func (b *Builder) BuildInstance(levels metadata.Levels) Result {
	result := Result{Dataset: dicom.NewDataset()}
	for _, level := range levels.All() {
		built := b.Build(level, levels.Overrides)
		result.Dataset.Merge(built.Dataset)
		result.Skipped = append(result.Skipped, built.Skipped...)
	}
	return result
}

func (b *Builder) build(level map[string]interface{}, overrides dicom.VROverrides, prefix string, skipped *[]*dcmerrors.SkipError) *dicom.Dataset {
	ds := dicom.NewDataset()

	keys := make([]string, 0, len(level))
	for key := range level {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := prefix + key
		element, skip := b.buildElement(key, level[key], overrides, path, skipped)
		if skip != nil {
			*skipped = append(*skipped, skip)
			continue
		}

		switch {
		case element.Tag.IsFileMeta():
			*skipped = append(*skipped, dcmerrors.NewSkipError(path, dcmerrors.SkipFileMetaGroup, nil))
		case element.Tag.IsPrivate():
			*skipped = append(*skipped, dcmerrors.NewSkipError(path, dcmerrors.SkipPrivateGroup, nil))
		default:
			ds.Add(element)
		}
	}

	return ds
}

func (b *Builder) buildElement(key string, value interface{}, overrides dicom.VROverrides, path string, skipped *[]*dcmerrors.SkipError) (*dicom.Element, *dcmerrors.SkipError) {
	if key == PrivateCreatorKey {
		return nil, dcmerrors.NewSkipError(path, dcmerrors.SkipPrivateCreator, nil)
	}

	vr, err := b.resolver.Resolve(key, overrides)
	if err != nil {
		return nil, dcmerrors.NewSkipError(path, dcmerrors.SkipUnresolvedVR, err)
	}

	tag, err := dicom.ParseTagKey(key, b.resolver.Dictionary())
	if err != nil {
		return nil, dcmerrors.NewSkipError(path, dcmerrors.SkipInvalidValue, err)
	}

	switch {
	case types.IsSequence(vr):
		items, err := b.buildSequence(value, overrides, path, skipped)
		if err != nil {
			return nil, dcmerrors.NewSkipError(path, dcmerrors.SkipInvalidValue, err)
		}
		value = items
	case types.IsBinaryOpaque(vr):
		raw, err := decodeBase64(value)
		if err != nil {
			return nil, dcmerrors.NewSkipError(path, dcmerrors.SkipInvalidValue, err)
		}
		value = raw
	}

	element, err := dicom.NewElement(tag, vr, value)
	if err != nil {
		return nil, dcmerrors.NewSkipError(path, dcmerrors.SkipInvalidValue, err)
	}

	if vr == types.VR_USorSS && exceedsSignedShort(element.Value) {
		element.VR = types.VR_US
	}
	return element, nil
}

// buildSequence builds every item of a sequence value. Nested skips are
// reported with an indexed path such as "Seq[0].Key".
func (b *Builder) buildSequence(value interface{}, overrides dicom.VROverrides, path string, skipped *[]*dcmerrors.SkipError) ([]*dicom.Dataset, error) {
	if value == nil {
		return []*dicom.Dataset{}, nil
	}
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("sequence value must be a list, got %T: %w", value, dcmerrors.ErrInvalidValue)
	}

	items := make([]*dicom.Dataset, 0, len(list))
	for i, entry := range list {
		mapping, ok := asMapping(entry)
		if !ok {
			return nil, fmt.Errorf("sequence item %d must be an object, got %T: %w", i, entry, dcmerrors.ErrInvalidValue)
		}
		prefix := fmt.Sprintf("%s[%d].", path, i)
		items = append(items, b.build(mapping, overrides, prefix, skipped))
	}
	return items, nil
}

func asMapping(entry interface{}) (map[string]interface{}, bool) {
	switch m := entry.(type) {
	case map[string]interface{}:
		return m, true
	case metadata.Attributes:
		return m, true
	}
	return nil, false
}

// decodeBase64 decodes a binary value carried as base64 text. Line breaks
// and other whitespace inside the text are ignored.
func decodeBase64(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return v, nil
	case string:
		cleaned := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\r', '\n':
				return -1
			}
			return r
		}, v)
		raw, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("base64 value: %v: %w", err, dcmerrors.ErrInvalidValue)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("binary value must be base64 text, got %T: %w", value, dcmerrors.ErrInvalidValue)
	}
}

func exceedsSignedShort(value interface{}) bool {
	values, _ := value.([]int64)
	for _, v := range values {
		if v > types.MaxSignedShort {
			return true
		}
	}
	return false
}
