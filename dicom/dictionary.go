package dicom

import (
	"fmt"
	"strconv"
	"strings"

	dcmtag "github.com/suyashkumar/dicom/pkg/tag"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/types"
)

// Dictionary maps attribute keywords to tags and tags to their standard VR.
type Dictionary interface {
	// LookupKeyword returns the tag named by a standard keyword such as "PatientName".
	LookupKeyword(keyword string) (Tag, bool)
	// LookupVR returns the standard VR of tag. Tags with more than one
	// permitted VR report them joined, e.g. "US or SS".
	LookupVR(tag Tag) (string, bool)
}

// StandardDictionary is backed by the DICOM data dictionary shipped with
// github.com/suyashkumar/dicom.
var StandardDictionary Dictionary = standardDictionary{}

type standardDictionary struct{}

func (standardDictionary) LookupKeyword(keyword string) (Tag, bool) {
	info, err := dcmtag.FindByName(keyword)
	if err != nil {
		return Tag{}, false
	}
	return Tag{Group: info.Tag.Group, Element: info.Tag.Element}, true
}

func (standardDictionary) LookupVR(tag Tag) (string, bool) {
	// Private tags never resolve through the standard dictionary, even when a
	// masked entry would match them.
	if tag.IsPrivate() {
		return "", false
	}
	info, err := dcmtag.Find(dcmtag.Tag{Group: tag.Group, Element: tag.Element})
	if err != nil || len(info.VRs) == 0 {
		return "", false
	}
	return types.JoinVRs(info.VRs), true
}

// ParseTagKey converts a metadata key into a tag. Keys are either standard
// keywords ("PatientName"), eight hex digits ("00091001") or the bracketed
// form "(0009,1001)".
func ParseTagKey(key string, dict Dictionary) (Tag, error) {
	trimmed := strings.TrimSpace(key)
	if tag, ok := parseHexTag(trimmed); ok {
		return tag, nil
	}
	if dict != nil {
		if tag, ok := dict.LookupKeyword(trimmed); ok {
			return tag, nil
		}
	}
	return Tag{}, fmt.Errorf("key %q is neither a keyword nor a tag: %w", key, dcmerrors.ErrInvalidValue)
}

func parseHexTag(key string) (Tag, bool) {
	s := strings.TrimSuffix(strings.TrimPrefix(key, "("), ")")
	var groupHex, elementHex string
	if g, e, found := strings.Cut(s, ","); found {
		groupHex, elementHex = strings.TrimSpace(g), strings.TrimSpace(e)
	} else if len(s) == 8 {
		groupHex, elementHex = s[:4], s[4:]
	} else {
		return Tag{}, false
	}
	if len(groupHex) != 4 || len(elementHex) != 4 {
		return Tag{}, false
	}
	group, err := strconv.ParseUint(groupHex, 16, 16)
	if err != nil {
		return Tag{}, false
	}
	element, err := strconv.ParseUint(elementHex, 16, 16)
	if err != nil {
		return Tag{}, false
	}
	return Tag{Group: uint16(group), Element: uint16(element)}, true
}

// VROverrides supplies VRs for keys the standard dictionary does not know.
type VROverrides interface {
	// Lookup returns the VR of the first override entry for key.
	Lookup(key string) (string, bool)
}

// Resolver resolves metadata keys to value representations.
type Resolver struct {
	dict Dictionary
}

// NewResolver creates a resolver over dict. A nil dict selects StandardDictionary.
func NewResolver(dict Dictionary) *Resolver {
	if dict == nil {
		dict = StandardDictionary
	}
	return &Resolver{dict: dict}
}

// Dictionary returns the dictionary the resolver consults first.
func (r *Resolver) Dictionary() Dictionary {
	return r.dict
}

// Resolve returns the VR of key. The standard dictionary wins over overrides;
// overrides are only consulted on a dictionary miss. A key found in neither
// yields ErrUnresolvedVR.
func (r *Resolver) Resolve(key string, overrides VROverrides) (string, error) {
	if tag, err := ParseTagKey(key, r.dict); err == nil {
		if vr, ok := r.dict.LookupVR(tag); ok {
			return vr, nil
		}
	}
	if overrides != nil {
		if vr, ok := overrides.Lookup(key); ok {
			return vr, nil
		}
	}
	return "", fmt.Errorf("%s: %w", key, dcmerrors.ErrUnresolvedVR)
}
