package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Override is one (tag key, VR) entry of an instance's DICOMVRs table.
type Override struct {
	Key string
	VR  string
}

// Overrides is the VR override table of a single instance. Entries keep their
// document order and duplicates are preserved; Lookup returns the first match.
type Overrides []Override

// Lookup returns the VR of the first entry for key.
func (o Overrides) Lookup(key string) (string, bool) {
	for _, entry := range o {
		if entry.Key == key {
			return entry.VR, true
		}
	}
	return "", false
}

// UnmarshalJSON decodes the DICOMVRs object. Duplicate keys are kept in order.
func (o *Overrides) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	entries := Overrides{}
	err := walkObject(dec, func(key string) error {
		var vr string
		if err := dec.Decode(&vr); err != nil {
			return fmt.Errorf("VR of %q: %w", key, err)
		}
		entries = append(entries, Override{Key: key, VR: vr})
		return nil
	})
	if err != nil {
		return fmt.Errorf("DICOMVRs: %w", err)
	}
	*o = entries
	return nil
}

// MarshalJSON encodes the table as a JSON object. Duplicate keys are written
// as they are stored.
func (o Overrides) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(entry.Key)
		vr, _ := json.Marshal(entry.VR)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(vr)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
