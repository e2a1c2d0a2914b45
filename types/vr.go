// Package types contains the DICOM vocabulary shared by the converter packages:
// value representations, transfer syntaxes and SOP classes.
package types

import "strings"

// VR (Value Representation) constants for DICOM data elements
const (
	VR_AE = "AE" // Application Entity
	VR_AS = "AS" // Age String
	VR_AT = "AT" // Attribute Tag
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_DS = "DS" // Decimal String
	VR_DT = "DT" // Date Time
	VR_FL = "FL" // Floating Point Single
	VR_FD = "FD" // Floating Point Double
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OD = "OD" // Other Double
	VR_OF = "OF" // Other Float
	VR_OL = "OL" // Other Long
	VR_OV = "OV" // Other Very Long
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SL = "SL" // Signed Long
	VR_SQ = "SQ" // Sequence of Items
	VR_SS = "SS" // Signed Short
	VR_ST = "ST" // Short Text
	VR_SV = "SV" // Signed Very Long
	VR_TM = "TM" // Time
	VR_UC = "UC" // Unlimited Characters
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_UR = "UR" // Universal Resource
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
	VR_UV = "UV" // Unsigned Very Long
)

// VR_USorSS is the dictionary VR of tags whose encoding is either unsigned or
// signed 16-bit depending on the pixel representation.
const VR_USorSS = "US or SS"

// MaxSignedShort is the largest value representable as SS.
const MaxSignedShort = 32767

// ambiguousSeparator joins alternatives of a multi-valued dictionary VR.
const ambiguousSeparator = " or "

// JoinVRs renders a dictionary VR list the way the standard prints it,
// e.g. []string{"US", "SS"} becomes "US or SS".
func JoinVRs(vrs []string) string {
	return strings.Join(vrs, ambiguousSeparator)
}

// SplitVR returns the alternatives of a possibly ambiguous VR.
func SplitVR(vr string) []string {
	return strings.Split(vr, ambiguousSeparator)
}

// IsAmbiguous reports whether vr names more than one encoding.
func IsAmbiguous(vr string) bool {
	return strings.Contains(vr, ambiguousSeparator)
}

// IsSequence reports whether vr is SQ.
func IsSequence(vr string) bool {
	return vr == VR_SQ
}

// binaryOpaqueVRs are carried as base64 text in JSON metadata.
var binaryOpaqueVRs = map[string]bool{
	VR_OB: true,
	VR_OD: true,
	VR_OF: true,
	VR_OL: true,
	VR_OV: true,
	VR_OW: true,
	VR_UN: true,
}

// IsBinaryOpaque reports whether every alternative of vr is an "other" byte
// VR (OB, OD, OF, OL, OV, OW) or UN.
func IsBinaryOpaque(vr string) bool {
	for _, alt := range SplitVR(vr) {
		if !binaryOpaqueVRs[alt] {
			return false
		}
	}
	return true
}

// IsLongVR reports whether vr uses the 12 byte explicit VR header
// (2 reserved bytes followed by a 32-bit length).
func IsLongVR(vr string) bool {
	switch vr {
	case VR_OB, VR_OD, VR_OF, VR_OL, VR_OV, VR_OW,
		VR_SQ, VR_UC, VR_UR, VR_UT, VR_UN, VR_SV, VR_UV:
		return true
	}
	return false
}

// IsInteger reports whether vr is a binary integer VR.
func IsInteger(vr string) bool {
	switch vr {
	case VR_US, VR_SS, VR_UL, VR_SL, VR_UV, VR_SV, VR_USorSS:
		return true
	}
	return false
}

// IsFloat reports whether vr is a binary floating point VR.
func IsFloat(vr string) bool {
	return vr == VR_FL || vr == VR_FD
}

// IntegerRange returns the inclusive bounds of a binary integer VR.
// UV values are bounded by int64 since metadata numbers are decoded as int64.
func IntegerRange(vr string) (min, max int64) {
	switch vr {
	case VR_US:
		return 0, 0xFFFF
	case VR_SS:
		return -32768, MaxSignedShort
	case VR_USorSS:
		return -32768, 0xFFFF
	case VR_UL:
		return 0, 0xFFFFFFFF
	case VR_SL:
		return -2147483648, 2147483647
	case VR_UV:
		return 0, 1<<63 - 1
	default:
		return -1 << 63, 1<<63 - 1
	}
}

// ValueWidth returns the encoded size in bytes of one value of a binary VR,
// or 0 for VRs that are not fixed width.
func ValueWidth(vr string) int {
	switch vr {
	case VR_US, VR_SS, VR_USorSS:
		return 2
	case VR_UL, VR_SL, VR_FL, VR_AT:
		return 4
	case VR_UV, VR_SV, VR_FD:
		return 8
	}
	return 0
}

// PaddingByte returns the byte used to pad odd-length values of vr.
func PaddingByte(vr string) byte {
	if vr == VR_UI || binaryOpaqueVRs[vr] {
		return 0x00
	}
	return 0x20
}
