package types

// DICOM Transfer Syntax UIDs as defined in DICOM Part 5, Section 8 and Part 6, Annex A.4
// https://dicom.nema.org/medical/dicom/current/output/chtml/part05/chapter_8.html
const (
	// ImplicitVRLittleEndian - Default Transfer Syntax for DICOM
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"

	// ExplicitVRLittleEndian - Explicit VR with little endian byte ordering.
	// Every file the converter emits uses it.
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

	// JPEG2000Lossless - JPEG 2000 Image Compression (Lossless Only)
	JPEG2000Lossless = "1.2.840.10008.1.2.4.90"

	// JPEG2000 - JPEG 2000 Image Compression (lossy or lossless)
	JPEG2000 = "1.2.840.10008.1.2.4.91"

	// HTJ2KLossless - High-Throughput JPEG 2000 (Lossless Only).
	// Image stores commonly keep frames in this syntax.
	HTJ2KLossless = "1.2.840.10008.1.2.4.201"

	// HTJ2KLosslessRPCL - High-Throughput JPEG 2000 with RPCL progression (Lossless Only)
	HTJ2KLosslessRPCL = "1.2.840.10008.1.2.4.202"

	// HTJ2K - High-Throughput JPEG 2000 (lossy or lossless)
	HTJ2K = "1.2.840.10008.1.2.4.203"
)

// Implementation identification written into the file meta group.
const (
	ImplementationClassUID    = "1.2.826.0.1.3680043.10.1408.1"
	ImplementationVersionName = "DICOMIZER_1"
)

var transferSyntaxNames = map[string]string{
	ImplicitVRLittleEndian: "Implicit VR Little Endian",
	ExplicitVRLittleEndian: "Explicit VR Little Endian",
	JPEG2000Lossless:       "JPEG 2000 Lossless Only",
	JPEG2000:               "JPEG 2000",
	HTJ2KLossless:          "HTJ2K Lossless Only",
	HTJ2KLosslessRPCL:      "HTJ2K with RPCL Options Lossless Only",
	HTJ2K:                  "HTJ2K",
}

// TransferSyntaxName returns the human readable name of uid, or uid itself
// when it is not known.
func TransferSyntaxName(uid string) string {
	if name, ok := transferSyntaxNames[uid]; ok {
		return name
	}
	return uid
}

// IsEncapsulated reports whether uid stores pixel data as compressed
// fragments (the JPEG 2000 and HTJ2K families).
func IsEncapsulated(uid string) bool {
	switch uid {
	case JPEG2000Lossless, JPEG2000, HTJ2KLossless, HTJ2KLosslessRPCL, HTJ2K:
		return true
	}
	return false
}
