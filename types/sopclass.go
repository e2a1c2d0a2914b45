package types

// DICOM SOP Class UIDs as defined in DICOM Part 4, Annex B
// https://dicom.nema.org/medical/dicom/current/output/chtml/part04/sect_B.5.html
const (
	ComputedRadiographyImageStorage        = "1.2.840.10008.5.1.4.1.1.1"
	DigitalXRayImageStorageForPresentation = "1.2.840.10008.5.1.4.1.1.1.1"
	CTImageStorage                         = "1.2.840.10008.5.1.4.1.1.2"
	UltrasoundImageStorage                 = "1.2.840.10008.5.1.4.1.1.6.1"
	MRImageStorage                         = "1.2.840.10008.5.1.4.1.1.4"
	NuclearMedicineImageStorage            = "1.2.840.10008.5.1.4.1.1.20"
	PositronEmissionTomographyImageStorage = "1.2.840.10008.5.1.4.1.1.128"

	// SecondaryCaptureImageStorage is used in the file meta group when an
	// instance carries no SOPClassUID of its own.
	SecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7"
)

var sopClassNames = map[string]string{
	ComputedRadiographyImageStorage:        "Computed Radiography Image Storage",
	DigitalXRayImageStorageForPresentation: "Digital X-Ray Image Storage - For Presentation",
	CTImageStorage:                         "CT Image Storage",
	UltrasoundImageStorage:                 "Ultrasound Image Storage",
	MRImageStorage:                         "MR Image Storage",
	NuclearMedicineImageStorage:            "Nuclear Medicine Image Storage",
	PositronEmissionTomographyImageStorage: "Positron Emission Tomography Image Storage",
	SecondaryCaptureImageStorage:           "Secondary Capture Image Storage",
}

// SOPClassName returns the human readable name of uid, or uid itself when
// it is not known.
func SOPClassName(uid string) string {
	if name, ok := sopClassNames[uid]; ok {
		return name
	}
	return uid
}
