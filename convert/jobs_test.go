package convert

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomizer/fetch"
	"github.com/caio-sobreiro/dicomizer/metadata"
)

const jobsMetadata = `{
  "Patient": {"DICOM": {"PatientName": "DOE^JOHN"}},
  "Study": {
    "DICOM": {"StudyInstanceUID": "1.9"},
    "Series": {
      "1.9.1": {
        "DICOM": {"SeriesNumber": 1, "Modality": "CT", "SeriesDescription": "Axial"},
        "Instances": {
          "1.9.1.3": {"DICOM": {"InstanceNumber": 3}, "ImageFrames": [{"ID": "f3"}, {"ID": "f3b"}]},
          "1.9.1.1": {"DICOM": {"InstanceNumber": 1}, "ImageFrames": [{"ID": "f1"}]},
          "1.9.1.x": {"DICOM": {"InstanceNumber": "abc"}, "ImageFrames": [{"ID": "fx"}]},
          "1.9.1.2": {"DICOM": {"InstanceNumber": "2"}, "ImageFrames": [{"ID": "f2"}]}
        }
      },
      "1.9.2": {
        "DICOM": {"SeriesNumber": 2, "Modality": "SR"},
        "Instances": {
          "1.9.2.1": {"DICOM": {"InstanceNumber": 1}, "ImageFrames": []}
        }
      },
      "1.9.0": {
        "DICOM": {"SeriesNumber": 3, "Modality": "MR"},
        "Instances": {
          "1.9.0.2": {"DICOM": {"InstanceNumber": 2}, "ImageFrames": [{"ID": "g2"}]},
          "1.9.0.1": {"DICOM": {"InstanceNumber": 1}, "ImageFrames": [{"ID": "g1"}]}
        }
      }
    }
  }
}`

func TestEnumerateJobs(t *testing.T) {
	tree, err := metadata.Decode([]byte(jobsMetadata))
	require.NoError(t, err)

	jobs := EnumerateJobs(tree, "ds", "study", nil)

	var got []string
	for _, job := range jobs {
		got = append(got, fmt.Sprintf("%s/%d/%s", job.SeriesUID, job.InstanceNumber, job.FrameID))
		assert.Equal(t, "ds", job.DatastoreID)
		assert.Equal(t, "study", job.StudyID)
		assert.Nil(t, job.Pixels)
	}

	// Series keep metadata order, instances are sorted by number, only the
	// first frame is used, frameless and unnumbered instances are dropped.
	assert.Equal(t, []string{
		"1.9.1/1/f1",
		"1.9.1/2/f2",
		"1.9.1/3/f3",
		"1.9.0/1/g1",
		"1.9.0/2/g2",
	}, got)
}

func TestEnumerateJobs_EmptyStudy(t *testing.T) {
	tree, err := metadata.Decode([]byte(`{"Study": {"DICOM": {}, "Series": {}}}`))
	require.NoError(t, err)
	assert.Empty(t, EnumerateJobs(tree, "ds", "study", nil))
}

type recordingSubmitter struct {
	size    int
	indices []int
	failAt  int
}

func (r *recordingSubmitter) Size() int { return r.size }

func (r *recordingSubmitter) Submit(job *fetch.Job, index int) error {
	if r.failAt > 0 && len(r.indices) == r.failAt {
		return fmt.Errorf("queue closed")
	}
	r.indices = append(r.indices, index)
	return nil
}

func TestDispatch_RoundRobin(t *testing.T) {
	jobs := make([]*fetch.Job, 7)
	for i := range jobs {
		jobs[i] = &fetch.Job{InstanceUID: fmt.Sprintf("1.%d", i)}
	}

	sub := &recordingSubmitter{size: 3}
	require.NoError(t, Dispatch(sub, jobs))
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, sub.indices)
}

func TestDispatch_Errors(t *testing.T) {
	jobs := []*fetch.Job{{InstanceUID: "1.1"}, {InstanceUID: "1.2"}}

	err := Dispatch(&recordingSubmitter{size: 0}, jobs)
	assert.Error(t, err)

	err = Dispatch(&recordingSubmitter{size: 2, failAt: 1}, jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1.2")
}

func TestSeriesSummaries(t *testing.T) {
	tree, err := metadata.Decode([]byte(jobsMetadata))
	require.NoError(t, err)

	summaries := SeriesSummaries(tree)
	require.Len(t, summaries, 3)

	assert.Equal(t, SeriesSummary{
		SeriesInstanceUID: "1.9.1",
		SeriesNumber:      "1",
		Modality:          "CT",
		SeriesDescription: "Axial",
		Instances:         4,
	}, summaries[0])
	assert.Equal(t, "1.9.2", summaries[1].SeriesInstanceUID)
	assert.Equal(t, 1, summaries[1].Instances)
	assert.Equal(t, "MR", summaries[2].Modality)
}
