package convert

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/caio-sobreiro/dicomizer/fetch"
	"github.com/caio-sobreiro/dicomizer/metadata"
)

// EnumerateJobs creates one fetch job per instance that has image frames.
// Series keep their metadata order; within a series jobs are sorted by
// instance number. Only the first frame of an instance is fetched.
func EnumerateJobs(tree *metadata.Tree, datastoreID, studyID string, logger *slog.Logger) []*fetch.Job {
	if logger == nil {
		logger = slog.Default()
	}

	var jobs []*fetch.Job
	for _, seriesUID := range tree.Study.Series.Keys() {
		series, _ := tree.Study.Series.Get(seriesUID)
		if series == nil {
			continue
		}

		var seriesJobs []*fetch.Job
		for _, instanceUID := range series.Instances.Keys() {
			instance, _ := series.Instances.Get(instanceUID)
			if instance == nil || len(instance.ImageFrames) == 0 {
				logger.Info("Skipping instance without image frames",
					"series_uid", seriesUID,
					"sop_instance", instanceUID)
				continue
			}

			number, ok := instance.Number()
			if !ok {
				logger.Warn("Skipping instance without a usable instance number",
					"series_uid", seriesUID,
					"sop_instance", instanceUID,
					"instance_number", instance.DICOM["InstanceNumber"])
				continue
			}

			seriesJobs = append(seriesJobs, &fetch.Job{
				DatastoreID:    datastoreID,
				StudyID:        studyID,
				SeriesUID:      seriesUID,
				InstanceUID:    instanceUID,
				FrameID:        instance.ImageFrames[0].ID,
				InstanceNumber: number,
			})
		}

		sort.SliceStable(seriesJobs, func(i, j int) bool {
			return seriesJobs[i].InstanceNumber < seriesJobs[j].InstanceNumber
		})
		jobs = append(jobs, seriesJobs...)
	}
	return jobs
}

// Submitter accepts jobs for a numbered worker.
type Submitter interface {
	Size() int
	Submit(job *fetch.Job, index int) error
}

// Dispatch assigns jobs to workers round-robin: job i goes to worker
// i modulo the pool size.
func Dispatch(pool Submitter, jobs []*fetch.Job) error {
	size := pool.Size()
	if size < 1 {
		return fmt.Errorf("cannot dispatch to an empty pool")
	}
	for i, job := range jobs {
		if err := pool.Submit(job, i%size); err != nil {
			return fmt.Errorf("dispatch job %d (%s): %w", i, job.InstanceUID, err)
		}
	}
	return nil
}

// SeriesSummary describes one series of the study.
type SeriesSummary struct {
	SeriesInstanceUID string
	SeriesNumber      string
	Modality          string
	SeriesDescription string
	Instances         int
}

// SeriesSummaries lists the study's series in metadata order.
func SeriesSummaries(tree *metadata.Tree) []SeriesSummary {
	summaries := make([]SeriesSummary, 0, tree.Study.Series.Len())
	for _, seriesUID := range tree.Study.Series.Keys() {
		series, _ := tree.Study.Series.Get(seriesUID)
		if series == nil {
			continue
		}
		summaries = append(summaries, SeriesSummary{
			SeriesInstanceUID: seriesUID,
			SeriesNumber:      series.DICOM.String("SeriesNumber"),
			Modality:          series.DICOM.String("Modality"),
			SeriesDescription: series.DICOM.String("SeriesDescription"),
			Instances:         series.Instances.Len(),
		})
	}
	return summaries
}
