// Package convert drives a study conversion: it fetches the metadata,
// enumerates one job per instance, feeds the fetch pool and turns every
// completed frame into a DICOM file and a preview.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/caio-sobreiro/dicomizer/builder"
	"github.com/caio-sobreiro/dicomizer/codec"
	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/fetch"
	"github.com/caio-sobreiro/dicomizer/imagestore"
	"github.com/caio-sobreiro/dicomizer/metadata"
)

// State is the converter's progress through a run.
type State int32

const (
	StateInit State = iota
	StateMetadataFetched
	StateJobsEnumerated
	StateDispatching
	StateCollecting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateMetadataFetched:
		return "metadata-fetched"
	case StateJobsEnumerated:
		return "jobs-enumerated"
	case StateDispatching:
		return "dispatching"
	case StateCollecting:
		return "collecting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Options select the study and tune a run.
type Options struct {
	DatastoreID    string
	StudyID        string
	Workers        int
	OutputDir      string
	FetchTimeout   time.Duration
	CollectTimeout time.Duration
	SkipPreview    bool
	Verify         bool

	// RunID correlates the run's log records.
	RunID string
}

// Converter converts one study.
type Converter struct {
	opts    Options
	store   imagestore.Store
	decoder codec.Decoder
	builder *builder.Builder
	writer  *Writer
	logger  *slog.Logger
	state   atomic.Int32
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the logger for the converter.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = logger
	}
}

// WithBuilder replaces the dataset builder.
func WithBuilder(b *builder.Builder) Option {
	return func(c *Converter) {
		c.builder = b
	}
}

// New creates a converter reading from store and decoding with decoder.
func New(opts Options, store imagestore.Store, decoder codec.Decoder, options ...Option) *Converter {
	if opts.Workers < 1 {
		opts.Workers = fetch.DefaultWorkers
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "./out"
	}

	c := &Converter{
		opts:    opts,
		store:   store,
		decoder: decoder,
	}
	for _, option := range options {
		option(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.RunID != "" {
		c.logger = c.logger.With("run_id", opts.RunID)
	}
	if c.builder == nil {
		c.builder = builder.New()
	}
	c.writer = NewWriter(opts.OutputDir, opts.SkipPreview, opts.Verify, c.logger)
	return c
}

// State returns the current state.
func (c *Converter) State() State {
	return State(c.state.Load())
}

func (c *Converter) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("Converter state changed", "state", s.String())
}

// Run performs the conversion. A metadata failure aborts the run before any
// job is created. Frame and write failures are counted in the report and do
// not stop the run. The report is returned even when Run fails part way.
func (c *Converter) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: c.opts.RunID, StudyID: c.opts.StudyID}
	defer func() {
		report.Elapsed = time.Since(start)
	}()

	c.setState(StateInit)
	pool, err := fetch.NewPool(c.opts.Workers, c.store, c.decoder,
		fetch.WithLogger(c.logger),
		fetch.WithFetchTimeout(c.opts.FetchTimeout))
	if err != nil {
		return report, err
	}
	if err := pool.Start(ctx); err != nil {
		return report, err
	}
	defer pool.Stop()

	tree, err := c.fetchMetadata(ctx)
	if err != nil {
		return report, err
	}
	c.setState(StateMetadataFetched)

	for _, s := range SeriesSummaries(tree) {
		c.logger.Info("Series found",
			"series_uid", s.SeriesInstanceUID,
			"series_number", s.SeriesNumber,
			"modality", s.Modality,
			"description", s.SeriesDescription,
			"instances", s.Instances)
	}

	jobs := EnumerateJobs(tree, c.opts.DatastoreID, c.opts.StudyID, c.logger)
	report.Total = len(jobs)
	c.setState(StateJobsEnumerated)
	c.logger.Info("Jobs enumerated", "jobs", len(jobs), "workers", pool.Size())

	c.setState(StateDispatching)
	if err := Dispatch(pool, jobs); err != nil {
		return report, err
	}

	c.setState(StateCollecting)
	if err := c.collect(ctx, pool, tree, report); err != nil {
		return report, err
	}

	pool.Stop()
	c.setState(StateDone)
	c.logger.Info("Conversion finished",
		"converted", report.Converted,
		"failed", report.Failed,
		"skipped_attributes", report.SkippedAttributes,
		"elapsed", time.Since(start))
	return report, nil
}

func (c *Converter) fetchMetadata(ctx context.Context) (*metadata.Tree, error) {
	start := time.Now()
	blob, err := c.store.GetStudyMetadata(ctx, c.opts.DatastoreID, c.opts.StudyID)
	if err != nil {
		if !errors.Is(err, dcmerrors.ErrMetadataFetch) {
			err = fmt.Errorf("%w: %w", dcmerrors.ErrMetadataFetch, err)
		}
		return nil, err
	}

	tree, err := metadata.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dcmerrors.ErrMetadataFetch, err)
	}

	c.logger.Info("Metadata fetched",
		"study_id", c.opts.StudyID,
		"series", tree.Study.Series.Len(),
		"size_bytes", len(blob),
		"duration", time.Since(start))
	return tree, nil
}

// collect sweeps the workers in index order, taking at most one completion
// from each per sweep, until every job has either converted or failed.
// Between empty sweeps it blocks until a worker reports.
func (c *Converter) collect(ctx context.Context, pool *fetch.Pool, tree *metadata.Tree, report *Report) error {
	var deadline <-chan time.Time
	if c.opts.CollectTimeout > 0 {
		timer := time.NewTimer(c.opts.CollectTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for report.Done() < report.Total {
		progressed := false
		for i := 0; i < pool.Size(); i++ {
			completion, ok := pool.Drain(i)
			if !ok {
				continue
			}
			progressed = true
			c.handle(completion, tree, report)
		}
		if progressed {
			continue
		}

		c.logger.Debug("Waiting for frames",
			"done", report.Done(),
			"total", report.Total,
			"pending", pool.Pending(),
			"workers", formatStates(pool.States()))

		select {
		case <-pool.Ready():
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return dcmerrors.NewTimeoutError(
				fmt.Sprintf("collecting %d of %d frames", report.Total-report.Done(), report.Total),
				c.opts.CollectTimeout.String())
		}
	}
	return nil
}

func (c *Converter) handle(completion fetch.Completion, tree *metadata.Tree, report *Report) {
	job := completion.Job
	logger := c.logger.With(
		"series_uid", job.SeriesUID,
		"sop_instance", job.InstanceUID,
		"worker", completion.Worker)

	if completion.Err != nil {
		report.Failed++
		logger.Warn("Instance not converted", "error", completion.Err)
		return
	}

	levels, err := tree.InstanceLevels(job.SeriesUID, job.InstanceUID)
	if err != nil {
		report.Failed++
		logger.Error("Instance metadata missing", "error", err)
		return
	}

	result := c.builder.BuildInstance(levels)
	report.SkippedAttributes += len(result.Skipped)
	for _, skip := range result.Skipped {
		switch skip.Reason {
		case dcmerrors.SkipPrivateGroup, dcmerrors.SkipFileMetaGroup, dcmerrors.SkipPrivateCreator:
			logger.Debug("Attribute skipped", "tag", skip.Path, "reason", skip.Reason.String())
		default:
			logger.Warn("Attribute skipped", "tag", skip.Path, "reason", skip.Reason.String(), "error", skip.Err)
		}
	}

	out, err := c.writer.Write(c.opts.StudyID, job.InstanceUID, result.Dataset, job.Pixels)
	job.Pixels = nil
	if err != nil {
		report.Failed++
		logger.Error("Failed to write instance", "error", err)
		return
	}

	report.Converted++
	logger.Info("Instance converted",
		"instance_number", job.InstanceNumber,
		"path", out.DICOMPath,
		"fetch_duration", completion.Duration)
}

func formatStates(states []fetch.State) string {
	var b strings.Builder
	for _, s := range states {
		if s == fetch.StateBusy {
			b.WriteByte('B')
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
