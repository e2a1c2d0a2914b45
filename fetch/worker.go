package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/caio-sobreiro/dicomizer/codec"
	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/imagestore"
)

// Worker fetches and decodes the jobs of its own input queue and reports
// them on its own output queue.
type Worker struct {
	id           int
	store        imagestore.Store
	decoder      codec.Decoder
	fetchTimeout time.Duration
	logger       *slog.Logger

	input  *Queue[*Job]
	output *Queue[Completion]
	ready  chan struct{}
	state  atomic.Int32
}

// ID returns the worker index within its pool.
func (w *Worker) ID() int {
	return w.id
}

// State returns the worker's current activity.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// run processes jobs until ctx is canceled. The stop signal is checked once
// per job; a job already started always runs to completion.
func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		w.state.Store(int32(StateIdle))
		job, err := w.input.Pop(ctx)
		if err != nil {
			return
		}

		w.state.Store(int32(StateBusy))
		w.output.Push(w.process(ctx, job))

		select {
		case w.ready <- struct{}{}:
		default:
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job) Completion {
	start := time.Now()

	// In-flight work is not interrupted by Stop, only by the fetch timeout.
	fetchCtx := context.WithoutCancel(ctx)
	if w.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, w.fetchTimeout)
		defer cancel()
	}

	err := w.fetch(fetchCtx, job)
	if err != nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", err, dcmerrors.NewTimeoutError("frame fetch", w.fetchTimeout.String()))
	}

	completion := Completion{
		Job:      job,
		Worker:   w.id,
		Err:      err,
		Duration: time.Since(start),
	}

	if err != nil {
		w.logger.Error("Frame fetch failed",
			"worker", w.id,
			"frame_id", job.FrameID,
			"sop_instance", job.InstanceUID,
			"error", err)
	} else {
		w.logger.Debug("Frame fetched",
			"worker", w.id,
			"frame_id", job.FrameID,
			"sop_instance", job.InstanceUID,
			"duration", completion.Duration)
	}
	return completion
}

func (w *Worker) fetch(ctx context.Context, job *Job) error {
	payload, err := w.store.GetFrame(ctx, job.DatastoreID, job.StudyID, job.FrameID)
	if err != nil {
		if !errors.Is(err, dcmerrors.ErrFrameFetch) {
			err = dcmerrors.NewFetchError("GetFrame", job.FrameID, fmt.Errorf("%w: %w", dcmerrors.ErrFrameFetch, err))
		}
		return err
	}

	pixels, err := w.decoder.Decode(ctx, payload)
	if err != nil {
		if !errors.Is(err, dcmerrors.ErrFrameDecode) {
			err = fmt.Errorf("%w: %w", dcmerrors.ErrFrameDecode, err)
		}
		return fmt.Errorf("frame %s: %w", job.FrameID, err)
	}

	job.Pixels = pixels
	return nil
}
