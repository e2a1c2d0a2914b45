// Package fetch runs the frame fetch workers: a fixed pool of goroutines that
// download and decode frame payloads while the caller builds datasets.
package fetch

import (
	"time"

	"github.com/caio-sobreiro/dicomizer/codec"
)

// Job is one frame to fetch. Pixels is filled exactly once, by the worker
// that processes the job.
type Job struct {
	DatastoreID    string
	StudyID        string
	SeriesUID      string
	InstanceUID    string
	FrameID        string
	InstanceNumber int64

	Pixels *codec.PixelBuffer
}

// Completion reports the outcome of a job. Err is nil when Job.Pixels was
// filled; failed jobs are reported too so callers can account for them.
type Completion struct {
	Job      *Job
	Worker   int
	Err      error
	Duration time.Duration
}

// State is a worker's activity, for diagnostics only.
type State int32

const (
	StateIdle State = iota
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}
