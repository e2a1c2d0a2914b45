package convert

import (
	"fmt"
	"time"
)

// Report summarizes a run.
type Report struct {
	RunID             string
	StudyID           string
	Total             int
	Converted         int
	Failed            int
	SkippedAttributes int
	Elapsed           time.Duration
}

// Done returns the number of jobs that reached a final outcome.
func (r *Report) Done() int {
	return r.Converted + r.Failed
}

func (r *Report) String() string {
	return fmt.Sprintf("%d instances exported in %.3f seconds", r.Converted, r.Elapsed.Seconds())
}
