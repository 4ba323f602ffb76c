package worker

import (
	"time"

	"github.com/gofhir/epadoc"
)

// Job is one document to validate.
type Job struct {
	// ID names the job in its result, typically a file name.
	ID string

	// Data is the serialized document.
	Data []byte
}

// JobResult is the outcome of one job.
type JobResult struct {
	// ID matches the Job.ID that produced this result.
	ID string

	// Response is the validation response. It is nil only when Err is set.
	Response *epadoc.Response

	// Err is set when the job could not be run at all.
	Err error

	Duration time.Duration
}

// Valid reports whether the job ran and its document is valid.
func (r *JobResult) Valid() bool {
	return r.Err == nil && r.Response != nil && r.Response.Valid()
}

// BatchResult aggregates the results of a batch.
type BatchResult struct {
	// Results holds one result per job. Batches keep the input order;
	// pools report in completion order.
	Results []*JobResult

	TotalJobs     int
	CompletedJobs int

	// FailedJobs counts jobs that could not be run.
	FailedJobs int

	TotalDuration time.Duration
}

// Valid reports whether every job ran and every document is valid.
func (br *BatchResult) Valid() bool {
	for _, r := range br.Results {
		if !r.Valid() {
			return false
		}
	}
	return true
}

// InvalidCount returns the number of jobs that failed or produced an
// invalid response.
func (br *BatchResult) InvalidCount() int {
	n := 0
	for _, r := range br.Results {
		if !r.Valid() {
			n++
		}
	}
	return n
}

// ErrorCount returns the total number of FATAL and ERROR messages.
func (br *BatchResult) ErrorCount() int {
	count := 0
	for _, r := range br.Results {
		if r.Response != nil {
			count += r.Response.ErrorCount()
		}
	}
	return count
}
