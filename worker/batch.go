package worker

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gofhir/epadoc"
)

// BatchValidator validates a fixed set of documents and keeps their order.
type BatchValidator struct {
	v     Validator
	limit int
}

// NewBatchValidator creates a batch validator running at most workers
// validations at once, runtime.NumCPU() when workers <= 0.
func NewBatchValidator(v Validator, workers int) *BatchValidator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BatchValidator{v: v, limit: workers}
}

// ValidateBatch validates docs. Results[i] belongs to docs[i] and is named
// by its index. Documents not started before ctx is done get an error
// response.
func (bv *BatchValidator) ValidateBatch(ctx context.Context, docs [][]byte) *BatchResult {
	batch := &BatchResult{
		Results:   make([]*JobResult, len(docs)),
		TotalJobs: len(docs),
	}
	start := time.Now()

	if len(docs) <= 2 || bv.limit == 1 {
		for i, doc := range docs {
			batch.Results[i] = validateJob(ctx, bv.v, strconv.Itoa(i), doc)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(bv.limit)
		for i, doc := range docs {
			g.Go(func() error {
				batch.Results[i] = validateJob(ctx, bv.v, strconv.Itoa(i), doc)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, r := range batch.Results {
		if r.Err != nil {
			batch.FailedJobs++
		}
	}
	batch.CompletedJobs = len(docs)
	batch.TotalDuration = time.Since(start)
	return batch
}

// Responses returns the responses of ValidateBatch in input order.
// A job that could not run yields an ERROR response.
func (bv *BatchValidator) Responses(ctx context.Context, docs [][]byte) []*epadoc.Response {
	batch := bv.ValidateBatch(ctx, docs)
	out := make([]*epadoc.Response, len(batch.Results))
	for i, r := range batch.Results {
		out[i] = r.Response
		if r.Err != nil {
			out[i] = epadoc.ErrorResponse("Validation error: " + r.Err.Error())
		}
	}
	return out
}

// ValidateBatchSimple validates docs with one worker per CPU.
func ValidateBatchSimple(ctx context.Context, v Validator, docs [][]byte) *BatchResult {
	return NewBatchValidator(v, runtime.NumCPU()).ValidateBatch(ctx, docs)
}
