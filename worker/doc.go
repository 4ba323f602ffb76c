// Package worker runs document validation on a bounded set of goroutines.
//
// BatchValidator validates a known slice of documents and returns the
// results in input order. Pool accepts jobs as they arrive; its queues are
// bounded, so results must be received while jobs are still submitted.
//
// Example usage:
//
//	pool := worker.NewPool(ctx, eng, 4)
//	defer pool.Close()
//
//	go func() {
//		for _, job := range jobs {
//			pool.Submit(job)
//		}
//	}()
//	for range jobs {
//		result := <-pool.Results()
//		fmt.Println(result.ID, result.Valid())
//	}
package worker
