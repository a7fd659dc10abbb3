// Package async provides bounded parallel task execution.
//
// The orchestrator fans a stage out to many nodes at once; this package
// runs those per-node tasks concurrently under a concurrency limit and
// reports every task's error, not just the first, so one node's failure
// never hides another's result.
package async

import (
	"context"
	"sync"
)

// Task is one named unit of concurrent work.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result pairs a task name with its outcome.
type Result struct {
	Name string
	Err  error
}

// Run executes all tasks concurrently, at most limit at a time (limit <= 0
// means unbounded), and waits for all of them. Results are returned in
// task order. Tasks already running when the context is cancelled finish
// on their own terms; Run itself never abandons a task.
func Run(ctx context.Context, limit int, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]Result, len(tasks))

	var sem chan struct{}
	if limit > 0 {
		sem = make(chan struct{}, limit)
	}

	var wg sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results[i] = Result{Name: task.Name, Err: task.Func(ctx)}
		}()
	}
	wg.Wait()

	return results
}

// FirstError returns the first non-nil error in the results, if any.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
