package deletion

import (
	"context"
	"sync"
)

// Outcome is the settled result of one fan-out operation.
type Outcome struct {
	// Op names the operation ("analytics", "cache", "store", ...).
	Op  string
	Err error
}

// Failed reports whether the operation settled with an error.
func (o Outcome) Failed() bool { return o.Err != nil }

// operation is a named outbound call against one backing store.
type operation struct {
	name string
	run  func(ctx context.Context) error
}

// settleAll launches every operation concurrently and waits for all of
// them to settle. A failure in one operation never cancels or blocks
// the others; each result is captured in a fixed-size outcome list.
func settleAll(ctx context.Context, ops []operation) []Outcome {
	outcomes := make([]Outcome, len(ops))

	var wg sync.WaitGroup
	wg.Add(len(ops))
	for i, op := range ops {
		go func(i int, op operation) {
			defer wg.Done()
			outcomes[i] = Outcome{Op: op.name, Err: op.run(ctx)}
		}(i, op)
	}
	wg.Wait()

	return outcomes
}
