package client

import (
	"sync"

	"github.com/searchktools/fast-client/core/protocol"
	"github.com/searchktools/fast-client/core/runtime"
)

// BatchItem pairs a URL with its request options.
type BatchItem struct {
	URL     string
	Options *Options
}

// Result is the outcome of one batched request.
type Result struct {
	OK       bool
	Response *protocol.Response
	Err      error
}

// Parallel collects requests and issues them concurrently, gathering the
// outcomes in submission order.
type Parallel struct {
	client *Client

	mu      sync.Mutex
	pending []BatchItem
}

// NewParallel creates a batch bound to client.
func NewParallel(client *Client) *Parallel {
	return &Parallel{client: client}
}

// Push appends one request to the batch.
func (p *Parallel) Push(rawURL string, opts *Options) {
	p.mu.Lock()
	p.pending = append(p.pending, BatchItem{URL: rawURL, Options: opts})
	p.mu.Unlock()
}

// Batch appends several requests to the batch.
func (p *Parallel) Batch(items []BatchItem) {
	p.mu.Lock()
	p.pending = append(p.pending, items...)
	p.mu.Unlock()
}

// Await issues every pending request and blocks until all of them have
// completed. results[i] corresponds to the i-th submitted request
// regardless of completion order. With throwOnError Await returns as soon
// as it reaches the first failure in submission order: that error is
// returned, results is nil, and later requests are not waited for.
func (p *Parallel) Await(throwOnError bool) ([]Result, error) {
	p.mu.Lock()
	items := p.pending
	p.pending = nil
	p.mu.Unlock()

	results := make([]Result, len(items))
	suspensions := make([]*runtime.Suspension, len(items))

	for i, item := range items {
		opts := item.Options
		if opts == nil {
			opts = &Options{}
		}

		susp := runtime.NewSuspension()
		suspensions[i] = susp

		idx := i
		userSuccess := opts.Success
		userError := opts.Error

		wrapped := *opts
		wrapped.Success = func(resp *protocol.Response) {
			results[idx] = Result{OK: true, Response: resp}
			if userSuccess != nil {
				userSuccess(resp)
			}
			susp.Resume(resp)
		}
		wrapped.Error = func(err error) {
			results[idx] = Result{Err: err}
			if userError != nil {
				userError(err)
			}
			if throwOnError {
				susp.Throw(err)
			} else {
				susp.Resume(nil)
			}
		}

		p.client.Request(item.URL, &wrapped)
	}

	for _, susp := range suspensions {
		if _, err := susp.Await(); err != nil {
			return nil, err
		}
	}
	return results, nil
}
