package connection

import (
	"context"
	"sync"
)

// Request is the pending outcome of an asynchronous connect or disconnect
type Request struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func completedRequest(err error) *Request {
	r := newRequest()
	r.complete(err)
	return r
}

func (r *Request) complete(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed once the request has completed
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err returns the request outcome; nil while still pending
func (r *Request) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the request completes or ctx is done.
// Returning on ctx does not cancel the request.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
