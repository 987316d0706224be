package analysis

import "context"

// Pool bounds how many analysis jobs run at once across all live sessions.
type Pool struct {
	slots chan struct{}
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 2
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Do runs fn once a worker slot is free. The caller blocks until fn
// completes, so results can be used directly without a callback.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	fn()
	return nil
}
