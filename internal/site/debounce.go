package site

import (
	"cmp"
	"context"
	"sync"
	"time"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

// DefaultDebounce is the window used by the serve command.
const DefaultDebounce = time.Second

// Debouncer coalesces calls made within a fixed window into one batched
// call over the union of their arguments. A batch never starts while the
// previous one is still running.
type Debouncer[T cmp.Ordered] struct {
	window time.Duration
	fn     func(context.Context, []T)
	ctx    context.Context

	run sync.Mutex

	mu      sync.Mutex
	pending sets.Set[T]
	timer   *time.Timer
	stopped bool
	idle    *sync.Cond
	busy    int
}

// NewDebouncer returns a Debouncer calling fn with ctx.
func NewDebouncer[T cmp.Ordered](ctx context.Context, window time.Duration, fn func(context.Context, []T)) (*Debouncer[T], error) {
	if window <= 0 {
		return nil, ferrors.ValidationError("debounce window must be > 0").Build()
	}
	if fn == nil {
		return nil, ferrors.ValidationError("debounce callback is required").Build()
	}
	d := &Debouncer[T]{window: window, fn: fn, ctx: ctx, pending: sets.New[T]()}
	d.idle = sync.NewCond(&d.mu)
	return d, nil
}

// Add queues items. The window starts with the first item of a batch.
func (d *Debouncer[T]) Add(items ...T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(items) == 0 {
		return
	}
	d.pending.Add(items...)
	if d.timer == nil {
		d.busy++
		d.timer = time.AfterFunc(d.window, d.fire)
	}
}

func (d *Debouncer[T]) fire() {
	d.run.Lock()
	defer d.run.Unlock()

	d.mu.Lock()
	batch := sets.Sorted(d.pending)
	d.pending = sets.New[T]()
	d.timer = nil
	stopped := d.stopped
	d.mu.Unlock()

	if !stopped && len(batch) > 0 && d.ctx.Err() == nil {
		d.fn(d.ctx, batch)
	}

	d.mu.Lock()
	d.busy--
	d.idle.Broadcast()
	d.mu.Unlock()
}

// Wait blocks until no batch is scheduled or running.
func (d *Debouncer[T]) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.busy > 0 {
		d.idle.Wait()
	}
}

// Stop drops queued items and rejects new ones. A running batch finishes.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.timer = nil
		d.busy--
		d.idle.Broadcast()
	}
	d.pending = sets.New[T]()
}
