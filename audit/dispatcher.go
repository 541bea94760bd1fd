package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// DispatcherConfig controls dispatcher buffering behavior.
type DispatcherConfig struct {
	// BufferSize is the channel depth between the hot path and the
	// backing store. Values below 1 are treated as 1.
	BufferSize int
	// DropIfFull makes Record drop the event instead of blocking when
	// the buffer is saturated. Drops are counted.
	DropIfFull bool
}

// Dispatcher forwards records to a backing Store from a single worker
// goroutine, decoupling the authentication hot path from audit I/O.
// It implements Store itself; CurrentSystemInfo passes through
// synchronously.
type Dispatcher struct {
	cfg   DispatcherConfig
	store Store

	ch        chan AccessInfo
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the worker goroutine. Call Close to drain and
// stop it.
func NewDispatcher(cfg DispatcherConfig, store Store) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if store == nil {
		store = NoOpStore{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		store: store,
		ch:    make(chan AccessInfo, cfg.BufferSize),
		done:  make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case info := <-d.ch:
			_ = d.store.Record(context.Background(), info)
		case <-d.done:
			for {
				select {
				case info := <-d.ch:
					_ = d.store.Record(context.Background(), info)
				default:
					return
				}
			}
		}
	}
}

// Record enqueues the event for the worker. After Close it is a no-op.
func (d *Dispatcher) Record(ctx context.Context, info AccessInfo) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- info:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return nil
	}

	select {
	case d.ch <- info:
	case <-ctx.Done():
	case <-d.done:
	}
	return nil
}

// CurrentSystemInfo delegates to the backing store.
func (d *Dispatcher) CurrentSystemInfo(ctx context.Context) (*SystemInfo, error) {
	return d.store.CurrentSystemInfo(ctx)
}

// Close drains buffered events into the store and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded under DropIfFull.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
