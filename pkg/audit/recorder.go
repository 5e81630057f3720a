// pkg/audit/recorder.go
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder fans events out to the configured sinks from a single worker
// goroutine, so events keep their emission order (and with it the strict
// per-correlation ordering the audit trail promises). Record never
// blocks the operation being audited and never returns an error: a full
// buffer or a failing sink degrades to the structured log instead.
type Recorder struct {
	log   *zap.SugaredLogger
	ch    chan Event
	sinks []Sink

	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// NewRecorder starts the fanout worker. buffer bounds the in-flight
// event queue; sinks may be empty, in which case events go to the log only.
func NewRecorder(log *zap.SugaredLogger, buffer int, sinks ...Sink) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &Recorder{
		log:    log,
		ch:     make(chan Event, buffer),
		sinks:  sinks,
		closed: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues the event. The zero Time is stamped here so callers
// can build events without worrying about clocks.
func (r *Recorder) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case <-r.closed:
		r.fallback(e)
	default:
		select {
		case r.ch <- e:
		default:
			// Buffer full: do not stall the operation being audited.
			r.fallback(e)
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.ch:
			r.deliver(e)
		case <-r.closed:
			// Drain whatever is buffered, then stop.
			for {
				select {
				case e := <-r.ch:
					r.deliver(e)
				default:
					return
				}
			}
		}
	}
}

// deliver pushes to every sink; at-least-once to at least one of them,
// falling back to the log when all fail.
func (r *Recorder) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	delivered := false
	for _, s := range r.sinks {
		if err := s.Emit(ctx, e); err != nil {
			r.log.Warnw("audit sink emit failed", "type", e.Type, "tenant", e.TenantID, "err", err)
			continue
		}
		delivered = true
	}
	if !delivered {
		r.fallback(e)
	}
}

func (r *Recorder) fallback(e Event) {
	r.log.Infow("audit",
		"type", e.Type,
		"tenant", e.TenantID,
		"correlation", e.CorrelationID,
		"detail", e.Detail,
	)
}

// Close drains buffered events and stops the worker. Record calls after
// Close degrade to the log.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.closed) })
	r.wg.Wait()
}
