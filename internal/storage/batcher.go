package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
	flushTimeout  = 5 * time.Second
)

// flushFunc inserts one batch. Errors are logged by the batcher.
type flushFunc func(ctx context.Context, events []*CallEvent) error

// batcher buffers events and hands them to flush from one background
// goroutine, either every flushInterval or when flushBatch events are queued.
type batcher struct {
	name    string
	buffer  chan *CallEvent
	done    chan struct{}
	flushed chan struct{} // closed by loop when it returns
	flush   flushFunc
	logger  *zap.Logger

	interval time.Duration
	maxBatch int
}

func newBatcher(name string, flush flushFunc, logger *zap.Logger) *batcher {
	return &batcher{
		name:     name,
		buffer:   make(chan *CallEvent, bufferSize),
		done:     make(chan struct{}),
		flushed:  make(chan struct{}),
		flush:    flush,
		logger:   logger,
		interval: flushInterval,
		maxBatch: flushBatch,
	}
}

func (b *batcher) start() { go b.loop() }

// Write queues an event. Non-blocking: drops the event if the buffer is full.
func (b *batcher) Write(event *CallEvent) {
	select {
	case b.buffer <- event:
	default:
		b.logger.Warn(b.name+" buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close drains queued events (up to drainTimeout) and waits for the final
// flush. Safe to call once.
func (b *batcher) Close() {
	close(b.done)
	<-b.flushed
}

func (b *batcher) loop() {
	defer close(b.flushed)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]*CallEvent, 0, b.maxBatch)

	for {
		select {
		case event := <-b.buffer:
			batch = append(batch, event)
			if len(batch) >= b.maxBatch {
				b.send(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				b.send(batch)
				batch = batch[:0]
			}
		case <-b.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-b.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				b.send(batch)
			}
			return
		}
	}
}

func (b *batcher) send(events []*CallEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := b.flush(ctx, events); err != nil {
		b.logger.Error(b.name+" batch insert failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}
