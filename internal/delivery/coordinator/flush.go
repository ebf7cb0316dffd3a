package coordinator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"postman/internal/delivery"
)

func randFloat() float64 { return rand.Float64() }

// run is the flush goroutine. It is the only caller of client.Send, so two
// flushes never overlap.
func (c *Coordinator) run() {
	defer c.finish()

	var tick <-chan time.Time
	if c.config.DeliveryInterval > 0 {
		ticker := time.NewTicker(c.config.DeliveryInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.stopping:
			c.flush(TriggerShutdown)
			return
		case <-tick:
			c.flush(TriggerInterval)
		case <-c.kick:
			c.flush("")
		}
	}
}

func (c *Coordinator) finish() {
	c.closeClient()

	c.mu.Lock()
	c.state = stateStopped
	c.mu.Unlock()

	c.logger.Info("coordinator stopped")
	close(c.stopped)
}

// flush takes everything buffered and sends it. An empty trigger means the
// goroutine was kicked and the trigger is derived from what kicked it.
func (c *Coordinator) flush(trigger string) {
	c.mu.Lock()
	batch := c.buffer
	reqs := c.flushReqs
	if trigger == "" {
		trigger = TriggerThreshold
		if c.forced {
			trigger = TriggerForced
		}
	}
	c.buffer = nil
	c.bytes = 0
	c.flushReqs = nil
	c.forced = false
	c.flushing = len(batch) > 0
	c.observer.ObserveBuffer(0, 0, c.inFlight)
	c.mu.Unlock()

	var err error
	if len(batch) > 0 {
		start := time.Now()
		err = c.sendBatch(batch)
		c.observer.ObserveFlush(trigger, len(batch), time.Since(start), err)

		if err != nil {
			c.logger.Warn("flush completed with failures", zap.String("trigger", trigger), zap.Int("records", len(batch)), zap.Error(err))
		} else {
			c.logger.Debug("flush completed", zap.String("trigger", trigger), zap.Int("records", len(batch)))
		}
	}

	c.mu.Lock()
	joined := c.joined
	c.joined = nil
	c.flushing = false
	c.mu.Unlock()

	// Requests that arrived mid-send are answered by the next flush, which
	// must also report this batch's failure.
	for _, req := range joined {
		if req.err == nil {
			req.err = err
		}
	}
	for _, req := range reqs {
		if req.err == nil {
			req.err = err
		}
		req.done <- req.err
	}
}

// sendBatch hands batch to the client in FIFO chunks of at most MaxQueueSize
// records. A failed chunk does not stop the ones after it. The first failure
// is returned.
func (c *Coordinator) sendBatch(batch []entry) error {
	size := c.config.MaxQueueSize
	if size <= 0 {
		size = len(batch)
	}

	var firstErr error
	for start := 0; start < len(batch); start += size {
		chunk := batch[start:min(start+size, len(batch))]

		c.setInFlight(len(chunk))
		err := c.sendWithRetry(chunk)
		c.setInFlight(0)

		c.settle(chunk, err)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (c *Coordinator) setInFlight(n int) {
	c.mu.Lock()
	c.inFlight = n
	c.observer.ObserveBuffer(len(c.buffer), c.bytes, n)
	c.mu.Unlock()
}

// sendWithRetry makes up to MaxRetries+1 attempts. Fatal errors end it after
// the first.
func (c *Coordinator) sendWithRetry(chunk []entry) error {
	records := make([]delivery.Record, len(chunk))
	for i, e := range chunk {
		records[i] = e.rec
	}

	attempts := c.config.MaxRetries + 1
	var (
		attempt int
		err     error
	)
	for attempt = 1; attempt <= attempts; attempt++ {
		err = c.attempt(records)
		retryable := err != nil && c.classify(err)
		c.observer.ObserveAttempt(err, retryable)

		if err == nil {
			return nil
		}
		if !retryable {
			c.logger.Error("send failed with a permanent error", zap.Int("records", len(records)), zap.Error(err))
			break
		}
		if attempt == attempts {
			break
		}

		backoff := c.backoff()
		c.logger.Warn("send failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", c.config.MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		time.Sleep(backoff)
	}

	return fmt.Errorf("%w after %d attempt(s): %w", delivery.ErrDeliveryFailed, min(attempt, attempts), err)
}

func (c *Coordinator) attempt(records []delivery.Record) error {
	ctx := context.Background()
	if c.config.AckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.AckTimeout)
		defer cancel()
	}

	return c.client.Send(ctx, records...)
}

// backoff returns RetryBackoff spread by up to RetryJitter in either
// direction.
func (c *Coordinator) backoff() time.Duration {
	d := c.config.RetryBackoff
	if c.config.RetryJitter <= 0 || d <= 0 {
		return d
	}

	spread := c.config.RetryJitter * (2*c.random() - 1)
	return time.Duration(float64(d) * (1 + spread))
}

// settle reports the chunk's outcome to every waiter. Records nobody waits on
// are logged when they are dropped.
func (c *Coordinator) settle(chunk []entry, err error) {
	var unwatched []string
	for _, e := range chunk {
		if err != nil {
			c.observer.ObserveDropped(e.rec.Topic(), DropReasonDeliveryFailed)
			if e.done == nil {
				unwatched = append(unwatched, e.rec.Topic())
			}
		}
		if e.done != nil {
			e.done <- err
		}
	}

	if len(unwatched) > 0 {
		c.logger.Error("records dropped after exhausting retries",
			zap.Int("records", len(unwatched)),
			zap.Strings("topics", unique(unwatched)),
			zap.Error(err),
		)
	}
}

func unique(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := topics[:0:0]
	for _, t := range topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
