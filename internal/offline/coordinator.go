package offline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TWRT/task-tracker/internal/client"
	"github.com/TWRT/task-tracker/internal/client/tracker"
)

const DefaultReplayTimeout = 10 * time.Second

// Refresher recomputes cached task statuses. The coordinator calls it on
// every tick so status changes that come only from elapsed time are written
// back without user action.
type Refresher interface {
	RefreshStatuses(ctx context.Context) (int, error)
}

type FlushResult struct {
	Attempted int
	Replayed  int
	Failed    int
	Rejected  int
	Remaining int
}

// retryable reports whether a remote failure means "try again later": the
// remote was unreachable, timed out or failed on its side. Anything else is
// an answer about the mutation itself and will not change on retry.
func retryable(err error) bool {
	return tracker.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// Coordinator replays queued mutations against the remote store. Replay
// failures never escape Flush. A retryable failure leaves the entry queued
// with its attempt count raised; a rejection drops the entry, since sending
// it again would be rejected again. There is no retry limit and no backoff;
// the next attempt happens on the next trigger.
type Coordinator struct {
	queue         *Queue
	remote        client.TaskRemote
	refresher     Refresher
	replayTimeout time.Duration

	mu sync.Mutex
}

func NewCoordinator(queue *Queue, remote client.TaskRemote, replayTimeout time.Duration) *Coordinator {
	if replayTimeout <= 0 {
		replayTimeout = DefaultReplayTimeout
	}
	return &Coordinator{
		queue:         queue,
		remote:        remote,
		replayTimeout: replayTimeout,
	}
}

func (c *Coordinator) WithRefresher(r Refresher) *Coordinator {
	c.refresher = r
	return c
}

// Flush performs one drain. Mutations are replayed one at a time in queue
// order; a failed one is left in place and the drain moves on. If ctx is
// cancelled the drain stops and every unconfirmed mutation stays queued.
// The returned error is only ever a local queue failure or ctx.Err().
func (c *Coordinator) Flush(ctx context.Context) (FlushResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result FlushResult

	pending, err := c.queue.Drain(ctx)
	if err != nil {
		return result, err
	}

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			remaining, sizeErr := c.queue.Size(context.WithoutCancel(ctx))
			if sizeErr != nil {
				log.Printf("replay stopped: %v", sizeErr)
			}
			result.Remaining = remaining
			return result, err
		}
		result.Attempted++

		replayCtx, cancel := context.WithTimeout(ctx, c.replayTimeout)
		_, err := c.remote.Apply(replayCtx, m.Operation)
		cancel()

		if err != nil && !retryable(err) {
			result.Rejected++
			log.Printf("replay %s %s rejected, dropping it: %v", m.Method, m.Path, err)
			if rmErr := c.queue.Remove(context.WithoutCancel(ctx), m.Id); rmErr != nil {
				log.Printf("replay %s: %v", m.Id, rmErr)
			}
			continue
		}
		if err != nil {
			result.Failed++
			log.Printf("replay %s %s (attempt %d) failed: %v", m.Method, m.Path, m.Attempts+1, err)
			if markErr := c.queue.MarkFailed(context.WithoutCancel(ctx), m.Id, err); markErr != nil {
				log.Printf("replay %s: %v", m.Id, markErr)
			}
			continue
		}

		if err := c.queue.Remove(context.WithoutCancel(ctx), m.Id); err != nil {
			// The remote has the change; a leftover entry would replay it again.
			log.Printf("replay %s %s applied but not removed: %v", m.Method, m.Path, err)
			continue
		}
		result.Replayed++
	}

	remaining, err := c.queue.Size(ctx)
	if err != nil {
		return result, err
	}
	result.Remaining = remaining

	if result.Attempted > 0 {
		log.Printf("sync: replayed %d, failed %d, rejected %d, %d still queued",
			result.Replayed, result.Failed, result.Rejected, result.Remaining)
	}
	return result, nil
}

// Run drives Flush from two independent triggers: a value on restored, and
// every interval tick. A tick first refreshes statuses, then probes the
// remote and flushes only when it answers. Run returns when ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration, restored <-chan struct{}) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-restored:
			if _, err := c.Flush(ctx); err != nil && ctx.Err() == nil {
				log.Printf("sync: flush after reconnect: %v", err)
			}
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	if c.refresher != nil {
		if n, err := c.refresher.RefreshStatuses(ctx); err != nil {
			log.Printf("sync: refresh statuses: %v", err)
		} else if n > 0 {
			log.Printf("sync: corrected %d task statuses", n)
		}
	}

	pending, err := c.queue.Size(ctx)
	if err != nil {
		log.Printf("sync: %v", err)
		return
	}
	if pending == 0 {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.replayTimeout)
	err = c.remote.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Printf("sync: remote unreachable, %d mutations waiting: %v", pending, err)
		return
	}

	if _, err := c.Flush(ctx); err != nil && ctx.Err() == nil {
		log.Printf("sync: flush on tick: %v", err)
	}
}
