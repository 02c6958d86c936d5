package offline

import (
	"context"
	"log"
	"time"

	"github.com/TWRT/task-tracker/internal/client"
)

const DefaultProbeInterval = 5 * time.Second

// WatchConnectivity pings remote every interval and signals on the returned
// channel each time the remote answers after being unreachable. The watch
// starts out assuming the remote is unreachable, so the first successful
// ping also signals. Signals are coalesced: one waiting signal is enough to
// trigger a flush. The watch stops when ctx is done.
func WatchConnectivity(ctx context.Context, remote client.TaskRemote, interval, timeout time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}

	restored := make(chan struct{}, 1)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		reachable := false
		for {
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := remote.Ping(pingCtx)
			cancel()

			switch {
			case err == nil && !reachable:
				reachable = true
				log.Println("sync: remote reachable")
				select {
				case restored <- struct{}{}:
				default:
				}
			case err != nil && reachable && ctx.Err() == nil:
				reachable = false
				log.Printf("sync: remote unreachable: %v", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return restored
}
