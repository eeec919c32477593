package mcp

import (
	"context"
	"os"
	"time"

	"evacsim/internal/logging"
)

// WatchParent cancels the server when its parent process goes away, so an
// orphaned stdio server does not linger. It must not read stdin, which the
// stdio transport owns. The goroutine exits when ctx is done.
func WatchParent(ctx context.Context, interval time.Duration, cancel context.CancelFunc) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ppid := os.Getppid()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if os.Getppid() != ppid {
					logging.New("mcp").Warn("parent process exited, shutting down", "ppid", ppid)
					cancel()
					return
				}
			}
		}
	}()
}
