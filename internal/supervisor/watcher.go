// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"os"
	"time"
)

// watcherPollInterval is how often the fallback watcher polls for parent
// liveness on platforms without Pdeathsig.
const watcherPollInterval = 1 * time.Second

// WatchParent starts (on platforms without Pdeathsig) a goroutine that
// polls the parent process for liveness and calls onParentDead once it is
// gone. On platforms with Pdeathsig it returns immediately and does
// nothing, since the kernel already enforces the same outcome.
func WatchParent(onParentDead func()) {
	if hasPdeathsig {
		return
	}
	ppid := os.Getppid()
	go func() {
		ticker := time.NewTicker(watcherPollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !parentAlive(ppid) {
				onParentDead()
				return
			}
		}
	}()
}
