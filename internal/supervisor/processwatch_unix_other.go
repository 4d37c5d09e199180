//go:build unix && !linux

// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// hasPdeathsig is false here: Pdeathsig only exists on Linux's
// syscall.SysProcAttr, so BSD-family and Darwin fall back to the watcher
// goroutine in watcher.go.
const hasPdeathsig = false

func setPdeathsig(cmd *exec.Cmd) {
	// nothing: no parent-death signalling primitive on this OS family.
}

// parentAlive reports whether the process ppid is still alive by probing
// it with the null signal, the standard liveness check on Unix.
func parentAlive(ppid int) bool {
	return unix.Kill(ppid, 0) == nil
}
