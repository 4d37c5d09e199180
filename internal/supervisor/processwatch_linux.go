//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// hasPdeathsig reports whether this platform can rely on [setPdeathsig]
// alone to clean up children when this process dies, rather than needing
// the polling watcher fallback.
const hasPdeathsig = true

// setPdeathsig arranges for the child to receive SIGKILL when this
// process's thread group leader dies. Linux is the only OS in this
// family exposing Pdeathsig on syscall.SysProcAttr.
func setPdeathsig(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = unix.SIGKILL
}

// parentAlive reports whether the process ppid is still alive, used by
// the watcher fallback on platforms without Pdeathsig. On Linux this is
// unused (hasPdeathsig is true) but kept for symmetry with the other
// platform files and to exercise unix.Kill directly if ever needed.
func parentAlive(ppid int) bool {
	return unix.Kill(ppid, 0) == nil
}
