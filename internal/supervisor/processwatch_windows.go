//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// hasPdeathsig is false on Windows; there is no Pdeathsig equivalent in
// syscall.SysProcAttr, so cleanup relies on the watcher goroutine in
// watcher.go. A job-object-based implementation would be more robust but
// is out of scope here.
const hasPdeathsig = false

func setPdeathsig(cmd *exec.Cmd) {
	// nothing: see hasPdeathsig.
}

// parentAlive reports whether the process ppid is still alive by
// attempting to open a handle to it.
func parentAlive(ppid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(ppid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == 259 // STILL_ACTIVE
}
