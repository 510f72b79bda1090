//go:build windows

package tools

import "os/exec"

// setProcessGroup keeps the default cancellation, which kills the shell process.
func setProcessGroup(cmd *exec.Cmd) {}
