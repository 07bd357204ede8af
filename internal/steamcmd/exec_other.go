//go:build !windows

package steamcmd

import "os/exec"

func prepareCommand(*exec.Cmd) {}
