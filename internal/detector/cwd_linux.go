//go:build linux

package detector

import (
	"fmt"
	"os"
)

func resolveCwd(pid int) (string, bool) {
	link := fmt.Sprintf("/proc/%d/cwd", pid)
	target, err := os.Readlink(link)
	if err != nil || target == "" {
		return "", false
	}
	return target, true
}
