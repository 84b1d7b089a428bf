//go:build linux

package tunsrc

import (
	"fmt"
	"os/exec"
)

func setMTU(name string, mtu int) error {
	cmd := exec.Command("ip", "link", "set", "dev", name, "mtu", fmt.Sprintf("%d", mtu))
	return cmd.Run()
}
