// Package tunsrc opens the local TUN device used as the packet source on
// desktop hosts. Mobile hosts pass a pre-opened file descriptor from the
// platform instead and never touch this package.
package tunsrc

import (
	"fmt"

	"github.com/songgao/water"
)

const DefaultMTU = 1400

// Open creates a TUN interface and applies the MTU. An mtu of 0 keeps
// the platform default.
func Open(name string, mtu int) (*water.Interface, error) {
	wcfg := water.Config{DeviceType: water.TUN}
	if name != "" {
		wcfg.Name = name
	}
	iface, err := water.New(wcfg)
	if err != nil {
		return nil, fmt.Errorf("open tun: %w", err)
	}
	if mtu > 0 {
		if err := setMTU(iface.Name(), mtu); err != nil {
			_ = iface.Close()
			return nil, fmt.Errorf("set mtu on %s: %w", iface.Name(), err)
		}
	}
	return iface, nil
}
