//go:build !linux

package tunsrc

import "errors"

func setMTU(name string, mtu int) error {
	return errors.New("setting tun mtu is not supported on this OS")
}
