//go:build linux

package transport

import "syscall"

// bindControl pins the socket to a device with SO_BINDTODEVICE so a dial
// issued right after a network change cannot ride the previous interface.
func bindControl(device string) func(network, address string, c syscall.RawConn) error {
	if device == "" {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = syscall.BindToDevice(int(fd), device)
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
