//go:build !linux

package transport

import "syscall"

func bindControl(device string) func(network, address string, c syscall.RawConn) error {
	return nil
}
