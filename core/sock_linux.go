//go:build linux
// +build linux

package core

import "golang.org/x/sys/unix"

// newTCPSocket opens a non-blocking, close-on-exec stream socket.
func newTCPSocket(family int) (int, error) {
	return unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}

// acceptConn accepts one pending connection, already non-blocking.
func acceptConn(lfd int) (int, error) {
	fd, _, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return fd, err
}
