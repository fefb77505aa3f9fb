//go:build darwin
// +build darwin

package core

import "golang.org/x/sys/unix"

// newTCPSocket opens a non-blocking, close-on-exec stream socket. Darwin
// has no SOCK_NONBLOCK/SOCK_CLOEXEC socket flags, so both are set after.
func newTCPSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	unix.CloseOnExec(fd)

	return fd, nil
}

// acceptConn accepts one pending connection and makes it non-blocking.
func acceptConn(lfd int) (int, error) {
	fd, _, err := unix.Accept(lfd)
	if err != nil {
		return -1, err
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	unix.CloseOnExec(fd)

	return fd, nil
}
