package core

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// listenGroup opens n listening sockets on addr, all with SO_REUSEPORT so
// the kernel spreads incoming connections across them. Each worker drains
// exactly one socket and never contends on accept.
//
// With port 0 the first socket picks the ephemeral port and the rest bind
// to it explicitly, so the whole group shares one address. Returns the
// sockets and the bound port; on any failure every socket opened so far is
// closed.
func listenGroup(addr string, n, backlog int) ([]int, int, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", addr, err)
	}

	fds := make([]int, 0, n)
	port := laddr.Port

	for i := 0; i < n; i++ {
		fd, err := listenSocket(laddr.IP, port, backlog)
		if err != nil {
			closeAll(fds)
			return nil, 0, fmt.Errorf("listen %s (socket %d/%d): %w", addr, i+1, n, err)
		}
		fds = append(fds, fd)

		if port == 0 {
			port, err = boundPort(fd)
			if err != nil {
				closeAll(fds)
				return nil, 0, err
			}
		}
	}

	return fds, port, nil
}

// listenSocket opens one reuse-port listening socket.
func listenSocket(ip net.IP, port, backlog int) (int, error) {
	family := unix.AF_INET
	if ip != nil && ip.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := newTCPSocket(family)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	sa, err := sockaddrFor(ip, port, family)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

func sockaddrFor(ip net.IP, port, family int) (unix.Sockaddr, error) {
	if family == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: port}
		copy(sa.Addr[:], ip.To16())
		return sa, nil
	}

	sa := &unix.SockaddrInet4{Port: port}
	if ip != nil {
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("address %s is not IPv4", ip)
		}
		copy(sa.Addr[:], ip4)
	}
	return sa, nil
}

// boundPort reads the port the kernel assigned to fd.
func boundPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}

	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port, nil
	case *unix.SockaddrInet6:
		return sa.Port, nil
	default:
		return 0, fmt.Errorf("unexpected sockaddr %T", sa)
	}
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
