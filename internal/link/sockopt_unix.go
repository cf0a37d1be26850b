//go:build unix

package link

import (
	"net"

	"golang.org/x/sys/unix"
)

// socketReceiveBuffer returns the kernel receive buffer size of conn, or 0
// when it cannot be read.
func socketReceiveBuffer(conn net.Conn) int {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return 0
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return 0
	}

	size := 0
	ctrlErr := raw.Control(func(fd uintptr) {
		v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
		if err == nil {
			size = v
		}
	})
	if ctrlErr != nil {
		return 0
	}
	return size
}
