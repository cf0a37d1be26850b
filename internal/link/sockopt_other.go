//go:build !unix

package link

import "net"

// socketReceiveBuffer is not available on this platform.
func socketReceiveBuffer(net.Conn) int {
	return 0
}
