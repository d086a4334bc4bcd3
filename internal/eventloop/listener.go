package eventloop

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	goserverrors "github.com/webserv/goserv/pkg/errors"
)

// Listener is one non-blocking, raw-socket listening endpoint. The loop
// polls golang.org/x/sys/unix socket fds directly rather than wrapping
// net.Listener, keeping accept readiness in the same poll set as every
// client socket.
type Listener struct {
	Fd       int
	Endpoint string // "host:port"
}

// newListener creates, binds, and listens on a non-blocking IPv4 TCP
// socket for endpoint "host:port".
func newListener(endpoint string) (*Listener, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, goserverrors.NewConfigError("invalid listen endpoint "+endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, goserverrors.NewConfigError("invalid listen port "+portStr, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, goserverrors.NewIOError("socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, goserverrors.NewIOError("setsockopt(SO_REUSEADDR)", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if host != "" && host != "0.0.0.0" {
		ip := net.ParseIP(host)
		if ip == nil {
			resolved, rerr := net.ResolveIPAddr("ip4", host)
			if rerr != nil {
				unix.Close(fd)
				return nil, goserverrors.NewConfigError("cannot resolve host "+host, rerr)
			}
			ip = resolved.IP
		}
		ip4 := ip.To4()
		if ip4 == nil {
			unix.Close(fd)
			return nil, goserverrors.NewConfigError("host "+host+" is not an IPv4 address", nil)
		}
		copy(addr.Addr[:], ip4)
	}

	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, goserverrors.NewIOError("bind "+endpoint, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, goserverrors.NewIOError("listen "+endpoint, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, goserverrors.NewIOError("setnonblock", err)
	}

	return &Listener{Fd: fd, Endpoint: endpoint}, nil
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.Fd)
}

// remoteAddrString renders an accepted peer's address as "ip:port",
// used for logging and the CGI REMOTE_ADDR variable.
func remoteAddrString(sa unix.Sockaddr) string {
	if a, ok := sa.(*unix.SockaddrInet4); ok {
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), a.Port)
	}
	return ""
}
