package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// maxSocketPath is the size of sun_path on Linux, including the trailing NUL.
const maxSocketPath = 108

var ErrSocketPathTooLong = errors.New("socket path too long")

// rpcSocket is the unix socket the daemon serves JSON-RPC on.
type rpcSocket struct {
	path     string
	listener net.Listener
}

func newRPCSocket(path string) *rpcSocket {
	return &rpcSocket{path: path}
}

// listen binds the socket with owner-only permissions. A file left by a
// daemon that died is replaced; a socket that still accepts connections is
// reported as ErrDaemonRunning.
func (s *rpcSocket) listen() error {
	if len(s.path) >= maxSocketPath {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrSocketPathTooLong, s.path, len(s.path), maxSocketPath-1)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	if _, err := os.Lstat(s.path); err == nil {
		if SocketResponsive(s.path) {
			return fmt.Errorf("%w: %s is accepting connections", ErrDaemonRunning, s.path)
		}
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
		log.Debug("removed stale socket", "path", s.path)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = ln
	return nil
}

func (s *rpcSocket) accept() (net.Conn, error) {
	if s.listener == nil {
		return nil, net.ErrClosed
	}
	return s.listener.Accept()
}

// close stops listening and unlinks the socket file this daemon created.
func (s *rpcSocket) close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	os.Remove(s.path)
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// SocketResponsive reports whether something accepts connections on path.
func SocketResponsive(path string) bool {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func dialSocket(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}
