package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrDaemonRunning means another orcastr daemon owns the data directory.
var ErrDaemonRunning = errors.New("orcastr daemon already running")

// instanceLock is an flock held on DataDir/daemon.lock for the daemon's
// lifetime. The holder writes its PID into the file so a second daemon can
// name it when it gives up.
type instanceLock struct {
	path string
	file *os.File
}

func newInstanceLock(path string) *instanceLock {
	return &instanceLock{path: path}
}

func (l *instanceLock) acquire() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock %s: %w", l.path, err)
	}

	held, err := tryLock(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	if held {
		pid := readHolder(f)
		f.Close()
		if pid > 0 {
			return fmt.Errorf("%w: pid %d holds %s", ErrDaemonRunning, pid, l.path)
		}
		return fmt.Errorf("%w: %s is locked", ErrDaemonRunning, l.path)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	l.file = f
	return nil
}

// release drops the lock and removes the file. Releasing twice is a no-op.
func (l *instanceLock) release() error {
	if l.file == nil {
		return nil
	}
	os.Remove(l.path)
	unlock(l.file)
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *instanceLock) held() bool {
	return l.file != nil
}

func readHolder(f *os.File) int {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
