package daemon

import "fmt"

// LifecycleManager guards a single daemon instance per data directory with
// an flock'ed lock file and a PID file next to the socket.
type LifecycleManager struct {
	lock       *instanceLock
	pidFile    *PIDFile
	socketPath string
}

func NewLifecycleManager(lockPath, pidPath, socketPath string) *LifecycleManager {
	return &LifecycleManager{
		lock:       newInstanceLock(lockPath),
		pidFile:    NewPIDFile(pidPath),
		socketPath: socketPath,
	}
}

// Acquire takes the instance lock and records the PID. It fails with
// ErrDaemonRunning while another daemon holds the lock.
func (lm *LifecycleManager) Acquire() error {
	if err := lm.lock.acquire(); err != nil {
		return err
	}
	if err := lm.pidFile.Write(); err != nil {
		lm.lock.release()
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Running reports whether another daemon owns the PID file and answers on
// the socket.
func (lm *LifecycleManager) Running() bool {
	return lm.pidFile.IsProcessAlive() && SocketResponsive(lm.socketPath)
}

func (lm *LifecycleManager) Cleanup() {
	lm.pidFile.Remove()
	lm.lock.release()
}

func (lm *LifecycleManager) PIDFile() *PIDFile {
	return lm.pidFile
}
