package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsagostini/urban-graphlets/internal/config"
	"github.com/gsagostini/urban-graphlets/internal/mcp"
	"github.com/gsagostini/urban-graphlets/pkg/protocol"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	// unix socket paths are length limited
	dir, err := os.MkdirTemp("", "orcd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.SocketPath = filepath.Join(dir, "d.sock")
	cfg.PidFile = filepath.Join(dir, "d.pid")
	cfg.LockFile = filepath.Join(dir, "d.lock")
	cfg.Database.Path = filepath.Join(dir, "orcastr.db")
	cfg.Census.Enabled = true
	cfg.Census.Dir = filepath.Join(dir, "graphs")
	cfg.Census.RateLimit = 0
	cfg.Watcher.Enabled = false
	require.NoError(t, os.MkdirAll(cfg.Census.Dir, 0755))
	return cfg
}

func startDaemon(t *testing.T, cfg *config.Config) *Client {
	t.Helper()
	d, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() {
		cancel()
		require.NoError(t, d.Shutdown())
	})

	c, err := Dial(context.Background(), cfg.SocketPath)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDaemonServesTools(t *testing.T) {
	cfg := testConfig(t)
	c := startDaemon(t, cfg)
	ctx := context.Background()

	var ir mcp.InitializeResult
	require.NoError(t, c.Call(ctx, "initialize", map[string]any{"protocolVersion": "2025-03-26"}, &ir))
	assert.Equal(t, "orcastr", ir.ServerInfo.Name)

	var mods mcp.ListModulesResult
	require.NoError(t, c.Call(ctx, "modules/list", nil, &mods))
	names := make([]string, 0, len(mods.Modules))
	for _, m := range mods.Modules {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"census", "graphlets", "orcastr"}, names)

	out, err := c.CallTool(ctx, "motif_counts_str", map[string]any{"task": "node", "size": 4, "graph": "2 1\n0 1\n"})
	require.NoError(t, err)
	assert.Equal(t, "1 0 0 0 0 0 0 0 0 0 0 0 0 0 0\n1 0 0 0 0 0 0 0 0 0 0 0 0 0 0\n", out)

	_, err = c.CallTool(ctx, "motif_counts_str", nil)
	var we *jsonrpc2.Error
	require.True(t, errors.As(err, &we))
	assert.EqualValues(t, protocol.CodeInvalidParams, we.Code)
	require.NotNil(t, we.Data)
	assert.JSONEq(t, `{"kind": "invalid_input"}`, string(*we.Data))
}

func TestDaemonRunsCensus(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Census.Dir, "loop.edges"), []byte("a b\nb c\nc a\n"), 0644))
	c := startDaemon(t, cfg)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		out, err := c.CallTool(ctx, "census_get", map[string]any{"name": "loop"})
		if err != nil {
			return false
		}
		var rec map[string]any
		return json.Unmarshal([]byte(out), &rec) == nil && rec["status"] == "done"
	}, 5*time.Second, 20*time.Millisecond)

	out, err := c.CallTool(ctx, "health", nil)
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestProxyRelaysRequests(t *testing.T) {
	cfg := testConfig(t)
	c := startDaemon(t, cfg)

	in := `{"jsonrpc": "2.0", "id": 3, "method": "ping"}
{"jsonrpc": "2.0", "method": "notifications/initialized"}
{"jsonrpc": "2.0", "id": "x", "method": "no/such"}
`
	var out bytes.Buffer
	require.NoError(t, c.Proxy(context.Background(), strings.NewReader(in), &out))

	dec := json.NewDecoder(&out)
	var first, second protocol.JSONRPCResponse
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.EqualValues(t, 3, first.ID)
	assert.Nil(t, first.Error)
	assert.Equal(t, "x", second.ID)
	require.NotNil(t, second.Error)
	assert.Equal(t, protocol.CodeMethodNotFound, second.Error.Code)
}

func TestLifecycleSingleInstance(t *testing.T) {
	cfg := testConfig(t)
	first := NewLifecycleManager(cfg.LockFile, cfg.PidFile, cfg.SocketPath)
	require.NoError(t, first.Acquire())

	pid, err := first.PIDFile().Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.False(t, first.Running(), "no socket is listening")

	second := NewLifecycleManager(cfg.LockFile, cfg.PidFile, cfg.SocketPath)
	err = second.Acquire()
	assert.ErrorIs(t, err, ErrDaemonRunning)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))

	first.Cleanup()
	require.NoError(t, second.Acquire())
	second.Cleanup()
}

func TestShutdownWithClientsConnecting(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				nc, err := net.DialTimeout("unix", cfg.SocketPath, time.Second)
				if err != nil {
					continue
				}
				nc.Close()
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- d.Shutdown() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not return")
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, d.ConnectionCount())
	_, err = Dial(context.Background(), cfg.SocketPath)
	assert.Error(t, err)
}

func TestSocketRefusesLiveDaemon(t *testing.T) {
	cfg := testConfig(t)
	first := newRPCSocket(cfg.SocketPath)
	require.NoError(t, first.listen())
	defer first.close()

	info, err := os.Stat(cfg.SocketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second := newRPCSocket(cfg.SocketPath)
	assert.ErrorIs(t, second.listen(), ErrDaemonRunning)
	assert.True(t, SocketResponsive(cfg.SocketPath), "the first socket keeps serving")
}

func TestSocketReplacesStaleFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.SocketPath, nil, 0600))

	s := newRPCSocket(cfg.SocketPath)
	require.NoError(t, s.listen())
	assert.True(t, SocketResponsive(cfg.SocketPath))

	require.NoError(t, s.close())
	require.NoError(t, s.close())
	_, err := os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSocketPathLimit(t *testing.T) {
	long := filepath.Join(t.TempDir(), strings.Repeat("s", maxSocketPath)+".sock")
	assert.ErrorIs(t, newRPCSocket(long).listen(), ErrSocketPathTooLong)
}

func TestInstanceLockReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "daemon.lock")
	l := newInstanceLock(path)
	require.NoError(t, l.acquire())
	assert.True(t, l.held())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	require.NoError(t, l.release())
	require.NoError(t, l.release())
	assert.False(t, l.held())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
