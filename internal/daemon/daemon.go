// Package daemon hosts the tool registry behind a unix socket speaking
// header-framed JSON-RPC 2.0, together with the background census.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/gsagostini/urban-graphlets/internal/census"
	"github.com/gsagostini/urban-graphlets/internal/config"
	"github.com/gsagostini/urban-graphlets/internal/engine"
	"github.com/gsagostini/urban-graphlets/internal/export"
	"github.com/gsagostini/urban-graphlets/internal/logger"
	"github.com/gsagostini/urban-graphlets/internal/mcp"
	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/store"
	"github.com/gsagostini/urban-graphlets/internal/tools"
	"github.com/gsagostini/urban-graphlets/internal/tools/analysis"
	censustools "github.com/gsagostini/urban-graphlets/internal/tools/census"
	"github.com/gsagostini/urban-graphlets/internal/tools/orcastr"
	"github.com/gsagostini/urban-graphlets/internal/watcher"
	"github.com/gsagostini/urban-graphlets/pkg/protocol"
)

var log = logger.ForComponent("daemon")

// Services is everything a daemon or an in-process stdio server hosts.
type Services struct {
	Registry *tools.Registry
	Store    *store.Store
	Engine   *engine.Engine
	Census   *census.Worker
	Watcher  *watcher.Watcher
}

// NewServices opens the store and registers every tool module. The census
// and its watcher are created only when cfg.Census.Enabled is set; neither is
// started.
func NewServices(cfg *config.Config) (*Services, error) {
	st, err := store.Open(store.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Counter:   orca.CounterConfig{Workers: cfg.Counter.Workers, ChunkSize: cfg.Counter.ChunkSize},
		CacheSize: cfg.Counter.CacheSize,
	}, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	s := &Services{Registry: tools.NewRegistry(), Store: st, Engine: eng}
	if cfg.Census.Enabled {
		if err := s.newCensus(cfg); err != nil {
			st.Close()
			return nil, err
		}
	}
	if err := s.registerTools(cfg); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

func (s *Services) newCensus(cfg *config.Config) error {
	sink, err := export.New(cfg.Export)
	if err != nil {
		return fmt.Errorf("export sink: %w", err)
	}

	cc := census.DefaultConfig()
	cc.Root = cfg.Census.Dir
	cc.Size = cfg.Census.Size
	cc.WorkerCount = cfg.Census.WorkerCount
	cc.MaxQueueSize = cfg.Census.MaxQueueSize
	cc.RateLimit = cfg.Census.RateLimit
	cc.MaxFileSize = cfg.Census.MaxFileSize
	cc.IncludePatterns = cfg.Watcher.IncludePatterns
	cc.ExcludePatterns = cfg.Census.ExcludePatterns
	s.Census = census.NewWorker(s.Store, s.Engine, sink, cc)

	if cfg.Watcher.Enabled {
		w, err := watcher.New(cfg.Watcher, s.Census)
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		s.Watcher = w
	}
	return nil
}

func (s *Services) registerTools(cfg *config.Config) error {
	workers := cfg.Counter.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if err := orcastr.Register(s.Registry, s.Engine); err != nil {
		return err
	}
	if err := analysis.Register(s.Registry, s.Engine, workers); err != nil {
		return err
	}

	var stats censustools.StatsSource
	if s.Census != nil {
		stats = s.Census
	}
	if err := censustools.Register(s.Registry, s.Store, stats); err != nil {
		return err
	}

	health := tools.NewHealthTool(s.Registry)
	health.AddProbe("store", func(ctx context.Context) (any, error) {
		return s.Store.GetStats(ctx)
	})
	health.AddProbe("engine", func(context.Context) (any, error) {
		return s.Engine.Stats(), nil
	})
	if s.Census != nil {
		health.AddProbe("census", func(context.Context) (any, error) {
			st := s.Census.Stats()
			if !st.IsRunning {
				return st, errors.New("census is not running")
			}
			return st, nil
		})
	}
	return s.Registry.Register(health)
}

// StartCensus starts the census workers and queues the census directory,
// through the watcher when one is configured.
func (s *Services) StartCensus(ctx context.Context, dir string) error {
	if s.Census == nil {
		return nil
	}
	s.Census.Start()

	if s.Watcher == nil {
		n, err := s.Census.Scan(dir)
		if err != nil {
			return fmt.Errorf("scan %s: %w", dir, err)
		}
		log.Info("census queued", "dir", dir, "files", n)
		return nil
	}
	if err := s.Watcher.AddRoot(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return s.Watcher.Start(ctx)
}

func (s *Services) Close() error {
	if s.Watcher != nil {
		if err := s.Watcher.Stop(); err != nil {
			log.Warn("watcher stop failed", "error", err)
		}
	}
	if s.Census != nil {
		s.Census.Stop()
	}
	return s.Store.Close()
}

type Daemon struct {
	config   *config.Config
	services *Services
	handler  *mcp.Handler
	listener *rpcSocket

	connMu      sync.Mutex
	connections map[*jsonrpc2.Conn]struct{}
	wg          sync.WaitGroup

	shutdown     chan struct{}
	shutdownOnce sync.Once
	startTime    time.Time
}

func New(cfg *config.Config) (*Daemon, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		config:      cfg,
		services:    services,
		handler:     mcp.NewHandler(services.Registry, cfg.RequestTimeout),
		listener:    newRPCSocket(cfg.SocketPath),
		connections: make(map[*jsonrpc2.Conn]struct{}),
		shutdown:    make(chan struct{}),
		startTime:   time.Now(),
	}, nil
}

// Start listens on the socket and starts the census. It returns once the
// daemon accepts connections.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.listener.listen(); err != nil {
		return err
	}
	if err := d.services.StartCensus(ctx, d.config.Census.Dir); err != nil {
		d.listener.close()
		return err
	}

	log.Info("daemon listening", "socket", d.listener.path, "tools", d.ToolCount())
	go d.acceptConnections(ctx)
	return nil
}

// Run starts the daemon and serves until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-d.shutdown:
	}
	return d.Shutdown()
}

func (d *Daemon) acceptConnections(ctx context.Context) {
	for {
		nc, err := d.listener.accept()
		if err != nil {
			select {
			case <-d.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		// Registration and wg.Add happen under connMu so Shutdown either
		// sees the connection or this loop sees the shutdown.
		d.connMu.Lock()
		select {
		case <-d.shutdown:
			d.connMu.Unlock()
			nc.Close()
			return
		default:
		}
		if limit := d.config.MaxConnections; limit > 0 && len(d.connections) >= limit {
			d.connMu.Unlock()
			log.Warn("connection rejected", "reason", "too many connections")
			nc.Close()
			continue
		}
		stream := jsonrpc2.NewBufferedStream(nc, jsonrpc2.VSCodeObjectCodec{})
		conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(d.handle)))
		d.connections[conn] = struct{}{}
		d.wg.Add(1)
		d.connMu.Unlock()

		go func() {
			defer d.wg.Done()
			<-conn.DisconnectNotify()
			d.connMu.Lock()
			delete(d.connections, conn)
			d.connMu.Unlock()
		}()
	}
}

func (d *Daemon) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	r := &mcp.Request{JSONRPC: "2.0", Method: req.Method}
	if !req.Notif {
		r.ID = req.ID.String()
	}
	if req.Params != nil {
		r.Params = *req.Params
	}

	resp := d.handler.Handle(ctx, r)
	if resp == nil {
		return nil, nil
	}
	if resp.Error != nil {
		return nil, toWireError(resp.Error)
	}
	return resp.Result, nil
}

func toWireError(e *protocol.JSONRPCError) *jsonrpc2.Error {
	out := &jsonrpc2.Error{Code: int64(e.Code), Message: e.Message}
	if e.Data != nil {
		if data, err := json.Marshal(e.Data); err == nil {
			raw := json.RawMessage(data)
			out.Data = &raw
		}
	}
	return out
}

// Shutdown closes the listener and every connection, then stops the census
// and closes the store.
func (d *Daemon) Shutdown() error {
	var err error
	d.shutdownOnce.Do(func() {
		close(d.shutdown)
		d.listener.close()

		d.connMu.Lock()
		for conn := range d.connections {
			conn.Close()
		}
		d.connMu.Unlock()
		d.wg.Wait()

		err = d.services.Close()
		log.Info("daemon stopped", "uptime", d.Uptime().Round(time.Second))
	})
	return err
}

func (d *Daemon) SocketPath() string {
	return d.listener.path
}

func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.startTime)
}

// ConnectionCount returns the number of open client connections.
func (d *Daemon) ConnectionCount() int {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	return len(d.connections)
}

func (d *Daemon) ToolCount() int {
	return len(d.services.Registry.Names())
}
