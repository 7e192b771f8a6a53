package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gsagostini/urban-graphlets/internal/census"
	"github.com/gsagostini/urban-graphlets/internal/config"
	"github.com/gsagostini/urban-graphlets/internal/daemon"
	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/logger"
	"github.com/gsagostini/urban-graphlets/internal/mcp"
	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/pkg/version"
)

const usage = `usage: orcastr <command> [flags] [args]

commands:
  serve   serve MCP over stdio with every tool in-process
  proxy   relay MCP over stdio to the daemon, starting it if needed
  count   count orbits of an ORCA-format graph ("<n> <m>" header, m edges)
  gdm     print the labelled graphlet degree matrix of an edge list
  gcm     print the graphlet correlation matrix of an edge list, or the GCD of two
  version print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = serve(ctx, args)
	case "proxy":
		err = proxy(ctx, args)
	case "count":
		err = count(ctx, args, os.Stdout)
	case "gdm":
		err = gdm(ctx, args, os.Stdout)
	case "gcm":
		err = gcm(ctx, args, os.Stdout)
	case "version":
		fmt.Println(version.Version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "orcastr: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	logger.Init(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	return cfg, nil
}

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	censusDir := fs.String("census", "", "run the census over this directory")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *censusDir != "" {
		cfg.Census.Enabled = true
		cfg.Census.Dir = *censusDir
	}

	services, err := daemon.NewServices(cfg)
	if err != nil {
		return err
	}
	defer services.Close()
	if err := services.StartCensus(ctx, cfg.Census.Dir); err != nil {
		return err
	}

	server := mcp.NewServer(services.Registry, cfg.RequestTimeout)
	return server.ProcessStream(ctx, os.Stdin, os.Stdout)
}

func proxy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("proxy", flag.ExitOnError)
	wait := fs.Duration("wait", 10*time.Second, "how long to wait for a freshly started daemon")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !daemon.SocketResponsive(cfg.SocketPath) {
		if err := startDaemon(); err != nil {
			return err
		}
		if err := waitForDaemonReady(ctx, cfg.SocketPath, *wait); err != nil {
			return err
		}
	}

	client, err := daemon.Dial(ctx, cfg.SocketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Proxy(ctx, os.Stdin, os.Stdout)
}

func waitForDaemonReady(ctx context.Context, socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if daemon.SocketResponsive(socketPath) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon socket not ready after %v", timeout)
}

// readInput returns the contents of path, or of stdin when path is "" or "-".
func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	content, _, err := census.ReadFileAsUTF8(path)
	return content, err
}

func count(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	task := fs.String("task", "node", "node or edge")
	size := fs.Int("size", 4, "graphlet size, 4 or 5")
	workers := fs.Int("workers", 0, "counting goroutines, 0 for one per CPU")
	fs.Parse(args)

	text, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	counter := orca.NewCounter(orca.CounterConfig{Workers: *workers})
	res, err := counter.CountString(ctx, *task, *size, text)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, res)
	return err
}

func loadEdgeList(path string) (*graphlet.EdgeList, error) {
	text, err := readInput(path)
	if err != nil {
		return nil, err
	}
	return graphlet.ReadEdgeList(strings.NewReader(text))
}

func gdm(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gdm", flag.ExitOnError)
	size := fs.Int("size", 4, "graphlet size, 4 or 5")
	task := fs.String("task", "node", "node or edge")
	trim := fs.Bool("trim", false, "keep only the 11 non-redundant orbits")
	fs.Parse(args)

	t, err := orca.ParseTask(*task)
	if err != nil {
		return err
	}
	el, err := loadEdgeList(fs.Arg(0))
	if err != nil {
		return err
	}
	res, err := graphlet.OrbitCounts(ctx, orca.NewCounter(orca.CounterConfig{}), t, *size, el)
	if err != nil {
		return err
	}
	if *trim {
		if res.Counts, err = graphlet.TrimGDM(res.Counts); err != nil {
			return err
		}
	}
	return writeJSON(out, res)
}

func gcm(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gcm", flag.ExitOnError)
	size := fs.Int("size", 4, "graphlet size, 4 or 5")
	fs.Parse(args)
	if fs.NArg() == 0 || fs.NArg() > 2 {
		return fmt.Errorf("gcm takes one edge list, or two to compare")
	}

	counter := orca.NewCounter(orca.CounterConfig{})
	matrices := make([]*graphlet.GCM, 0, fs.NArg())
	for _, path := range fs.Args() {
		el, err := loadEdgeList(path)
		if err != nil {
			return err
		}
		res, err := graphlet.OrbitCounts(ctx, counter, orca.TaskNode, *size, el)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		m, err := graphlet.ComputeGCM(res.Counts)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if m == nil {
			return fmt.Errorf("%s: empty graph has no correlation matrix", path)
		}
		matrices = append(matrices, m)
	}

	if len(matrices) == 1 {
		return writeJSON(out, matrices[0])
	}
	if !matrices[0].Valid() || !matrices[1].Valid() {
		return fmt.Errorf("GCD needs two valid correlation matrices")
	}
	d, err := graphlet.GCD(matrices[0].Vector(), matrices[1].Vector())
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]float64{"gcd": d})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
