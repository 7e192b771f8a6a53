// Package export publishes census artifacts (graphlet degree matrices and
// correlation matrices) outside the result store, either to a local directory
// or to an S3 compatible bucket.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gsagostini/urban-graphlets/internal/config"
)

var ErrNotFound = errors.New("artifact not found")

// Sink stores artifacts grouped by census run.
type Sink interface {
	Put(ctx context.Context, runID, name string, content []byte) error
	Get(ctx context.Context, runID, name string) ([]byte, error)
	List(ctx context.Context, runID string) ([]string, error)
}

// New picks the sink described by cfg: S3 when an endpoint is set, a
// directory when Dir is set, and nil when exporting is disabled.
func New(cfg config.ExportConfig) (Sink, error) {
	if strings.TrimSpace(cfg.Endpoint) != "" {
		sink, err := NewS3Sink(S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	if strings.TrimSpace(cfg.Dir) != "" {
		sink, err := NewDirSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	return nil, nil
}

type DirSink struct {
	root string
}

func NewDirSink(root string) (*DirSink, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &DirSink{root: root}, nil
}

func (d *DirSink) path(runID, name string) (string, error) {
	runID = strings.TrimSpace(runID)
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if runID == "" {
		return "", fmt.Errorf("run_id is required")
	}
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	p := filepath.Join(d.root, runID, filepath.FromSlash(name))
	rel, err := filepath.Rel(d.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("artifact path escapes export dir: %s", name)
	}
	return p, nil
}

func (d *DirSink) Put(ctx context.Context, runID, name string, content []byte) error {
	p, err := d.path(runID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (d *DirSink) Get(ctx context.Context, runID, name string) ([]byte, error) {
	p, err := d.path(runID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (d *DirSink) List(ctx context.Context, runID string) ([]string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	base := filepath.Join(d.root, runID)
	var names []string
	err := filepath.WalkDir(base, func(p string, entry os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
