// Package workspace hands each task an isolated working directory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideWorkspace = errors.New("path escapes the workspace")

// Handle is the opaque reference packs receive to reach their task's files.
type Handle struct {
	Path string `json:"path"`
}

// Resolve maps a path given by the planner to an absolute path inside the workspace.
func (h Handle) Resolve(name string) (string, error) {
	if h.Path == "" {
		return "", errors.New("workspace not set")
	}
	clean := filepath.Clean(filepath.Join(h.Path, name))
	rel, err := filepath.Rel(h.Path, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideWorkspace, name)
	}
	return clean, nil
}

type Provider interface {
	Open(ctx context.Context, taskID string) (Handle, error)
	Dispose(ctx context.Context, taskID string) error
}

// Local keeps one directory per task below a root.
type Local struct {
	root string
}

var _ Provider = (*Local)(nil)

func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) Root() string {
	return l.root
}

func (l *Local) Open(_ context.Context, taskID string) (Handle, error) {
	dir, err := l.dir(taskID)
	if err != nil {
		return Handle{}, err
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return Handle{}, fmt.Errorf("create workspace: %w", err)
	}
	return Handle{Path: dir}, nil
}

func (l *Local) Dispose(_ context.Context, taskID string) error {
	dir, err := l.dir(taskID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

func (l *Local) dir(taskID string) (string, error) {
	if taskID == "" || strings.ContainsAny(taskID, `/\`) || taskID == "." || taskID == ".." {
		return "", fmt.Errorf("invalid task id %q", taskID)
	}
	return filepath.Join(l.root, taskID), nil
}
