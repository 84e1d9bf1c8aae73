package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/coderun/metrics"
)

// WorkspacePrefix starts the name of every workspace directory
const WorkspacePrefix = "coderun-"

// Workspace is a directory owned by exactly one in-flight execution
type Workspace struct {
	ID  string
	Dir string
	fs  FileSystem
}

// Path returns the absolute path of name inside the workspace
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// WriteFile writes content to name inside the workspace. Names containing a
// path separator are rejected.
func (w *Workspace) WriteFile(name, content string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid workspace file name: %q", name)
	}
	if err := w.fs.WriteFile(w.Path(name), []byte(content), FilePermission); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// WorkspaceManager creates and removes per-execution workspaces
type WorkspaceManager struct {
	logger  *zap.Logger
	root    string
	perm    os.FileMode
	fs      FileSystem
	metrics *metrics.Collector
}

// WorkspaceOption defines a functional option for WorkspaceManager
type WorkspaceOption func(*WorkspaceManager)

// WithWorkspaceFileSystem sets the FileSystem for WorkspaceManager
func WithWorkspaceFileSystem(fs FileSystem) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.fs = fs
	}
}

// WithWorkspaceMetrics records cleanup failures on the collector
func WithWorkspaceMetrics(c *metrics.Collector) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.metrics = c
	}
}

// WithWorkspacePermission overrides the directory mode, e.g. when a
// container user other than the service user must write to it
func WithWorkspacePermission(perm os.FileMode) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.perm = perm
	}
}

// NewWorkspaceManager creates a manager placing workspaces under root,
// the system temp directory when root is empty
func NewWorkspaceManager(logger *zap.Logger, root string, opts ...WorkspaceOption) *WorkspaceManager {
	if root == "" {
		root = os.TempDir()
	}
	m := &WorkspaceManager{
		logger: logger,
		root:   root,
		perm:   DirPermission,
		fs:     RealFileSystem{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the directory workspaces are created in
func (m *WorkspaceManager) Root() string {
	return m.root
}

// Acquire creates a fresh workspace. The directory is created without
// parents, so a name collision fails instead of sharing a directory.
func (m *WorkspaceManager) Acquire() (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(m.root, WorkspacePrefix+id)

	if err := m.fs.Mkdir(dir, m.perm); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	// Mkdir is subject to the umask.
	if m.perm != DirPermission {
		if err := os.Chmod(dir, m.perm); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to set workspace permissions", zap.String("path", dir), zap.Error(err))
		}
	}

	return &Workspace{ID: id, Dir: dir, fs: m.fs}, nil
}

// Release removes the workspace recursively. Failures are logged and
// counted, never returned: a failed cleanup must not fail the execution.
func (m *WorkspaceManager) Release(ws *Workspace) {
	if ws == nil {
		return
	}
	if err := m.fs.RemoveAll(ws.Dir); err != nil {
		m.logger.Error("failed to remove workspace", zap.String("path", ws.Dir), zap.Error(err))
		m.metrics.RecordCleanupFailure()
	}
}
