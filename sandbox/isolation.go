package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderun/language"
)

// ContainerWorkdir is where the workspace is mounted inside a container
const ContainerWorkdir = "/workdir"

const containerKillTimeout = 10 * time.Second

// Isolation turns an argv from a language profile into a runnable Command
type Isolation interface {
	Wrap(ws *Workspace, p language.Profile, argv []string, hasStdin bool) Command
}

// HostIsolation runs toolchains directly on the host with a reduced
// environment. It offers no isolation beyond the workspace directory.
type HostIsolation struct{}

// Wrap implements Isolation
func (HostIsolation) Wrap(ws *Workspace, p language.Profile, argv []string, hasStdin bool) Command {
	return Command{
		Path:     argv[0],
		Args:     argv[1:],
		Dir:      ws.Dir,
		Env:      hostEnvironment(ws.Dir, p.Environment),
		HasStdin: hasStdin,
	}
}

// hostVariables are passed through from the service environment so that
// toolchains resolve; everything else, API keys included, is withheld
var hostVariables = []string{"PATH", "LANG", "LC_ALL", "JAVA_HOME", "SYSTEMROOT", "COMSPEC", "PATHEXT"}

func hostEnvironment(dir string, extra map[string]string) []string {
	env := make([]string, 0, len(hostVariables)+len(extra)+2)
	for _, key := range hostVariables {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	env = append(env, "HOME="+dir, "TMPDIR="+dir)
	return append(env, sortedEnv(extra)...)
}

func sortedEnv(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// ContainerIsolation runs every command in a throwaway docker or podman
// container with the workspace mounted at /workdir. The engine CLI keeps the
// service environment; the container only sees the profile environment.
type ContainerIsolation struct {
	logger         *zap.Logger
	engine         string
	memoryMB       int
	networkEnabled bool
	user           string
}

// NewContainerIsolation creates a wrapper for the docker or podman CLI
func NewContainerIsolation(logger *zap.Logger, engine string, memoryMB int, networkEnabled bool) *ContainerIsolation {
	return &ContainerIsolation{
		logger:         logger,
		engine:         engine,
		memoryMB:       memoryMB,
		networkEnabled: networkEnabled,
		user:           containerUser(),
	}
}

// RequiresSharedWorkspace reports whether the container user differs from
// the service user and needs a world-writable workspace
func (c *ContainerIsolation) RequiresSharedWorkspace() bool {
	return c.user == "nobody"
}

// Wrap implements Isolation
func (c *ContainerIsolation) Wrap(ws *Workspace, p language.Profile, argv []string, hasStdin bool) Command {
	name := containerName(ws)

	network := "none"
	if c.networkEnabled {
		network = "bridge"
	}

	args := []string{
		"run",
		"--name", name,
		"--rm",
		"-v", fmt.Sprintf("%s:%s", ws.Dir, ContainerWorkdir),
		"--workdir", ContainerWorkdir,
		"--memory", fmt.Sprintf("%dm", c.memoryMB),
		"--network", network,
		"--ulimit", "fsize=100000000",
		"--security-opt", "no-new-privileges:true",
		"--user", c.user,
		"--cap-drop", "ALL",
		"-e", "HOME=" + ContainerWorkdir,
	}
	if hasStdin {
		args = append(args, "-i")
	}
	for _, kv := range sortedEnv(p.Environment) {
		args = append(args, "-e", kv)
	}
	args = append(args, p.Image)
	args = append(args, argv...)

	return Command{
		Path:     c.engine,
		Args:     args,
		Dir:      ws.Dir,
		Env:      os.Environ(),
		HasStdin: hasStdin,
		OnKill:   func() { c.kill(name) },
	}
}

// kill removes a container whose client process was killed; the container
// itself would otherwise keep running
func (c *ContainerIsolation) kill(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), containerKillTimeout)
	defer cancel()

	//nolint:gosec // Engine and name are built by the service
	if err := exec.CommandContext(ctx, c.engine, "rm", "--force", name).Run(); err != nil {
		c.logger.Warn("failed to remove container after kill", zap.String("container", name), zap.Error(err))
	}
}

var containerSeq atomic.Uint64

func containerName(ws *Workspace) string {
	return fmt.Sprintf("%s%s-%d", WorkspacePrefix, ws.ID, containerSeq.Add(1))
}

func containerUser() string {
	uid, gid := os.Getuid(), os.Getgid()
	if runtime.GOOS == "windows" || uid <= 0 {
		return "nobody"
	}
	return fmt.Sprintf("%d:%d", uid, gid)
}

// NewIsolation selects the isolation for the configured mode
func NewIsolation(logger *zap.Logger, mode string, memoryMB int, networkEnabled bool) (Isolation, error) {
	switch strings.ToLower(mode) {
	case "", "none":
		return HostIsolation{}, nil
	case "docker", "podman":
		return NewContainerIsolation(logger, strings.ToLower(mode), memoryMB, networkEnabled), nil
	default:
		return nil, fmt.Errorf("unsupported isolation: %s", mode)
	}
}
