package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderun/language"
)

func TestHostIsolation(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	t.Setenv("PATH", "/usr/bin:/bin")

	ws := &Workspace{ID: "abc", Dir: "/tmp/coderun-abc"}
	p := mustProfile(t, language.Python)

	cmd := HostIsolation{}.Wrap(ws, p, []string{"python3", "-u", "main.py"}, true)

	assert.Equal(t, "python3", cmd.Path)
	assert.Equal(t, []string{"-u", "main.py"}, cmd.Args)
	assert.Equal(t, ws.Dir, cmd.Dir)
	assert.True(t, cmd.HasStdin)
	assert.Contains(t, cmd.Env, "PATH=/usr/bin:/bin")
	assert.Contains(t, cmd.Env, "HOME="+ws.Dir)
	assert.Contains(t, cmd.Env, "PYTHONDONTWRITEBYTECODE=1")
	for _, kv := range cmd.Env {
		assert.False(t, strings.HasPrefix(kv, "OPENAI_API_KEY="), "service secrets must not leak into submissions")
	}
	assert.Nil(t, cmd.OnKill)
}

func TestContainerIsolation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ws := &Workspace{ID: "abc", Dir: "/tmp/coderun-abc"}
	p := mustProfile(t, language.CPP)

	t.Run("Docker", func(t *testing.T) {
		iso := NewContainerIsolation(logger, "docker", 256, false)
		cmd := iso.Wrap(ws, p, []string{"./app"}, true)

		assert.Equal(t, "docker", cmd.Path)
		args := strings.Join(cmd.Args, " ")
		assert.True(t, strings.HasPrefix(args, "run --name coderun-abc-"))
		assert.Contains(t, args, "--rm")
		assert.Contains(t, args, "-v /tmp/coderun-abc:/workdir")
		assert.Contains(t, args, "--memory 256m")
		assert.Contains(t, args, "--network none")
		assert.Contains(t, args, "--cap-drop ALL")
		assert.Contains(t, args, "--security-opt no-new-privileges:true")
		assert.Contains(t, args, " -i ")
		assert.True(t, strings.HasSuffix(args, "gcc:13 ./app"))
		assert.NotNil(t, cmd.OnKill)
	})

	t.Run("PodmanWithNetworkNoStdin", func(t *testing.T) {
		iso := NewContainerIsolation(logger, "podman", 128, true)
		cmd := iso.Wrap(ws, p, []string{"./app"}, false)

		assert.Equal(t, "podman", cmd.Path)
		assert.Contains(t, cmd.Args, "bridge")
		assert.NotContains(t, cmd.Args, "-i")
	})

	t.Run("UniqueContainerNames", func(t *testing.T) {
		iso := NewContainerIsolation(logger, "docker", 128, false)
		first := iso.Wrap(ws, p, []string{"./app"}, false)
		second := iso.Wrap(ws, p, []string{"./app"}, false)
		assert.NotEqual(t, first.Args[2], second.Args[2])
	})
}

func TestNewIsolation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	iso, err := NewIsolation(logger, "none", 256, false)
	require.NoError(t, err)
	assert.IsType(t, HostIsolation{}, iso)

	iso, err = NewIsolation(logger, "docker", 256, false)
	require.NoError(t, err)
	assert.IsType(t, &ContainerIsolation{}, iso)

	_, err = NewIsolation(logger, "chroot", 256, false)
	require.Error(t, err)
}
