package toolchain

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/execx"
	"stackctl/internal/poll"
)

func instant(ctx context.Context, d time.Duration) error { return nil }

func TestToolChainCommands(t *testing.T) {
	tc := ToolChain{Engine: Direct, Compose: Plugin, ComposeAccess: Direct}
	assert.Equal(t, "docker inspect abc", tc.EngineCmd("inspect", "abc").Line())
	assert.Equal(t, "docker compose up -d db", tc.ComposeCmd("up", "-d", "db").Line())

	tc = ToolChain{Engine: Elevated, Compose: Standalone, ComposeAccess: Elevated}
	assert.Equal(t, "sudo docker ps", tc.EngineCmd("ps").Line())
	assert.Equal(t, "sudo docker-compose ps", tc.ComposeCmd("ps").Line())
	assert.Equal(t, "engine=elevated compose=standalone/elevated", tc.String())
}

func TestElevator_RootRunsDirectly(t *testing.T) {
	f := &execx.Fake{}
	e := Elevator{Runner: f, Euid: func() int { return 0 }}
	require.NoError(t, e.Run(context.Background(), "mkdir", "-p", "/data"))
	assert.Equal(t, []string{"mkdir -p /data"}, f.Calls())
}

func TestElevator_NonInteractiveFirst(t *testing.T) {
	f := &execx.Fake{Paths: map[string]string{"sudo": "/usr/bin/sudo"}}
	e := Elevator{Runner: f, Euid: func() int { return 1000 }}
	require.NoError(t, e.Run(context.Background(), "mkdir", "-p", "/data"))
	assert.Equal(t, []string{"sudo -n mkdir -p /data"}, f.Calls())
}

func TestElevator_FallsBackToInteractive(t *testing.T) {
	f := &execx.Fake{
		Paths: map[string]string{"sudo": "/usr/bin/sudo"},
		Handler: func(c execx.Cmd) ([]byte, error) {
			if c.Args[0] == "-n" {
				return nil, errors.New("a password is required")
			}
			return nil, nil
		},
	}
	e := Elevator{Runner: f, Euid: func() int { return 1000 }, Stdin: strings.NewReader("")}
	require.NoError(t, e.Run(context.Background(), "chown", "1000:1000", "/data"))
	assert.Equal(t, []string{"sudo -n chown 1000:1000 /data", "sudo chown 1000:1000 /data"}, f.Calls())
}

func TestElevator_NoSudo(t *testing.T) {
	e := Elevator{Runner: &execx.Fake{}, Euid: func() int { return 1000 }}
	err := e.Run(context.Background(), "mkdir", "/data")
	assert.True(t, IsPrivilegeUnavailable(err))
	assert.False(t, e.HasSudo())
}

func TestPrompter(t *testing.T) {
	assert.NoError(t, Prompter{AutoApprove: true}.Confirm("install?"))

	err := Prompter{Interactive: func() bool { return false }}.Confirm("install?")
	assert.ErrorIs(t, err, ErrNotApproved)

	var out strings.Builder
	p := Prompter{In: strings.NewReader("yes\n"), Out: &out, Interactive: func() bool { return true }}
	assert.NoError(t, p.Confirm("install?"))
	assert.Contains(t, out.String(), "[y/N]")

	p = Prompter{In: strings.NewReader("n\n"), Out: &out, Interactive: func() bool { return true }}
	assert.ErrorIs(t, p.Confirm("install?"), ErrNotApproved)
}

func TestPrompter_ChecksInputFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "answers"))
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("y\n")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	// a regular file is never a terminal, so the answer in it is not read
	p := Prompter{In: f, Out: io.Discard}
	assert.False(t, p.interactive())
	assert.ErrorIs(t, p.Confirm("install?"), ErrNotApproved)
}

func TestIsDebianLike(t *testing.T) {
	d := t.TempDir()
	ubuntu := filepath.Join(d, "ubuntu")
	require.NoError(t, os.WriteFile(ubuntu, []byte("NAME=\"Ubuntu\"\nID=ubuntu\nID_LIKE=debian\n"), 0o644))
	arch := filepath.Join(d, "arch")
	require.NoError(t, os.WriteFile(arch, []byte("# comment\nID=arch\n"), 0o644))
	assert.True(t, isDebianLike(ubuntu))
	assert.False(t, isDebianLike(arch))
	assert.False(t, isDebianLike(filepath.Join(d, "missing")))
}

func newResolver(f *execx.Fake, euid int) *Resolver {
	e := Elevator{Runner: f, Euid: func() int { return euid }}
	return &Resolver{
		Runner:    f,
		Elevator:  e,
		Prompter:  Prompter{Interactive: func() bool { return false }},
		Installer: Installer{Elevator: e, Log: zerolog.Nop(), GOOS: "plan9"},
		Poller:    poll.Poller{Sleep: instant},
		Log:       zerolog.Nop(),
		GOOS:      "linux",
	}
}

func TestResolveCompose_PrefersPlugin(t *testing.T) {
	f := &execx.Fake{Paths: map[string]string{"docker": "/usr/bin/docker"}}
	r := newResolver(f, 1000)
	tc, err := r.ResolveCompose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Plugin, tc.Compose)
	assert.Equal(t, Direct, tc.ComposeAccess)

	// cached: no further probes
	n := len(f.Calls())
	_, err = r.ResolveCompose(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.Calls(), n)
}

func TestResolveCompose_FallbackOrder(t *testing.T) {
	f := &execx.Fake{
		Paths: map[string]string{"sudo": "/usr/bin/sudo"},
		Handler: func(c execx.Cmd) ([]byte, error) {
			if c.Line() == "sudo -n docker-compose version" {
				return nil, nil
			}
			return nil, execx.ErrFake
		},
	}
	r := newResolver(f, 1000)
	tc, err := r.ResolveCompose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ToolChain{Engine: Direct, Compose: Standalone, ComposeAccess: Elevated}, tc)
	assert.Equal(t, []string{
		"docker compose version",
		"docker-compose version",
		"sudo -n docker compose version",
		"sudo -n docker-compose version",
	}, f.Calls())
}

func TestResolveCompose_NonInteractiveWithoutApprovalFails(t *testing.T) {
	f := &execx.Fake{Handler: func(c execx.Cmd) ([]byte, error) { return nil, execx.ErrFake }}
	r := newResolver(f, 1000)
	_, err := r.ResolveCompose(context.Background())
	assert.True(t, IsToolingUnavailable(err))
	assert.ErrorIs(t, err, ErrNotApproved)
	for _, c := range f.Calls() {
		assert.NotContains(t, c, "apt-get")
	}
}

func TestResolveCompose_InstallThenReprobeOnce(t *testing.T) {
	dir := t.TempDir()
	osr := filepath.Join(dir, "os-release")
	require.NoError(t, os.WriteFile(osr, []byte("ID=debian\n"), 0o644))
	installed := false
	f := &execx.Fake{Handler: func(c execx.Cmd) ([]byte, error) {
		if strings.Contains(c.Line(), "apt-get install") {
			installed = true
			return nil, nil
		}
		if strings.HasPrefix(c.Line(), "apt-get") {
			return nil, nil
		}
		if installed && c.Line() == "docker compose version" {
			return nil, nil
		}
		return nil, execx.ErrFake
	}}
	r := newResolver(f, 0)
	r.Prompter = Prompter{AutoApprove: true}
	r.Installer = Installer{Elevator: r.Elevator, Log: zerolog.Nop(), GOOS: "linux", OSRelease: osr}
	tc, err := r.ResolveCompose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Plugin, tc.Compose)
	assert.Contains(t, f.Calls(), "apt-get install -y docker-compose-plugin")
}

func TestResolveEngine(t *testing.T) {
	f := &execx.Fake{Paths: map[string]string{"docker": "/usr/bin/docker"}}
	require.NoError(t, newResolver(f, 1000).ResolveEngine(context.Background()))

	f = &execx.Fake{}
	err := newResolver(f, 1000).ResolveEngine(context.Background())
	assert.True(t, IsToolingUnavailable(err))
}

func TestEnsureDaemon(t *testing.T) {
	t.Run("reachable directly", func(t *testing.T) {
		f := &execx.Fake{}
		v, err := newResolver(f, 1000).EnsureDaemon(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Direct, v)
		assert.Equal(t, []string{"docker info"}, f.Calls())
	})

	t.Run("needs sudo", func(t *testing.T) {
		f := &execx.Fake{
			Paths: map[string]string{"sudo": "/usr/bin/sudo"},
			Handler: func(c execx.Cmd) ([]byte, error) {
				if c.Path == "sudo" {
					return nil, nil
				}
				return nil, execx.ErrFake
			},
		}
		r := newResolver(f, 1000)
		v, err := r.EnsureDaemon(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Elevated, v)
		tc, err := r.ResolveCompose(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Elevated, tc.Engine)
	})

	t.Run("compose follows elevated daemon", func(t *testing.T) {
		// the socket is root-only: plain docker info fails, every version
		// probe succeeds since none of them reach the daemon
		f := &execx.Fake{
			Paths: map[string]string{"sudo": "/usr/bin/sudo"},
			Handler: func(c execx.Cmd) ([]byte, error) {
				if c.Line() == "docker info" {
					return nil, execx.ErrFake
				}
				return nil, nil
			},
		}
		r := newResolver(f, 1000)
		v, err := r.EnsureDaemon(context.Background())
		require.NoError(t, err)
		require.Equal(t, Elevated, v)

		tc, err := r.ResolveCompose(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ToolChain{Engine: Elevated, Compose: Plugin, ComposeAccess: Elevated}, tc)
		assert.Equal(t, "sudo docker compose up -d db", tc.ComposeCmd("up", "-d", "db").Line())
		for _, c := range f.Calls() {
			assert.NotEqual(t, "docker compose version", c)
			assert.NotEqual(t, "docker-compose version", c)
		}
	})

	t.Run("root keeps direct compose", func(t *testing.T) {
		f := &execx.Fake{Paths: map[string]string{"sudo": "/usr/bin/sudo"}}
		r := newResolver(f, 0)
		_, err := r.EnsureDaemon(context.Background())
		require.NoError(t, err)
		tc, err := r.ResolveCompose(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Direct, tc.ComposeAccess)
	})

	t.Run("started then reachable", func(t *testing.T) {
		started := false
		infos := 0
		f := &execx.Fake{Handler: func(c execx.Cmd) ([]byte, error) {
			switch c.Line() {
			case "systemctl start docker":
				started = true
				return nil, nil
			case "docker info":
				infos++
				if started && infos >= 3 {
					return nil, nil
				}
			}
			return nil, execx.ErrFake
		}}
		v, err := newResolver(f, 0).EnsureDaemon(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Direct, v)
	})

	t.Run("never reachable", func(t *testing.T) {
		f := &execx.Fake{Handler: func(c execx.Cmd) ([]byte, error) {
			if c.Line() == "systemctl start docker" {
				return nil, nil
			}
			return nil, execx.ErrFake
		}}
		r := newResolver(f, 0)
		r.DaemonAttempts = 3
		_, err := r.EnsureDaemon(context.Background())
		assert.True(t, IsToolingUnavailable(err))
	})
}
