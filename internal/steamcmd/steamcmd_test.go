package steamcmd

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"arkmanager/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	lines []string
	code  int
	err   error
	args  []string
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args []string, onLine func(string)) (int, error) {
	f.args = args
	for _, l := range f.lines {
		onLine(l)
	}
	return f.code, f.err
}

func fakeTool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steamcmd.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
	return path
}

func TestAppUpdateArgs(t *testing.T) {
	tests := []struct {
		name  string
		login Login
		req   AppRequest
		want  []string
	}{
		{
			name: "anonymous public branch",
			req:  AppRequest{Dir: "/cache/376030", AppID: "376030"},
			want: []string{"+force_install_dir", "/cache/376030", "+login", "anonymous", "+app_update", "376030", "+quit"},
		},
		{
			name:  "authenticated beta with validate",
			login: Login{Username: "bob", Password: "pw"},
			req:   AppRequest{Dir: "/c", AppID: "376030", Branch: "beta", BranchPassword: "x", Validate: true},
			want: []string{"+force_install_dir", "/c", "+login", "bob", "pw", "+app_update", "376030",
				"-beta", "beta", "-betapassword", "x", "validate", "+quit"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AppUpdateArgs(tt.login, tt.req))
		})
	}
}

func TestWorkshopArgs(t *testing.T) {
	got := WorkshopArgs(Login{}, WorkshopRequest{Dir: "/c", AppID: "346110", ItemID: "731604991"})
	assert.Equal(t, []string{"+force_install_dir", "/c", "+login", "anonymous",
		"+workshop_download_item", "346110", "731604991", "+quit"}, got)
}

func TestSuccessRequiresTokenWhenCapturing(t *testing.T) {
	exec := &fakeExecutor{lines: []string{
		" Update state (0x61) downloading, progress: 12.50 (1 / 8)",
		"Success! App '376030' fully installed.",
	}}
	c := NewClient(fakeTool(t), Login{}, true).WithExecutor(exec)

	res, err := c.UpdateBranch(context.Background(), "/c", domain.BranchKey{AppID: "376030"}, false, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, res.SuccessSeen)
	assert.True(t, res.Downloading)
	assert.True(t, c.Succeeded(res, err))

	exec.lines = []string{"Error! App '376030' state is 0x202 after update job."}
	res, err = c.UpdateBranch(context.Background(), "/c", domain.BranchKey{AppID: "376030"}, false, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, c.Succeeded(res, err))

	c.CaptureOutput = false
	assert.True(t, c.Succeeded(res, err))

	exec.code = 8
	res, err = c.UpdateBranch(context.Background(), "/c", domain.BranchKey{AppID: "376030"}, false, zerolog.Nop())
	assert.False(t, c.Succeeded(res, err))
}

func TestMissingExecutable(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "nope"), Login{}, true).WithExecutor(&fakeExecutor{})
	_, err := c.UpdateApp(context.Background(), AppRequest{AppID: "1"}, zerolog.Nop())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedactHidesPassword(t *testing.T) {
	got := redact([]string{"+login", "bob", "hunter2"}, "hunter2")
	assert.Equal(t, []string{"+login", "bob", "********"}, got)
}

func TestEnsureDownloadsBootstrap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("tarball bootstrap is linux only")
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := []byte("#!/bin/sh\necho steam\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "steamcmd.sh", Mode: 0755, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	old := linuxURL
	linuxURL = srv.URL + "/steamcmd_linux.tar.gz"
	t.Cleanup(func() { linuxURL = old })

	path := filepath.Join(t.TempDir(), "steamcmd", "steamcmd.sh")
	c := NewClient(path, Login{}, true)
	require.NoError(t, c.Ensure(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestSafeJoinRejectsTraversal(t *testing.T) {
	_, err := safeJoin("/tmp/x", "../../etc/passwd")
	assert.Error(t, err)
	_, err = safeJoin("/tmp/x", "./")
	assert.NoError(t, err)
}
