package packs_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"go-autoagent/internal/engine"
	"go-autoagent/internal/pack"
	"go-autoagent/internal/packs"
	"go-autoagent/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoke(t *testing.T, r *pack.Registry, name, dir string, args map[string]any) (pack.Output, error) {
	t.Helper()
	p, err := r.ResolveEnabled(name)
	require.NoError(t, err)
	require.NoError(t, p.Descriptor().InputSchema.Validate(args))
	return p.Invoke(context.Background(), pack.Invocation{
		TaskID:    "task",
		Workspace: workspace.Handle{Path: dir},
		Args:      args,
	})
}

func newRegistry(t *testing.T, cfg packs.Config) *pack.Registry {
	t.Helper()
	if cfg.Processes == nil {
		cfg.Processes = packs.NewProcesses()
		t.Cleanup(cfg.Processes.Close)
	}
	r, err := packs.NewRegistry(cfg)
	require.NoError(t, err)
	return r
}

func names(descs []pack.Descriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Name)
	}
	return out
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, packs.Config{AutoInstall: true})
	assert.Equal(t, []string{
		packs.ExecuteCommandPack,
		packs.ExecuteCommandInBackgroundPack,
		engine.ExitPack,
		packs.GetMoreToolsPack,
		packs.GetProcessStatusPack,
		packs.WebsiteTextPack,
		packs.OSInfoPack,
		packs.ReadFilePack,
		packs.WriteFilePack,
	}, names(r.List()))
	assert.False(t, r.Has(packs.ListFilesPack))

	web := r.List("web")
	require.Len(t, web, 1)
	assert.True(t, web[0].ReadOnly)
}

func TestNewRegistry_Restrictions(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, packs.Config{RestrictCodeExecution: true})
	listed := names(r.List())
	for _, name := range []string{packs.ExecuteCommandPack, packs.ExecuteCommandInBackgroundPack, packs.GetProcessStatusPack, packs.GetMoreToolsPack} {
		assert.NotContains(t, listed, name)
		_, err := r.ResolveEnabled(name)
		assert.ErrorIs(t, err, pack.ErrPackDisabled)
	}
	assert.Contains(t, listed, packs.OSInfoPack)
}

func TestOSInfo(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, packs.Config{})

	out, err := invoke(t, r, packs.OSInfoPack, t.TempDir(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "OS: ")
	assert.NotEmpty(t, out.Data["os"])
}

func TestExitIsNeverInvoked(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, packs.Config{})

	_, err := invoke(t, r, engine.ExitPack, t.TempDir(), map[string]any{"success": true, "conclusion": "done"})
	var perr *pack.Error
	assert.ErrorAs(t, err, &perr)
}

func TestFiles(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, packs.Config{})
	dir := t.TempDir()

	out, err := invoke(t, r, packs.WriteFilePack, dir, map[string]any{"filename": "notes/today.txt", "text_content": "hello"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "5 bytes")

	content, err := os.ReadFile(filepath.Join(dir, "notes", "today.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	out, err = invoke(t, r, packs.ReadFilePack, dir, map[string]any{"filename": "notes/today.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)

	_, err = invoke(t, r, packs.ReadFilePack, dir, map[string]any{"filename": "missing.txt"})
	assert.ErrorContains(t, err, "does not exist")

	_, err = invoke(t, r, packs.WriteFilePack, dir, map[string]any{"filename": "../escape.txt", "text_content": "x"})
	assert.ErrorIs(t, err, workspace.ErrOutsideWorkspace)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.txt"))
}

func TestReadFile_Truncates(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, packs.Config{OutputLimit: 4})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "long.txt"), []byte("abcdefgh"), 0o644))

	out, err := invoke(t, r, packs.ReadFilePack, dir, map[string]any{"filename": "long.txt"})
	require.NoError(t, err)
	assert.Equal(t, "abcd\n...(truncated)", out.Text)
	assert.Equal(t, 8, out.Data["bytes"])
}

func TestReadFile_TruncatesOnCharacterBoundary(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, packs.Config{OutputLimit: 2})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accent.txt"), []byte("héllo"), 0o644))

	out, err := invoke(t, r, packs.ReadFilePack, dir, map[string]any{"filename": "accent.txt"})
	require.NoError(t, err)
	assert.Equal(t, "h\n...(truncated)", out.Text)
	assert.True(t, utf8.ValidString(out.Text))
}

func TestExecuteCommand(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, packs.Config{})
	dir := t.TempDir()

	out, err := invoke(t, r, packs.ExecuteCommandPack, dir, map[string]any{"command": "echo hello > out.txt && cat out.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Text)
	assert.Equal(t, 0, out.Data["exit_code"])
	assert.FileExists(t, filepath.Join(dir, "out.txt"))

	_, err = invoke(t, r, packs.ExecuteCommandPack, dir, map[string]any{"command": "echo nope; exit 3"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "nope")
	assert.ErrorContains(t, err, "exit code=[3]")
}

func TestBackgroundCommand(t *testing.T) {
	t.Parallel()
	procs := packs.NewProcesses()
	t.Cleanup(procs.Close)
	r := newRegistry(t, packs.Config{Processes: procs})
	dir := t.TempDir()

	out, err := invoke(t, r, packs.ExecuteCommandInBackgroundPack, dir, map[string]any{"command": "echo started; sleep 0.1; echo finished"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Handle)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := procs.Wait(ctx, out.Handle)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, 0, status.ExitCode)

	out, err = invoke(t, r, packs.GetProcessStatusPack, dir, map[string]any{"handle": out.Handle})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "exited with code 0")
	assert.Contains(t, out.Text, "started\nfinished")

	_, err = invoke(t, r, packs.GetProcessStatusPack, dir, map[string]any{"handle": "nope"})
	assert.ErrorIs(t, err, packs.ErrUnknownProcess)
}

const page = `<html>
<head><title>Bees</title><script>evil()</script><style>p { color: red }</style></head>
<body>
<nav>Home | About</nav>
<article>
<h1>All about bees</h1>
<p>Honey bees live in colonies with a single queen and thousands of workers that forage for nectar.</p>
<p>A colony can produce more honey than it needs, which is why beekeepers can harvest the surplus every summer.</p>
</article>
</body>
</html>`

func webServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebsiteText(t *testing.T) {
	t.Parallel()
	srv := webServer(t)
	r := newRegistry(t, packs.Config{HTTPClient: srv.Client()})

	out, err := invoke(t, r, packs.WebsiteTextPack, t.TempDir(), map[string]any{"url": srv.URL + "/bees"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Honey bees live in colonies")
	assert.NotContains(t, out.Text, "evil()")
	assert.Equal(t, srv.URL+"/bees", out.Data["url"])

	_, err = invoke(t, r, packs.WebsiteTextPack, t.TempDir(), map[string]any{"url": srv.URL + "/missing"})
	assert.ErrorContains(t, err, "404")

	_, err = invoke(t, r, packs.WebsiteTextPack, t.TempDir(), map[string]any{"url": "ftp://example.com"})
	assert.ErrorContains(t, err, "absolute http")
}

func TestGetMoreTools(t *testing.T) {
	t.Parallel()
	srv := webServer(t)
	r := newRegistry(t, packs.Config{AutoInstall: true, HTTPClient: srv.Client()})
	dir := t.TempDir()

	out, err := invoke(t, r, packs.GetMoreToolsPack, dir, map[string]any{"desired_functionality": "I need the raw HTML of a page"})
	require.NoError(t, err)
	assert.Equal(t, []string{packs.HTMLContentPack}, out.Data["installed"])
	require.True(t, r.Has(packs.HTMLContentPack))

	out, err = invoke(t, r, packs.HTMLContentPack, dir, map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "<article>")
	assert.NotContains(t, out.Text, "evil()")
	assert.Equal(t, "Bees", out.Data["title"])

	out, err = invoke(t, r, packs.GetMoreToolsPack, dir, map[string]any{"desired_functionality": "raw html"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "No additional functions")

	out, err = invoke(t, r, packs.GetMoreToolsPack, dir, map[string]any{"desired_functionality": "list files in a directory"})
	require.NoError(t, err)
	assert.Equal(t, []string{packs.ListFilesPack}, out.Data["installed"])

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), nil, 0o644))
	out, err = invoke(t, r, packs.ListFilesPack, dir, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "a/b.txt\nc.txt", out.Text)
}
