package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maruthi2426/merge-bot/internal/auth"
	"github.com/maruthi2426/merge-bot/internal/merge"
)

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	if a == nil {
		a = &app{openStore: openRedisStore}
	}
	var out bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func memApp(store *auth.MemoryStore) *app {
	return &app{
		openStore: func(context.Context, *app) (auth.Store, func() error, error) {
			return store, func() error { return nil }, nil
		},
	}
}

func TestParseOp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want merge.Operation
	}{
		{in: "vv", want: merge.VideoVideo},
		{in: "op_aa", want: merge.AudioAudio},
		{in: " VS ", want: merge.VideoSubtitle},
		{in: "va", want: merge.VideoAudio},
	}
	for _, tt := range tests {
		got, err := parseOp(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}

	_, err := parseOp("xx")
	require.ErrorIs(t, err, merge.ErrUnknownOperation)
}

func TestPlan(t *testing.T) {
	out, err := run(t, nil, "plan", "--op", "va", "--ffmpeg", "ffmpeg", "movie.mp4", "track.m4a")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "ffmpeg -nostdin"), out)
	require.Contains(t, out, "-i movie.mp4 -i track.m4a")
	require.Contains(t, out, "-shortest")

	_, err = run(t, nil, "plan", "--op", "va", "only.mp4")
	require.ErrorIs(t, err, merge.ErrInsufficientFiles)

	_, err = run(t, nil, "plan", "a.mp4")
	require.Error(t, err, "--op is required")
}

func TestMergeLocal(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "fake-ffmpeg")
	require.NoError(t, os.WriteFile(fake, []byte("#!"+sh+"\nprintf merged-output\n"), 0o755))

	outPath := filepath.Join(dir, "out.mkv")
	out, err := run(t, nil, "merge", "--op", "aa", "--ffmpeg", fake, "-o", outPath, "a.mp3", "b.mp3")
	require.NoError(t, err)
	require.Contains(t, out, "wrote 13 bytes")

	b, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "merged-output", string(b))
}

func TestMergeLocalFailureRemovesOutput(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "fake-ffmpeg")
	require.NoError(t, os.WriteFile(fake, []byte("#!"+sh+"\nprintf partial\necho 'No such file' >&2\nexit 1\n"), 0o755))

	outPath := filepath.Join(dir, "out.mkv")
	_, err = run(t, nil, "merge", "--op", "vv", "--ffmpeg", fake, "-o", outPath, "a.mp4", "b.mp4")
	require.ErrorIs(t, err, merge.ErrMergeProcessFailed)
	require.ErrorContains(t, err, "No such file")

	_, statErr := os.Stat(outPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestAuthCommands(t *testing.T) {
	store := auth.NewMemoryStore()
	a := memApp(store)

	out, err := run(t, a, "--master-token", "master", "authorise", "42")
	require.NoError(t, err)
	require.Contains(t, out, "Authorised 42 until")

	r, ok, err := store.Get(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "master", r.Token)

	out, err = run(t, a, "status", "42")
	require.NoError(t, err)
	require.Contains(t, out, "42: authorised until")

	out, err = run(t, a, "status", "7")
	require.NoError(t, err)
	require.Contains(t, out, "7: not authorised")

	_, err = run(t, a, "--master-token", "", "authorise", "43")
	require.ErrorIs(t, err, auth.ErrTokenRequired)

	_, err = run(t, a, "authorise", "nope", "tok")
	require.ErrorContains(t, err, "must be an integer")
}

func TestAdminsCommands(t *testing.T) {
	a := memApp(auth.NewMemoryStore())

	out, err := run(t, a, "admins", "list")
	require.NoError(t, err)
	require.Contains(t, out, "No admins set.")

	_, err = run(t, a, "admins", "add", "5")
	require.NoError(t, err)
	_, err = run(t, a, "admins", "add", "9")
	require.NoError(t, err)
	_, err = run(t, a, "admins", "del", "5")
	require.NoError(t, err)

	out, err = run(t, a, "admins", "list")
	require.NoError(t, err)
	require.Equal(t, "9\n", out)
}
