package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("S3_BUCKET", "merges")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMINS", "11, 22,,33")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, "merges", cfg.Storage.Bucket)
	require.Equal(t, []int64{11, 22, 33}, cfg.Auth.Admins)
	require.Equal(t, int64(DefaultPartSizeMB)<<20, cfg.PartSize())
	require.Equal(t, DefaultReadChunkKB*1024, cfg.ReadChunk())
	require.Equal(t, 12*time.Hour, cfg.AuthTTL())
	require.Equal(t, DefaultPresignTTL, cfg.Merge.PresignTTL)
	require.Equal(t, DefaultStderrPreview, cfg.Merge.StderrPreview)
}

func TestLoadFileThenEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("PART_SIZE_MB", "32")
	t.Setenv("MERGE_TIMEOUT", "600")
	t.Setenv("PRESIGN_TTL", "90m")

	path := filepath.Join(t.TempDir(), "bot.toml")
	body := `
[telegram]
allowed_chat = -100123
upload_limit_mb = 49

[storage]
bucket = "from-file"
endpoint = "http://minio:9000"
path_style = true
part_size_mb = 8

[merge]
ffmpeg_bin = "/opt/ffmpeg"
queue_depth = 4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, int64(-100123), cfg.Telegram.AllowedChat)
	require.Equal(t, int64(49)<<20, cfg.UploadLimit())
	require.Equal(t, "merges", cfg.Storage.Bucket, "env wins over file")
	require.Equal(t, "http://minio:9000", cfg.Storage.Endpoint)
	require.True(t, cfg.Storage.PathStyle)
	require.Equal(t, 32, cfg.Storage.PartSizeMB)
	require.Equal(t, "/opt/ffmpeg", cfg.Merge.FFmpegBin)
	require.Equal(t, 4, cfg.Merge.QueueDepth)
	require.Equal(t, 10*time.Minute, cfg.Merge.Timeout)
	require.Equal(t, 90*time.Minute, cfg.Merge.PresignTTL)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing token", env: map[string]string{"BOT_TOKEN": "", "S3_BUCKET": "b"}},
		{name: "missing bucket", env: map[string]string{"BOT_TOKEN": "t", "S3_BUCKET": ""}},
		{name: "part too small", env: map[string]string{"BOT_TOKEN": "t", "S3_BUCKET": "b", "PART_SIZE_MB": "1"}},
		{name: "bad endpoint", env: map[string]string{"BOT_TOKEN": "t", "S3_BUCKET": "b", "S3_ENDPOINT": "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "none.toml"))
			require.Error(t, err)
		})
	}
}

func TestLoadBadAdmins(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMINS", "1,abc")

	_, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.ErrorContains(t, err, "ADMINS")
}

func TestLoadBadAllowedChat(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_CHAT", "-100123abc")

	_, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.ErrorContains(t, err, "ALLOWED_CHAT")
}

func TestLoadAllowedChat(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_CHAT", " -1001234567890 ")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	require.Equal(t, int64(-1001234567890), cfg.Telegram.AllowedChat)
}

func TestParseIDs(t *testing.T) {
	t.Parallel()

	ids, err := ParseIDs("")
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = ParseIDs(" 5 ,6")
	require.NoError(t, err)
	require.Equal(t, []int64{5, 6}, ids)

	_, err = ParseIDs("5;6")
	require.Error(t, err)
}
