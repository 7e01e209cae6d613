package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maruthi2426/merge-bot/internal/merge"
)

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}

func inputsOf(args []string) []string {
	var out []string
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-i" {
			out = append(out, args[i+1])
		}
	}
	return out
}

func TestBuildCommonFlags(t *testing.T) {
	t.Parallel()
	b := NewBuilder("", 30*time.Second)

	for _, op := range merge.Operations {
		in := []Input{
			{URL: "https://s3.test/a?sig=1", Name: "a.mp4"},
			{URL: "https://s3.test/b?sig=2", Name: "b.m4a"},
		}
		cmd, err := b.Build(op, in)
		require.NoError(t, err, op.String())
		require.Equal(t, "ffmpeg", cmd.Binary)
		require.Equal(t, []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y"}, cmd.Args[:5])
		require.Equal(t, []string{"-f", "matroska", "-"}, cmd.Args[len(cmd.Args)-3:])
		// each network input is preceded by its read/write timeout
		for i, a := range cmd.Args {
			if a == "-i" {
				require.Equal(t, "-rw_timeout", cmd.Args[i-2])
				require.Equal(t, "30000000", cmd.Args[i-1])
			}
		}
	}
}

func TestBuildLocalInputsSkipTimeout(t *testing.T) {
	t.Parallel()
	b := NewBuilder("ffmpeg", time.Second)

	cmd, err := b.Build(merge.AudioAudio, []Input{{URL: "/tmp/a.mp3"}, {URL: "/tmp/b.mp3"}})
	require.NoError(t, err)
	require.Equal(t, -1, indexOf(cmd.Args, "-rw_timeout"))
}

func TestBuildVideoVideo(t *testing.T) {
	t.Parallel()
	b := NewBuilder("ffmpeg", 0)

	cmd, err := b.Build(merge.VideoVideo, []Input{{URL: "u0"}, {URL: "u1"}, {URL: "u2"}})
	require.NoError(t, err)
	require.Equal(t, []string{"u0", "u1", "u2"}, inputsOf(cmd.Args))
	fc := cmd.Args[indexOf(cmd.Args, "-filter_complex")+1]
	require.Equal(t, "[0:v:0][0:a:0][1:v:0][1:a:0][2:v:0][2:a:0]concat=n=3:v=1:a=1[v][a]", fc)
	require.Contains(t, strings.Join(cmd.Args, " "), "-map [v] -map [a] -c:v libx264")
}

func TestBuildAudioAudio(t *testing.T) {
	t.Parallel()
	b := NewBuilder("ffmpeg", 0)

	cmd, err := b.Build(merge.AudioAudio, []Input{{URL: "a"}, {URL: "b"}})
	require.NoError(t, err)
	fc := cmd.Args[indexOf(cmd.Args, "-filter_complex")+1]
	require.Equal(t, "[0:a:0][1:a:0]concat=n=2:v=0:a=1[a]", fc)
	require.Equal(t, "aac", cmd.Args[indexOf(cmd.Args, "-c:a")+1])
}

func TestBuildVideoAudio(t *testing.T) {
	t.Parallel()
	b := NewBuilder("ffmpeg", 0)

	cmd, err := b.Build(merge.VideoAudio, []Input{{URL: "v"}, {URL: "a"}})
	require.NoError(t, err)
	require.Equal(t, []string{"v", "a"}, inputsOf(cmd.Args))
	joined := strings.Join(cmd.Args, " ")
	require.Contains(t, joined, "-map 0:v:0 -map 1:a:0 -c:v copy -c:a aac -shortest")
}

func TestBuildVideoSubtitleOrder(t *testing.T) {
	t.Parallel()
	b := NewBuilder("ffmpeg", 0)

	tests := []struct {
		name   string
		inputs []Input
		want   []string // video first, subtitle second
	}{
		{
			name:   "subtitle second",
			inputs: []Input{{URL: "v", Name: "movie.mkv"}, {URL: "s", Name: "movie.srt"}},
			want:   []string{"v", "s"},
		},
		{
			name:   "subtitle first",
			inputs: []Input{{URL: "s", Name: "movie.ASS"}, {URL: "v", Name: "movie.mp4"}},
			want:   []string{"v", "s"},
		},
		{
			name:   "neither matches",
			inputs: []Input{{URL: "x", Name: "a.bin"}, {URL: "y", Name: "b.bin"}},
			want:   []string{"x", "y"},
		},
		{
			name:   "both match",
			inputs: []Input{{URL: "x", Name: "a.vtt"}, {URL: "y", Name: "b.srt"}},
			want:   []string{"x", "y"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, err := b.Build(merge.VideoSubtitle, tt.inputs)
			require.NoError(t, err)
			require.Equal(t, tt.want, inputsOf(cmd.Args))
			require.Contains(t, strings.Join(cmd.Args, " "), "-map 1:s:0")
		})
	}
}

func TestSubtitleIndexIndependentOfPosition(t *testing.T) {
	t.Parallel()
	v := Input{Name: "clip.mp4"}
	s := Input{Name: "clip.srt"}
	require.Equal(t, 1, SubtitleIndex(v, s))
	require.Equal(t, 0, SubtitleIndex(s, v))
}

func TestBuildRejectsBadCounts(t *testing.T) {
	t.Parallel()
	b := NewBuilder("ffmpeg", 0)

	_, err := b.Build(merge.VideoAudio, []Input{{URL: "a"}, {URL: "b"}, {URL: "c"}})
	require.ErrorIs(t, err, merge.ErrInsufficientFiles)
	_, err = b.Build(merge.VideoVideo, []Input{{URL: "a"}})
	require.ErrorIs(t, err, merge.ErrInsufficientFiles)
	_, err = b.Build(merge.OpUnset, []Input{{URL: "a"}, {URL: "b"}})
	require.ErrorIs(t, err, merge.ErrNoOperationSelected)
}

func TestCommandStringRedactsQuery(t *testing.T) {
	t.Parallel()
	c := Command{Binary: "ffmpeg", Args: []string{"-i", "https://s3.test/k.mp4?X-Amz-Signature=secret", "-f", "matroska", "-"}}
	s := c.String()
	require.NotContains(t, s, "secret")
	require.Contains(t, s, "https://s3.test/k.mp4")
}
