// Package ffmpeg builds merge invocations and runs them with stdout streamed
// to the caller.
package ffmpeg

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/maruthi2426/merge-bot/internal/merge"
)

// Input is one ordered merge input.
type Input struct {
	URL  string // presigned URL or local path
	Name string // name the user submitted, used for type sniffing
}

// Command is a ready argv.
type Command struct {
	Binary string
	Args   []string
}

// String renders the command with query strings stripped from URLs so
// presigned signatures do not end up in logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Binary)
	for _, a := range c.Args {
		if u, err := url.Parse(a); err == nil && u.Scheme != "" && u.Host != "" && u.RawQuery != "" {
			u.RawQuery = ""
			a = u.String() + "?…"
		}
		if strings.ContainsAny(a, " []") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

var subtitleExts = map[string]bool{".srt": true, ".ass": true, ".vtt": true}

// IsSubtitle reports whether name carries a known subtitle extension.
func IsSubtitle(name string) bool {
	return subtitleExts[strings.ToLower(path.Ext(name))]
}

// SubtitleIndex picks which of two inputs is the subtitle. The second input
// wins when both or neither look like subtitles.
func SubtitleIndex(a, b Input) int {
	if !IsSubtitle(b.Name) && IsSubtitle(a.Name) {
		return 0
	}
	return 1
}

// Builder turns an operation and its inputs into an ffmpeg argv.
type Builder struct {
	Binary    string
	RWTimeout time.Duration // per network input; 0 disables
}

func NewBuilder(binary string, rwTimeout time.Duration) *Builder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Builder{Binary: binary, RWTimeout: rwTimeout}
}

// Build returns the argv for op. The output is always matroska on stdout.
func (b *Builder) Build(op merge.Operation, inputs []Input) (Command, error) {
	if err := op.ValidateCount(len(inputs)); err != nil {
		return Command{}, err
	}

	var body []string
	switch op {
	case merge.AudioAudio:
		body = audioConcat(len(inputs))
	case merge.VideoVideo:
		body = videoConcat(len(inputs))
	case merge.VideoSubtitle:
		if SubtitleIndex(inputs[0], inputs[1]) == 0 {
			inputs = []Input{inputs[1], inputs[0]}
		}
		body = []string{
			"-map", "0:v", "-map", "0:a?", "-map", "1:s:0",
			"-c:v", "copy", "-c:a", "copy", "-c:s", "srt",
		}
	case merge.VideoAudio:
		body = []string{
			"-map", "0:v:0", "-map", "1:a:0",
			"-c:v", "copy", "-c:a", "aac", "-shortest",
		}
	default:
		return Command{}, fmt.Errorf("%w: %d", merge.ErrUnknownOperation, int(op))
	}

	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y"}
	for _, in := range inputs {
		if b.RWTimeout > 0 && isNetwork(in.URL) {
			args = append(args, "-rw_timeout", strconv.FormatInt(b.RWTimeout.Microseconds(), 10))
		}
		args = append(args, "-i", in.URL)
	}
	args = append(args, body...)
	args = append(args, "-f", "matroska", "-")
	return Command{Binary: b.Binary, Args: args}, nil
}

func isNetwork(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func audioConcat(n int) []string {
	var f strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&f, "[%d:a:0]", i)
	}
	fmt.Fprintf(&f, "concat=n=%d:v=0:a=1[a]", n)
	return []string{"-filter_complex", f.String(), "-map", "[a]", "-c:a", "aac"}
}

// videoConcat interleaves each segment's video and audio as the concat
// filter expects.
func videoConcat(n int) []string {
	var f strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&f, "[%d:v:0][%d:a:0]", i, i)
	}
	fmt.Fprintf(&f, "concat=n=%d:v=1:a=1[v][a]", n)
	return []string{
		"-filter_complex", f.String(),
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac",
	}
}
