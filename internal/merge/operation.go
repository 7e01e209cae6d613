// Package merge holds the domain vocabulary shared by the session machine,
// the merge process builder and the pipeline.
package merge

import (
	"fmt"
	"strings"
)

// Operation is one of the four supported merge kinds.
type Operation int

const (
	OpUnset Operation = iota
	VideoVideo
	AudioAudio
	VideoSubtitle
	VideoAudio
)

// Operations lists the selectable operations in menu order.
var Operations = []Operation{VideoVideo, AudioAudio, VideoSubtitle, VideoAudio}

// ParseOperation maps a menu tag (op_vv, op_aa, op_vs, op_va) to an Operation.
func ParseOperation(tag string) (Operation, error) {
	switch strings.TrimSpace(tag) {
	case "op_vv":
		return VideoVideo, nil
	case "op_aa":
		return AudioAudio, nil
	case "op_vs":
		return VideoSubtitle, nil
	case "op_va":
		return VideoAudio, nil
	}
	return OpUnset, fmt.Errorf("%w: %q", ErrUnknownOperation, tag)
}

// Tag returns the menu tag for the operation.
func (o Operation) Tag() string {
	switch o {
	case VideoVideo:
		return "op_vv"
	case AudioAudio:
		return "op_aa"
	case VideoSubtitle:
		return "op_vs"
	case VideoAudio:
		return "op_va"
	}
	return ""
}

func (o Operation) String() string {
	switch o {
	case VideoVideo:
		return "video+video"
	case AudioAudio:
		return "audio+audio"
	case VideoSubtitle:
		return "video+subtitle"
	case VideoAudio:
		return "video+audio"
	}
	return "unset"
}

// Label is the button text shown in the operation menu.
func (o Operation) Label() string {
	switch o {
	case VideoVideo:
		return "🎬 Video + Video"
	case AudioAudio:
		return "🎵 Audio + Audio"
	case VideoSubtitle:
		return "🎞️ Video + Subtitle"
	case VideoAudio:
		return "🎧 Video + Audio"
	}
	return ""
}

// Prompt tells the user what to send after picking the operation.
func (o Operation) Prompt() string {
	switch o {
	case VideoVideo:
		return "Send 2+ videos in order. Then /done"
	case AudioAudio:
		return "Send 2+ audio files. Then /done"
	case VideoSubtitle:
		return "Send a video and a subtitle file (.srt/.ass/.vtt). Then /done"
	case VideoAudio:
		return "Send a video and an audio file. Then /done"
	}
	return "Send files, then /done"
}

// Valid reports whether o is one of the selectable operations.
func (o Operation) Valid() bool {
	return o >= VideoVideo && o <= VideoAudio
}

// ExactPair reports whether the operation takes exactly two inputs.
func (o Operation) ExactPair() bool {
	return o == VideoSubtitle || o == VideoAudio
}

// ValidateCount checks that n inputs satisfy the operation.
// Concatenations need at least two inputs, pair operations exactly two.
func (o Operation) ValidateCount(n int) error {
	switch o {
	case VideoVideo, AudioAudio:
		if n < 2 {
			return fmt.Errorf("%w: %s needs at least 2 files, have %d", ErrInsufficientFiles, o, n)
		}
		return nil
	case VideoSubtitle, VideoAudio:
		if n != 2 {
			return fmt.Errorf("%w: %s needs exactly 2 files, have %d", ErrInsufficientFiles, o, n)
		}
		return nil
	case OpUnset:
		return ErrNoOperationSelected
	}
	return fmt.Errorf("%w: %d", ErrUnknownOperation, int(o))
}
