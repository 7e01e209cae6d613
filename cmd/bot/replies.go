package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maruthi2426/merge-bot/internal/ffmpeg"
	"github.com/maruthi2426/merge-bot/internal/merge"
	"github.com/maruthi2426/merge-bot/internal/session"
)

const helpText = "Supported merges: Video+Video, Audio+Audio, Video+Subtitle, Video+Audio.\n" +
	"/start to choose an operation, send the files in order, then /done.\n" +
	"/cancel drops the current session.\n" +
	"Use /authorise <telegram_id> <gplinks_token> to enable 12h downloads."

const notAuthorisedText = "Not authorised. Use /authorise <telegram_id> <gplinks_token>."

// sessionReply maps a session error to the message the user sees.
// op is the operation the user had chosen, if any.
func sessionReply(op merge.Operation, err error) string {
	switch {
	case errors.Is(err, merge.ErrNoOperationSelected), errors.Is(err, merge.ErrUnknownOperation):
		return "Use /start to choose an operation first."
	case errors.Is(err, merge.ErrInsufficientFiles):
		if op.ExactPair() {
			return "Send exactly TWO files, then /done."
		}
		return "Send at least TWO files, then /done."
	case errors.Is(err, merge.ErrMergeInProgress):
		return "A merge is already running. Please wait for it to finish."
	case errors.Is(err, merge.ErrSessionReset):
		return "Your session changed while the file was uploading. Please send it again."
	}
	return "Something went wrong. Please try again."
}

// failureText explains a failed merge. kept reports whether the collected
// files are still in the session.
func failureText(err error, kept bool) string {
	var msg string
	var pe *ffmpeg.ProcessError
	switch {
	case errors.Is(err, merge.ErrNotAuthorized):
		msg = notAuthorisedText
	case errors.As(err, &pe):
		detail := strings.TrimSpace(pe.Stderr)
		if detail == "" && pe.Err != nil {
			detail = pe.Err.Error()
		}
		msg = "FFmpeg failed: " + detail
	case errors.Is(err, merge.ErrUploadFailed):
		msg = "Upload of the merged file failed. Please try again."
	default:
		msg = "Merge failed: " + err.Error()
	}
	if kept {
		msg += "\nYour files are kept: send /done to retry or /cancel to start over."
	}
	return msg
}

func adminsText(ids []int64) string {
	if len(ids) == 0 {
		return "No admins set."
	}
	lines := make([]string, len(ids))
	for i, id := range ids {
		lines[i] = strconv.FormatInt(id, 10)
	}
	return "Admins:\n" + strings.Join(lines, "\n")
}

func parseUserID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// formatTTL renders whole hours as "12h" and anything else as a duration.
func formatTTL(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	return d.String()
}

func fileKeys(files []session.File) []string {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		if f.Key != "" {
			keys = append(keys, f.Key)
		}
	}
	return keys
}
