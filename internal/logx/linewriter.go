package logx

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
)

// LineWriter turns stream output into per-line zerolog events at a given level.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// NewLineWriter logs through base with the extra string fields.
func NewLineWriter(base zerolog.Logger, fields map[string]string, level zerolog.Level) *LineWriter {
	w := base.With()
	for k, v := range fields {
		w = w.Str(k, v)
	}
	return &LineWriter{logger: w.Logger(), level: level}
}

// Pipe logs every line of r until EOF. Lines longer than the read buffer
// are split rather than dropped.
func (lw *LineWriter) Pipe(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadSlice('\n')
		if len(line) > 0 {
			lw.emit(string(trimEOL(line)))
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return
		}
	}
}

func (lw *LineWriter) emit(msg string) {
	if msg == "" {
		return
	}
	switch lw.level {
	case zerolog.DebugLevel:
		lw.logger.Debug().Msg(msg)
	case zerolog.WarnLevel:
		lw.logger.Warn().Msg(msg)
	case zerolog.ErrorLevel:
		lw.logger.Error().Msg(msg)
	default:
		lw.logger.Info().Msg(msg)
	}
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
