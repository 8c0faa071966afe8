package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"cyberres/core"

	"go.uber.org/zap"
)

// Update is what one poll of a followed file produced
type Update struct {
	Events []*core.Event
	// Reset is set when the file shrank and was re-read from the start;
	// previously returned events are void
	Reset bool
}

// Tailer follows an append-only file by byte offset. Only complete lines are
// consumed, so a record being written is picked up on a later poll. A CSV
// header is read once and remembered.
type Tailer struct {
	path   string
	format Format
	offset int64
	header []string
	dec    *Decoder
	logger *zap.SugaredLogger
}

// NewTailer creates a follower starting at the beginning of path, so an
// existing file is pre-loaded by the first poll
func NewTailer(path string, format Format, logger *zap.SugaredLogger, opts ...DecoderOption) *Tailer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	format = Resolve(path, format)
	return &Tailer{
		path:   path,
		format: format,
		dec:    NewDecoder(format, logger, opts...),
		logger: logger,
	}
}

// Offset returns the number of bytes consumed so far
func (t *Tailer) Offset() int64 {
	return t.offset
}

// Format returns the resolved input format
func (t *Tailer) Format() Format {
	return t.format
}

// Rejects returns reject counts since the last reset
func (t *Tailer) Rejects() RejectCounts {
	return t.dec.Rejects()
}

// Late returns the number of late events since the last reset
func (t *Tailer) Late() int {
	return t.dec.Late()
}

// Poll reads whatever was appended since the previous call. A missing file
// is not an error; it may not have been created yet.
func (t *Tailer) Poll() (Update, error) {
	var up Update

	info, err := os.Stat(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return up, nil
	}
	if err != nil {
		return up, fmt.Errorf("failed to stat input: %w", err)
	}

	size := info.Size()
	if size < t.offset {
		t.logger.Warnw("Input shrank, re-reading from the start",
			"path", t.path,
			"size", size,
			"offset", t.offset)
		t.offset = 0
		t.header = nil
		t.dec.Reset()
		up.Reset = true
	}
	if size == t.offset {
		return up, nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return up, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return up, fmt.Errorf("failed to seek input: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(f, size-t.offset))
	if err != nil {
		return up, fmt.Errorf("failed to read input: %w", err)
	}

	if t.format == FormatMsgpack {
		events, consumed, err := readMsgpack(bytes.NewReader(data), t.dec, true)
		if err != nil {
			return up, err
		}
		t.offset += consumed
		up.Events = events
		return up, nil
	}

	cut := bytes.LastIndexByte(data, '\n')
	if cut < 0 {
		return up, nil
	}
	chunk := data[:cut+1]

	var events []*core.Event
	switch t.format {
	case FormatJSONL:
		events, err = readJSONL(bytes.NewReader(chunk), t.dec)
	default:
		var header []string
		events, header, err = readCSV(bytes.NewReader(chunk), t.header, t.dec)
		if err == nil {
			t.header = header
		}
	}
	if err != nil {
		return up, err
	}

	t.offset += int64(len(chunk))
	up.Events = events
	return up, nil
}
