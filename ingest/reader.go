package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cyberres/core"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Format names an input encoding
type Format string

const (
	FormatAuto    Format = "auto"
	FormatCSV     Format = "csv"
	FormatJSONL   Format = "jsonl"
	FormatMsgpack Format = "msgpack"
)

// maxLineSize bounds a single JSONL line
const maxLineSize = 1024 * 1024

// ParseFormat validates a format name. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV, FormatJSONL, FormatMsgpack:
		return f, nil
	case "ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: unknown input format %q", core.ErrInvalidConfig, s)
	}
}

// Resolve picks the concrete format for path. Auto is decided by extension;
// anything unrecognised is read as CSV.
func Resolve(path string, f Format) Format {
	if f != FormatAuto && f != "" {
		return f
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	case ".msgpack", ".mpk":
		return FormatMsgpack
	default:
		return FormatCSV
	}
}

// Batch is the outcome of reading one whole input
type Batch struct {
	Format  Format
	Events  []*core.Event
	Rejects RejectCounts
	Late    int
}

// Rejected returns the number of skipped records
func (b *Batch) Rejected() int {
	return b.Rejects.Total()
}

// LoadFile reads every event from path
func LoadFile(path string, format Format, logger *zap.SugaredLogger, opts ...DecoderOption) (*Batch, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	format = Resolve(path, format)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	dec := NewDecoder(format, logger, opts...)
	events, err := Read(f, dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s input %s: %w", format, path, err)
	}

	batch := &Batch{
		Format:  format,
		Events:  events,
		Rejects: dec.Rejects(),
		Late:    dec.Late(),
	}
	logger.Infow("Loaded events",
		"path", path,
		"format", format,
		"events", len(events),
		"rejected", batch.Rejected(),
		"late", batch.Late)
	return batch, nil
}

// Read decodes a whole stream in the decoder's format
func Read(r io.Reader, dec *Decoder) ([]*core.Event, error) {
	switch dec.format {
	case FormatJSONL:
		return readJSONL(r, dec)
	case FormatMsgpack:
		events, _, err := readMsgpack(r, dec, false)
		return events, err
	default:
		events, _, err := readCSV(r, nil, dec)
		return events, err
	}
}

// readCSV decodes RFC 4180 records. When header is nil the first record is
// the header. The header in effect is returned so a follower can reuse it.
// Records with the wrong column count are rejected, not fatal. A record the
// csv reader cannot parse, such as an unterminated quote, is rejected and
// reading resumes on the line after it starts, so the rows it would swallow
// are still decoded.
func readCSV(r io.Reader, header []string, dec *Decoder) ([]*core.Event, []string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, header, fmt.Errorf("failed to read csv input: %w", err)
	}
	pos := 0
	cr := newCSVReader(data)

	if header == nil {
		first, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read header: %w", err)
		}
		header, err = normalizeHeader(first)
		if err != nil {
			return nil, nil, err
		}
	}

	var events []*core.Event
	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		n++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return events, header, err
			}
			dec.reject(ReasonBadRecord, n, err)
			pos = skipLines(data, pos, perr.StartLine)
			cr = newCSVReader(data[pos:])
			continue
		}
		if len(rec) != len(header) {
			dec.reject(ReasonColumnCount, n, fmt.Errorf("%w: %d columns, want %d", core.ErrMalformedEvent, len(rec), len(header)))
			continue
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			fields[name] = rec[i]
		}
		if e, ok := dec.decode(fields, n); ok {
			events = append(events, e)
		}
	}
	return events, header, nil
}

func newCSVReader(data []byte) *csv.Reader {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}

// skipLines returns the offset just past the first lines lines of data[pos:]
func skipLines(data []byte, pos, lines int) int {
	for ; lines > 0 && pos < len(data); lines-- {
		i := bytes.IndexByte(data[pos:], '\n')
		if i < 0 {
			return len(data)
		}
		pos += i + 1
	}
	return pos
}

func normalizeHeader(rec []string) ([]string, error) {
	header := make([]string, len(rec))
	seen := make(map[string]bool, len(rec))
	for i, col := range rec {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		header[i] = col
		seen[col] = true
	}
	var missing []string
	for _, required := range []string{"timestamp", "source", "component", "severity"} {
		if !seen[required] {
			missing = append(missing, required)
		}
	}
	if !seen["event"] && !seen["event_type"] {
		missing = append(missing, "event")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: csv header is missing columns %s", core.ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return header, nil
}

// readJSONL decodes one object per line. A line longer than maxLineSize is
// drained and rejected so the rest of the stream is still read.
func readJSONL(r io.Reader, dec *Decoder) ([]*core.Event, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var events []*core.Event
	n := 0
	for {
		line, tooLong, err := readLine(br)
		if len(line) > 0 || tooLong {
			n++
			if tooLong {
				dec.reject(ReasonBadRecord, n, fmt.Errorf("%w: line exceeds %d bytes", core.ErrMalformedEvent, maxLineSize))
			} else if e, ok := decodeJSONLine(line, n, dec); ok {
				events = append(events, e)
			}
		}
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
	}
}

// readLine returns the next line including its newline. Past maxLineSize the
// content is discarded and tooLong is set, but the line is still consumed.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineSize+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

func decodeJSONLine(line []byte, n int, dec *Decoder) (*core.Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}
	var obj map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(line))
	d.UseNumber()
	if err := d.Decode(&obj); err != nil {
		dec.reject(ReasonBadRecord, n, err)
		return nil, false
	}
	fields, err := stringFields(obj)
	if err != nil {
		dec.reject(ReasonInvalidPayload, n, err)
		return nil, false
	}
	return dec.decode(fields, n)
}

// readMsgpack decodes a stream of MessagePack maps. With partial set, a
// truncated trailing object ends the read without error and the returned
// count is the number of bytes fully consumed.
func readMsgpack(r io.Reader, dec *Decoder, partial bool) ([]*core.Event, int64, error) {
	cr := &countingReader{r: bufio.NewReader(r)}
	md := msgpack.NewDecoder(cr)

	var (
		events   []*core.Event
		consumed int64
	)
	n := 0
	for {
		var obj map[string]interface{}
		err := md.Decode(&obj)
		if errors.Is(err, io.EOF) && cr.n == consumed {
			return events, consumed, nil
		}
		if err != nil {
			if partial && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
				return events, consumed, nil
			}
			n++
			dec.reject(ReasonBadRecord, n, err)
			return events, consumed, nil
		}
		consumed = cr.n
		n++

		fields, err := stringFields(obj)
		if err != nil {
			dec.reject(ReasonInvalidPayload, n, err)
			continue
		}
		if e, ok := dec.decode(fields, n); ok {
			events = append(events, e)
		}
	}
}

// countingReader tracks bytes handed to the msgpack decoder. It implements
// io.ByteScanner so the decoder does not add its own buffering.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

func (c *countingReader) UnreadByte() error {
	err := c.r.UnreadByte()
	if err == nil {
		c.n--
	}
	return err
}

// stringFields flattens a decoded object to the textual field form. Tags may
// be a list or a separated string.
func stringFields(obj map[string]interface{}) (map[string]string, error) {
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		key := strings.ToLower(k)
		if key == "tags" {
			if list, ok := v.([]interface{}); ok {
				parts := make([]string, 0, len(list))
				for _, item := range list {
					s, err := scalarString(item)
					if err != nil {
						return nil, fmt.Errorf("tags: %w", err)
					}
					parts = append(parts, s)
				}
				fields[key] = strings.Join(parts, ";")
				continue
			}
		}
		s, err := scalarString(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		fields[key] = s
	}
	return fields, nil
}

func scalarString(v interface{}) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case int8, int16, int32, int64, int, uint8, uint16, uint32, uint64, uint:
		return fmt.Sprintf("%d", x), nil
	default:
		return "", fmt.Errorf("%w: unsupported value of type %T", core.ErrMalformedEvent, v)
	}
}
