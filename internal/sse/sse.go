// ABOUTME: Server-Sent-Events frame reader for streamed chat responses
// ABOUTME: Parses data: lines into frames and decodes {"content": delta} payloads

package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DoneSentinel terminates a chat stream.
const DoneSentinel = "[DONE]"

// maxFrameSize bounds a single line; chat deltas are small.
const maxFrameSize = 1 << 20

// ErrNoContent is returned by Delta for frames that carry no content field.
var ErrNoContent = errors.New("frame has no content")

// Frame is one dispatched event.
type Frame struct {
	Event string
	ID    string
	Data  string
	// Lines holds each data line of the frame in order.
	Lines []string
	// Done is set when a data line is the [DONE] sentinel.
	Done bool
}

// Reader reads frames from an event stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &Reader{scanner: s}
}

// Next returns the next frame that carries data. It returns io.EOF once the
// stream ends; a trailing frame without a terminating blank line is still
// delivered first.
func (r *Reader) Next() (Frame, error) {
	var (
		f       Frame
		data    []string
		hasData bool
	)

	flush := func() (Frame, bool) {
		if !hasData {
			f = Frame{}
			return Frame{}, false
		}
		f.Data = strings.Join(data, "\n")
		f.Lines = data
		for _, line := range data {
			if strings.TrimSpace(line) == DoneSentinel {
				f.Done = true
			}
		}
		return f, true
	}

	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" {
			if out, ok := flush(); ok {
				return out, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			f.Event = value
		case "id":
			f.ID = value
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("reading event stream: %w", err)
	}
	if out, ok := flush(); ok {
		return out, nil
	}
	return Frame{}, io.EOF
}

type deltaPayload struct {
	Content *string `json:"content"`
}

// Delta decodes the content delta carried by a data frame.
func Delta(f Frame) (string, error) {
	return decodeDelta(f.Data)
}

// Deltas decodes every chat frame in f. Each data line is one chat frame, so
// a stream written without blank lines between frames still yields every
// delta. Decoding stops at the [DONE] sentinel and done reports whether it
// was seen. Lines that fail to decode are skipped and reported in err.
func Deltas(f Frame) (deltas []string, done bool, err error) {
	lines := f.Lines
	if len(lines) == 0 {
		lines = []string{f.Data}
	}
	if len(lines) > 1 && !f.Done {
		// One payload spread over several data lines.
		if d, derr := decodeDelta(f.Data); derr == nil {
			return []string{d}, false, nil
		}
	}

	var errs []error
	for _, line := range lines {
		if strings.TrimSpace(line) == DoneSentinel {
			return deltas, true, errors.Join(errs...)
		}
		d, derr := decodeDelta(line)
		if derr != nil {
			errs = append(errs, derr)
			continue
		}
		deltas = append(deltas, d)
	}
	return deltas, false, errors.Join(errs...)
}

func decodeDelta(data string) (string, error) {
	var p deltaPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return "", fmt.Errorf("decoding frame: %w", err)
	}
	if p.Content == nil {
		return "", ErrNoContent
	}
	return *p.Content, nil
}
