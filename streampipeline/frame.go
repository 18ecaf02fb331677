// Package streampipeline implements the three-stage streaming transducer:
// byte stream -> frame stream -> JSON frame stream -> typed StreamingEvent
// stream. Frame extraction is grounded on the teacher's
// internal/utils.SSEScanner, generalized from an OpenAI-only scanner into one
// selectable by manifest-declared decoder format.
package streampipeline

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 1 * 1024 * 1024

// Frame is one decoded unit of the wire stream: an SSE event's joined data
// lines, or one NDJSON/JSONL line.
type Frame struct {
	Data string
	Done bool // true when the frame was the format's terminating sentinel
}

// FrameExtractor yields Frames from a byte stream according to one decoder
// format.
type FrameExtractor struct {
	scanner *bufio.Scanner
	format  DecoderFormat
}

// DecoderFormat mirrors protocol.StreamingDecoderFormat without importing
// protocol, keeping this package usable against any format-typed string.
type DecoderFormat string

const (
	FormatSSE    DecoderFormat = "sse"
	FormatNDJSON DecoderFormat = "ndjson"
	FormatJSONL  DecoderFormat = "jsonl"
)

// NewFrameExtractor builds an extractor for format over r.
func NewFrameExtractor(r io.Reader, format DecoderFormat) *FrameExtractor {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &FrameExtractor{scanner: scanner, format: format}
}

// Next returns the next Frame, io.EOF when the stream is exhausted, or a
// scanner error. Frame payloads are not checked for valid JSON here; that
// happens in the caller.
func (f *FrameExtractor) Next() (Frame, error) {
	switch f.format {
	case FormatNDJSON, FormatJSONL:
		return f.nextNDJSON()
	default:
		return f.nextSSE()
	}
}

func (f *FrameExtractor) nextSSE() (Frame, error) {
	var dataLines []string

	for f.scanner.Scan() {
		line := f.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				return frameFromSSELines(dataLines)
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return Frame{Done: true}, nil
			}
			dataLines = append(dataLines, data)
			continue
		}
		// event:, id:, retry: and other SSE fields are not consulted by the
		// decoder; only the data payload feeds stage B.
	}

	if err := f.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if len(dataLines) > 0 {
		return frameFromSSELines(dataLines)
	}
	return Frame{}, io.EOF
}

func frameFromSSELines(lines []string) (Frame, error) {
	return Frame{Data: strings.Join(lines, "\n")}, nil
}

func (f *FrameExtractor) nextNDJSON() (Frame, error) {
	for f.scanner.Scan() {
		line := strings.TrimSpace(f.scanner.Text())
		if line == "" {
			continue
		}
		if line == "[DONE]" {
			return Frame{Done: true}, nil
		}
		return Frame{Data: line}, nil
	}
	if err := f.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
