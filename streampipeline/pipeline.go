package streampipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/aiproto/runtime/protocol"
)

// Run drives the three-stage transducer over r and returns an iterator of
// StreamingEvent, following the teacher's iter.Seq2[T, error] streaming
// pattern (providers/ai/stream.go's ChatStream). Frames that match no
// event_map rule are skipped with a logged warning; a JSON parse failure
// within an otherwise well-formed frame surfaces as an Error event and the
// stream continues.
func Run(r io.Reader, format DecoderFormat, rules []Rule, logger *slog.Logger) iter.Seq2[protocol.StreamingEvent, error] {
	if logger == nil {
		logger = slog.Default()
	}

	return func(yield func(protocol.StreamingEvent, error) bool) {
		extractor := NewFrameExtractor(r, format)
		accumulator := NewToolCallAccumulator()
		streamEnded := false

		if !yield(protocol.StreamingEvent{Kind: protocol.EventStreamStart}, nil) {
			return
		}

		for {
			frame, err := extractor.Next()
			if err == io.EOF {
				for _, event := range accumulator.Finalize() {
					if !yield(event, nil) {
						return
					}
				}
				if !streamEnded {
					yield(protocol.StreamingEvent{Kind: protocol.EventStreamEnd}, nil)
				}
				return
			}
			if err != nil {
				yield(protocol.StreamingEvent{}, err)
				return
			}
			if frame.Done {
				for _, event := range accumulator.Finalize() {
					if !yield(event, nil) {
						return
					}
				}
				if !streamEnded {
					yield(protocol.StreamingEvent{Kind: protocol.EventStreamEnd}, nil)
				}
				return
			}
			if !json.Valid([]byte(frame.Data)) {
				yield(protocol.StreamingEvent{Kind: protocol.EventError, ErrorCode: "server_error", ErrorMessage: fmt.Sprintf("frame did not parse as JSON: %q", frame.Data)}, nil)
				continue
			}

			event, matched := MapFrame(rules, []byte(frame.Data))
			if !matched {
				logger.Warn("streampipeline: frame matched no event_map rule", "frame", frame.Data)
				continue
			}

			switch event.Kind {
			case protocol.EventPartialToolCallDelta:
				accumulator.Absorb(event)
				continue
			case protocol.EventStreamEnd:
				streamEnded = true
				if IsTerminatingFinishReason(event.FinishReason) {
					for _, finalized := range accumulator.Finalize() {
						if !yield(finalized, nil) {
							return
						}
					}
				}
			}

			if !yield(event, nil) {
				return
			}
		}
	}
}
