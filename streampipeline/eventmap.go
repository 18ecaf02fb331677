package streampipeline

import (
	"encoding/json"

	"github.com/aiproto/runtime/protocol"
)

// Rule is a compiled manifest event_map entry: a predicate and the field
// extraction paths used to build the matching StreamingEvent.
type Rule struct {
	Match  Predicate
	Emit   protocol.StreamEventKind
	Fields map[string]string // output field name -> gjson path
}

// CompileRules compiles a manifest's ordered event_map into Rules.
func CompileRules(raw []protocol.EventMapRule) []Rule {
	rules := make([]Rule, 0, len(raw))
	for _, r := range raw {
		rules = append(rules, Rule{
			Match:  CompilePredicate(r.Match),
			Emit:   protocol.StreamEventKind(r.Emit),
			Fields: r.Fields,
		})
	}
	return rules
}

// MapFrame walks rules in order and builds the StreamingEvent for the first
// matching rule. ok is false if no rule matched the frame, per spec.md §4.4
// ("If no rule matches, the frame is dropped").
func MapFrame(rules []Rule, frame []byte) (protocol.StreamingEvent, bool) {
	for _, rule := range rules {
		if rule.Match.Match(frame) {
			return buildEvent(rule, frame), true
		}
	}
	return protocol.StreamingEvent{}, false
}

func buildEvent(rule Rule, frame []byte) protocol.StreamingEvent {
	event := protocol.StreamingEvent{Kind: rule.Emit}

	for field, path := range rule.Fields {
		value, ok := Extract(frame, path)
		if !ok {
			continue
		}
		switch field {
		case "model":
			event.Model = value.String()
		case "content":
			event.Content = value.String()
		case "index":
			event.ToolCallIndex = int(value.Int())
		case "id":
			event.ToolCallID = value.String()
		case "name":
			event.ToolCallName = value.String()
		case "arguments_fragment":
			event.ArgumentsFragment = value.String()
		case "arguments":
			event.Arguments = json.RawMessage(value.Raw)
		case "usage":
			var usage map[string]interface{}
			if err := json.Unmarshal([]byte(value.Raw), &usage); err == nil {
				event.Usage = usage
			}
		case "finish_reason":
			event.FinishReason = value.String()
		case "code":
			event.ErrorCode = value.String()
		case "message":
			event.ErrorMessage = value.String()
		}
	}

	return event
}
