package protocol

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlOrderedPair is one key/value pair from an order-preserving YAML mapping decode.
type yamlOrderedPair struct {
	Key   string
	Value string
}

// yamlOrderedStringMap decodes a YAML mapping of string->string while
// preserving declaration order, which plain map[string]string cannot do.
// ParameterMapping needs this because spec.md requires the compiled emitter
// tree to walk canonical parameters in the order they were declared.
type yamlOrderedStringMap []yamlOrderedPair

// UnmarshalYAML walks the raw mapping node's Content slice, which interleaves
// key and value nodes in document order.
func (m *yamlOrderedStringMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a YAML mapping, got kind %d", value.Kind)
	}

	result := make(yamlOrderedStringMap, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valueNode := value.Content[i+1]

		var key, val string
		if err := keyNode.Decode(&key); err != nil {
			return fmt.Errorf("decoding mapping key: %w", err)
		}
		if err := valueNode.Decode(&val); err != nil {
			return fmt.Errorf("decoding mapping value for key %q: %w", key, err)
		}
		result = append(result, yamlOrderedPair{Key: key, Value: val})
	}

	*m = result
	return nil
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
