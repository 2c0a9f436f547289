package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/lotbridge/internal/ir"
)

// marshalObject converts an IRObject to canonical JSON TEXT for storage.
// Stored text is byte-identical to what the content-addressed ids hash.
func marshalObject(what string, obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT into an IRObject. Large
// integers survive via json.Number inside ir.IRObject.UnmarshalJSON.
func unmarshalObject(what, data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return obj, nil
}
