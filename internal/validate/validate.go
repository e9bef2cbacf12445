// Package validate checks inbound broker payloads before they reach the
// coordinator. Presence announcements are validated against a JSON Schema;
// anything that fails is dropped with a diagnostic, never fatal.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/carnegiemellonracing/PiDAQ/internal/model"
)

const statusSchema = `{
	"type": "object",
	"required": ["id", "status"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"status": {"enum": ["online", "offline"]}
	}
}`

var compiledStatus = jsonschema.MustCompileString("status.json", statusSchema)

// ParseStatus decodes and validates a presence announcement.
func ParseStatus(raw []byte) (model.DeviceStatus, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.DeviceStatus{}, fmt.Errorf("status payload is not JSON: %w", err)
	}
	if err := compiledStatus.Validate(doc); err != nil {
		return model.DeviceStatus{}, fmt.Errorf("status payload rejected by schema: %w", err)
	}
	var st model.DeviceStatus
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&st); err != nil {
		return model.DeviceStatus{}, err
	}
	return st, nil
}

// Truncate caps a payload sample for log lines.
func Truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
