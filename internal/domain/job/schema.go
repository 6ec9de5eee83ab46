package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Payload and result shapes are fixed per kind. Schemas are compiled
// once at init; validation never mutates caller state.

const gltfConvertPayloadSchema = `{
	"type": "object",
	"properties": {
		"format": {"type": "string", "enum": ["glb", "gltf"]},
		"includeTextures": {"type": "boolean"},
		"scale": {"type": "number", "exclusiveMinimum": 0}
	},
	"additionalProperties": false
}`

const texturePreflightPayloadSchema = `{
	"type": "object",
	"properties": {
		"textureIds": {"type": "array", "items": {"type": "string"}},
		"maxDimension": {"type": "integer", "minimum": 1}
	},
	"additionalProperties": false
}`

const gltfConvertResultSchema = `{
	"type": "object",
	"properties": {
		"output": {
			"type": "object",
			"properties": {
				"exportPath": {"type": "string", "minLength": 1},
				"sizeBytes": {"type": "integer", "minimum": 0}
			},
			"required": ["exportPath"],
			"additionalProperties": false
		},
		"warnings": {"type": "array", "items": {"type": "string"}},
		"hierarchy": {"type": "array", "items": {"$ref": "#/$defs/node"}}
	},
	"additionalProperties": false,
	"$defs": {
		"node": {
			"type": "object",
			"properties": {
				"kind": {"type": "string", "enum": ["bone", "cube"]},
				"name": {"type": "string"},
				"children": {"type": "array", "items": {"$ref": "#/$defs/node"}}
			},
			"required": ["kind", "name"],
			"additionalProperties": false
		}
	}
}`

const texturePreflightResultSchema = `{
	"type": "object",
	"properties": {
		"ok": {"type": "boolean"},
		"issues": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"textureId": {"type": "string"},
					"severity": {"type": "string", "enum": ["info", "warning", "error"]},
					"message": {"type": "string"}
				},
				"required": ["textureId", "severity", "message"],
				"additionalProperties": false
			}
		}
	},
	"required": ["ok"],
	"additionalProperties": false
}`

var (
	payloadSchemas = map[Kind]*jsonschema.Schema{
		KindGltfConvert:      mustCompile("gltf-convert-payload.json", gltfConvertPayloadSchema),
		KindTexturePreflight: mustCompile("texture-preflight-payload.json", texturePreflightPayloadSchema),
	}
	resultSchemas = map[Kind]*jsonschema.Schema{
		KindGltfConvert:      mustCompile("gltf-convert-result.json", gltfConvertResultSchema),
		KindTexturePreflight: mustCompile("texture-preflight-result.json", texturePreflightResultSchema),
	}
)

func mustCompile(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("job: parse schema %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("job: add schema %s: %v", name, err))
	}
	sch, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("job: compile schema %s: %v", name, err))
	}
	return sch
}

// ValidateKind checks the kind against the closed set.
func ValidateKind(k Kind) error {
	if _, ok := payloadSchemas[k]; !ok {
		return fmt.Errorf("%w: %q (allowed: %v)", ErrUnsupportedKind, k, Kinds())
	}
	return nil
}

// NormalizePayload validates a submission payload against the kind's
// schema and returns a normalized copy with defaults applied. A nil
// payload is treated as the empty object.
func NormalizePayload(k Kind, payload map[string]any) (map[string]any, error) {
	if err := ValidateKind(k); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if err := validate(payloadSchemas[k], payload); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidPayload, k, err)
	}
	out := cloneMap(payload)
	switch k {
	case KindGltfConvert:
		setDefault(out, "format", "glb")
		setDefault(out, "includeTextures", true)
		setDefault(out, "scale", float64(1))
	case KindTexturePreflight:
		setDefault(out, "maxDimension", float64(4096))
	}
	return out, nil
}

// ValidateResult checks a completion result against the kind's schema.
func ValidateResult(k Kind, result map[string]any) error {
	sch, ok := resultSchemas[k]
	if !ok {
		return fmt.Errorf("%w: %q (allowed: %v)", ErrUnsupportedKind, k, Kinds())
	}
	if result == nil {
		result = map[string]any{}
	}
	if err := validate(sch, result); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidResult, k, err)
	}
	return nil
}

// validate round-trips the value through JSON so Go-native numeric types
// are seen the way the schema compiler expects them.
func validate(sch *jsonschema.Schema, v map[string]any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}
