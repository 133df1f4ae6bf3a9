// Package schema converts OpenAPI operation parameters and request bodies
// into one flattened invocation schema plus the parameter mapping needed to
// invert the flattening at call time.
package schema

import (
	"encoding/json"
)

// Schema is a JSON-Schema-like object. Recognized keywords are typed fields;
// everything else is preserved verbatim in Extra so exotic keywords survive
// the round trip without interpretation.
type Schema struct {
	Type                 string
	Format               string
	Description          string
	Enum                 []any
	Default              any
	Minimum              *float64
	Maximum              *float64
	MinLength            *uint64
	MaxLength            *uint64
	MinItems             *uint64
	MaxItems             *uint64
	Pattern              string
	Properties           map[string]*Schema
	Required             []string
	Items                *Schema
	AdditionalProperties *Schema
	AllOf                []*Schema
	OneOf                []*Schema
	AnyOf                []*Schema
	Extra                map[string]any
}

// MarshalJSON emits the recognized keywords plus the pass-through extras as
// one flat JSON object.
func (s *Schema) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Type != "" {
		out["type"] = s.Type
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	if s.MinLength != nil {
		out["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.MinItems != nil {
		out["minItems"] = *s.MinItems
	}
	if s.MaxItems != nil {
		out["maxItems"] = *s.MaxItems
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}
	if len(s.Properties) > 0 {
		out["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = s.Items
	}
	if s.AdditionalProperties != nil {
		out["additionalProperties"] = s.AdditionalProperties
	}
	if len(s.AllOf) > 0 {
		out["allOf"] = s.AllOf
	}
	if len(s.OneOf) > 0 {
		out["oneOf"] = s.OneOf
	}
	if len(s.AnyOf) > 0 {
		out["anyOf"] = s.AnyOf
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the typed fields and stores unrecognized keywords
// in Extra.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, target any) error {
		msg, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(msg, target)
	}

	if err := take("type", &s.Type); err != nil {
		return err
	}
	if err := take("format", &s.Format); err != nil {
		return err
	}
	if err := take("description", &s.Description); err != nil {
		return err
	}
	if err := take("enum", &s.Enum); err != nil {
		return err
	}
	if err := take("default", &s.Default); err != nil {
		return err
	}
	if err := take("minimum", &s.Minimum); err != nil {
		return err
	}
	if err := take("maximum", &s.Maximum); err != nil {
		return err
	}
	if err := take("minLength", &s.MinLength); err != nil {
		return err
	}
	if err := take("maxLength", &s.MaxLength); err != nil {
		return err
	}
	if err := take("minItems", &s.MinItems); err != nil {
		return err
	}
	if err := take("maxItems", &s.MaxItems); err != nil {
		return err
	}
	if err := take("pattern", &s.Pattern); err != nil {
		return err
	}
	if err := take("properties", &s.Properties); err != nil {
		return err
	}
	if err := take("required", &s.Required); err != nil {
		return err
	}
	if err := take("items", &s.Items); err != nil {
		return err
	}
	if err := take("additionalProperties", &s.AdditionalProperties); err != nil {
		return err
	}
	if err := take("allOf", &s.AllOf); err != nil {
		return err
	}
	if err := take("oneOf", &s.OneOf); err != nil {
		return err
	}
	if err := take("anyOf", &s.AnyOf); err != nil {
		return err
	}

	if len(raw) > 0 {
		s.Extra = make(map[string]any, len(raw))
		for k, msg := range raw {
			var v any
			if err := json.Unmarshal(msg, &v); err != nil {
				return err
			}
			s.Extra[k] = v
		}
	}
	return nil
}

// ParameterMapping records which flattened field belongs to which original
// HTTP location, and keeps the unflattened body schema needed to invert the
// flattening at call time.
type ParameterMapping struct {
	Path   []string `json:"path,omitempty"`
	Query  []string `json:"query,omitempty"`
	Header []string `json:"header,omitempty"`
	Cookie []string `json:"cookie,omitempty"`
	// JoinedQuery lists the query fields declared with explode: false;
	// their list values serialize comma-joined under a single key instead
	// of as repeated keys.
	JoinedQuery []string `json:"joinedQuery,omitempty"`
	// Body is the original, unflattened JSON body schema when the request
	// body was flattened into top-level fields.
	Body *Schema `json:"body,omitempty"`
	// RawBody marks an operation whose body is exposed as a single opaque
	// "body" field (non-object or non-JSON media type).
	RawBody bool `json:"rawBody,omitempty"`
	// BodyMediaType is the declared media type used for raw bodies.
	BodyMediaType string `json:"bodyMediaType,omitempty"`
}

// Location returns where a flattened field belongs: path, query, header,
// cookie, or body. "" means unmapped. Every field maps to at most one
// location.
func (m *ParameterMapping) Location(field string) string {
	for _, name := range m.Path {
		if name == field {
			return "path"
		}
	}
	for _, name := range m.Query {
		if name == field {
			return "query"
		}
	}
	for _, name := range m.Header {
		if name == field {
			return "header"
		}
	}
	for _, name := range m.Cookie {
		if name == field {
			return "cookie"
		}
	}
	if m.Body != nil {
		if _, ok := m.Body.Properties[field]; ok {
			return "body"
		}
	}
	return ""
}
