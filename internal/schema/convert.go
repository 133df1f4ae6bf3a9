package schema

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/apifoundry/apibridge/internal/definition"
)

// jsonMediaType is the only media type whose body is flattened into
// top-level fields.
const jsonMediaType = "application/json"

// BuildInput produces the flattened invocation schema and the parameter
// mapping for one operation. Every declared parameter becomes a top-level
// property; a JSON object body has its top-level properties merged directly
// alongside them. Non-object and non-JSON bodies surface as a single opaque
// "body" field. Required fields from parameters and body are unioned.
// Predefined values are applied as schema-level defaults, global first, then
// per-tool.
func BuildInput(op definition.ParsedPath, global, perTool map[string]any) (*Schema, *ParameterMapping) {
	input := &Schema{
		Type:       "object",
		Properties: map[string]*Schema{},
	}
	mapping := &ParameterMapping{}
	var required []string

	for _, param := range op.Parameters {
		prop := Translate(param.Schema)
		if prop == nil {
			prop = &Schema{Type: "string"}
		}
		if param.Description != "" {
			prop.Description = param.Description
		}

		switch param.In {
		case "path":
			mapping.Path = append(mapping.Path, param.Name)
		case "query":
			mapping.Query = append(mapping.Query, param.Name)
			if param.Explode != nil && !*param.Explode {
				mapping.JoinedQuery = append(mapping.JoinedQuery, param.Name)
			}
		case "header":
			mapping.Header = append(mapping.Header, param.Name)
		case "cookie":
			mapping.Cookie = append(mapping.Cookie, param.Name)
		default:
			continue
		}

		input.Properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	if op.RequestBody != nil {
		required = append(required, mergeBody(op.RequestBody, input, mapping)...)
	}

	if len(required) > 0 {
		sort.Strings(required)
		input.Required = dedupe(required)
	}

	applyDefaults(input, global)
	applyDefaults(input, perTool)

	return input, mapping
}

// mergeBody folds the request body into the input schema and returns the
// required field names it contributes.
func mergeBody(rb *definition.ParsedRequestBody, input *Schema, mapping *ParameterMapping) []string {
	mediaType, ref := pickMediaType(rb.Content)
	if mediaType == "" {
		return nil
	}

	body := Translate(ref)
	if body == nil {
		body = &Schema{}
	}

	// Schemas that declare properties without type: "object" are still
	// object bodies in practice and flatten the same way.
	if mediaType == jsonMediaType && (body.Type == "object" || len(body.Properties) > 0) {
		for name, prop := range body.Properties {
			// A parameter with the same name keeps its single location;
			// the colliding body property is dropped.
			if _, exists := input.Properties[name]; exists {
				continue
			}
			input.Properties[name] = prop
		}
		mapping.Body = body
		return body.Required
	}

	input.Properties["body"] = body
	mapping.RawBody = true
	mapping.BodyMediaType = mediaType
	if rb.Required {
		return []string{"body"}
	}
	return nil
}

// pickMediaType prefers application/json, then the first media type in
// sorted order for deterministic output.
func pickMediaType(content map[string]*openapi3.SchemaRef) (string, *openapi3.SchemaRef) {
	if len(content) == 0 {
		return "", nil
	}
	if ref, ok := content[jsonMediaType]; ok {
		return jsonMediaType, ref
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], content[keys[0]]
}

// applyDefaults sets schema-level defaults on matching properties. Values
// targeting fields the schema does not declare are left to the runtime
// predefined-parameter merge.
func applyDefaults(input *Schema, values map[string]any) {
	for name, value := range values {
		if prop, ok := input.Properties[name]; ok {
			prop.Default = value
		}
	}
}

// Translate converts an OpenAPI schema into the flattened dialect. Arrays,
// objects, and the composition keywords are converted recursively; anything
// unrecognized is carried through verbatim. Reference cycles terminate with
// a bare type node.
func Translate(ref *openapi3.SchemaRef) *Schema {
	return translate(ref, map[*openapi3.Schema]bool{})
}

func translate(ref *openapi3.SchemaRef, seen map[*openapi3.Schema]bool) *Schema {
	if ref == nil || ref.Value == nil {
		return nil
	}
	src := ref.Value
	if seen[src] {
		return &Schema{Type: primaryType(src)}
	}
	seen[src] = true
	defer delete(seen, src)

	out := &Schema{
		Type:        primaryType(src),
		Format:      src.Format,
		Description: src.Description,
		Enum:        src.Enum,
		Default:     src.Default,
		Minimum:     src.Min,
		Maximum:     src.Max,
		MaxLength:   src.MaxLength,
		MaxItems:    src.MaxItems,
		Pattern:     src.Pattern,
	}
	if src.MinLength > 0 {
		minLength := src.MinLength
		out.MinLength = &minLength
	}
	if src.MinItems > 0 {
		minItems := src.MinItems
		out.MinItems = &minItems
	}

	if len(src.Properties) > 0 {
		out.Properties = make(map[string]*Schema, len(src.Properties))
		for name, propRef := range src.Properties {
			if prop := translate(propRef, seen); prop != nil {
				out.Properties[name] = prop
			}
		}
	}
	if len(src.Required) > 0 {
		out.Required = append([]string(nil), src.Required...)
	}
	if src.Items != nil {
		out.Items = translate(src.Items, seen)
	}
	if src.AdditionalProperties.Schema != nil {
		out.AdditionalProperties = translate(src.AdditionalProperties.Schema, seen)
	}

	out.AllOf = translateRefs(src.AllOf, seen)
	out.OneOf = translateRefs(src.OneOf, seen)
	out.AnyOf = translateRefs(src.AnyOf, seen)

	if len(src.Extensions) > 0 {
		out.Extra = make(map[string]any, len(src.Extensions))
		for k, v := range src.Extensions {
			out.Extra[k] = v
		}
	}

	return out
}

func translateRefs(refs openapi3.SchemaRefs, seen map[*openapi3.Schema]bool) []*Schema {
	if len(refs) == 0 {
		return nil
	}
	out := make([]*Schema, 0, len(refs))
	for _, ref := range refs {
		if s := translate(ref, seen); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// primaryType returns the first declared type, or "" when untyped.
func primaryType(s *openapi3.Schema) string {
	if s.Type != nil && len(*s.Type) > 0 {
		return (*s.Type)[0]
	}
	return ""
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || sorted[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
