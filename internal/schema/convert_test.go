package schema

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/apifoundry/apibridge/internal/definition"
)

func stringRef() *openapi3.SchemaRef {
	return openapi3.NewStringSchema().NewRef()
}

// --- BuildInput Tests ---

func TestBuildInput_ParameterLocations(t *testing.T) {
	op := definition.ParsedPath{
		Path:   "/tickets/{ticketId}",
		Method: "GET",
		Parameters: []definition.ParsedParameter{
			{Name: "ticketId", In: "path", Required: true, Schema: stringRef()},
			{Name: "page", In: "query", Schema: openapi3.NewIntegerSchema().NewRef()},
			{Name: "X-Trace", In: "header", Schema: stringRef()},
			{Name: "session", In: "cookie", Schema: stringRef()},
		},
	}

	input, mapping := BuildInput(op, nil, nil)

	if input.Type != "object" {
		t.Errorf("expected object schema, got %s", input.Type)
	}
	for _, name := range []string{"ticketId", "page", "X-Trace", "session"} {
		if input.Properties[name] == nil {
			t.Errorf("expected property %s", name)
		}
	}
	if input.Properties["page"].Type != "integer" {
		t.Errorf("expected integer page, got %s", input.Properties["page"].Type)
	}
	if len(input.Required) != 1 || input.Required[0] != "ticketId" {
		t.Errorf("expected required [ticketId], got %v", input.Required)
	}

	if mapping.Location("ticketId") != "path" {
		t.Errorf("expected ticketId in path, got %s", mapping.Location("ticketId"))
	}
	if mapping.Location("page") != "query" {
		t.Errorf("expected page in query, got %s", mapping.Location("page"))
	}
	if mapping.Location("X-Trace") != "header" {
		t.Errorf("expected X-Trace in header, got %s", mapping.Location("X-Trace"))
	}
	if mapping.Location("session") != "cookie" {
		t.Errorf("expected session in cookie, got %s", mapping.Location("session"))
	}
}

func TestBuildInput_ExplodeFalseRecordedForQuery(t *testing.T) {
	exploded := true
	joined := false

	op := definition.ParsedPath{
		Path:   "/events",
		Method: "GET",
		Parameters: []definition.ParsedParameter{
			{Name: "category", In: "query", Explode: &joined, Schema: openapi3.NewArraySchema().NewRef()},
			{Name: "tag", In: "query", Explode: &exploded, Schema: openapi3.NewArraySchema().NewRef()},
			{Name: "page", In: "query", Schema: openapi3.NewIntegerSchema().NewRef()},
		},
	}

	_, mapping := BuildInput(op, nil, nil)

	if len(mapping.JoinedQuery) != 1 || mapping.JoinedQuery[0] != "category" {
		t.Errorf("expected only explode:false fields joined, got %v", mapping.JoinedQuery)
	}
	if len(mapping.Query) != 3 {
		t.Errorf("expected all three query fields mapped, got %v", mapping.Query)
	}
}

func TestBuildInput_FlattensJSONObjectBody(t *testing.T) {
	body := openapi3.NewObjectSchema()
	body.Properties = map[string]*openapi3.SchemaRef{
		"name": stringRef(),
		"date": openapi3.NewDateTimeSchema().NewRef(),
	}
	body.Required = []string{"name"}

	op := definition.ParsedPath{
		Path:   "/special-events",
		Method: "POST",
		RequestBody: &definition.ParsedRequestBody{
			Required: true,
			Content:  map[string]*openapi3.SchemaRef{"application/json": body.NewRef()},
		},
	}

	input, mapping := BuildInput(op, nil, nil)

	if input.Properties["name"] == nil || input.Properties["date"] == nil {
		t.Fatal("expected body properties flattened to top level")
	}
	if input.Properties["body"] != nil {
		t.Error("flattened body must not produce an opaque body field")
	}
	if mapping.RawBody {
		t.Error("structured body must not set RawBody")
	}
	if mapping.Body == nil {
		t.Fatal("expected mapping.Body for structured body")
	}
	if len(input.Required) != 1 || input.Required[0] != "name" {
		t.Errorf("expected required [name], got %v", input.Required)
	}
	if mapping.Location("name") != "body" {
		t.Errorf("expected name in body, got %s", mapping.Location("name"))
	}
}

func TestBuildInput_FlattensUntypedObjectBody(t *testing.T) {
	// No declared type, just properties. Still an object body.
	body := &openapi3.Schema{
		Properties: map[string]*openapi3.SchemaRef{
			"name":     stringRef(),
			"location": stringRef(),
		},
		Required: []string{"name"},
	}

	op := definition.ParsedPath{
		Path:   "/special-events",
		Method: "POST",
		RequestBody: &definition.ParsedRequestBody{
			Required: true,
			Content:  map[string]*openapi3.SchemaRef{"application/json": body.NewRef()},
		},
	}

	input, mapping := BuildInput(op, nil, nil)

	if input.Properties["name"] == nil || input.Properties["location"] == nil {
		t.Fatal("expected untyped object body flattened to top level")
	}
	if input.Properties["body"] != nil {
		t.Error("untyped object body must not produce an opaque body field")
	}
	if mapping.RawBody {
		t.Error("untyped object body must not set RawBody")
	}
	if mapping.Body == nil {
		t.Fatal("expected mapping.Body for untyped object body")
	}
	if len(input.Required) != 1 || input.Required[0] != "name" {
		t.Errorf("expected required [name], got %v", input.Required)
	}
}

func TestBuildInput_BodyCollisionParameterWins(t *testing.T) {
	body := openapi3.NewObjectSchema()
	body.Properties = map[string]*openapi3.SchemaRef{
		"page": openapi3.NewObjectSchema().NewRef(),
	}

	op := definition.ParsedPath{
		Path:   "/search",
		Method: "POST",
		Parameters: []definition.ParsedParameter{
			{Name: "page", In: "query", Schema: openapi3.NewIntegerSchema().NewRef()},
		},
		RequestBody: &definition.ParsedRequestBody{
			Content: map[string]*openapi3.SchemaRef{"application/json": body.NewRef()},
		},
	}

	input, mapping := BuildInput(op, nil, nil)

	if got := input.Properties["page"].Type; got != "integer" {
		t.Errorf("expected parameter to win collision, got type %s", got)
	}
	if mapping.Location("page") != "query" {
		t.Errorf("expected page to stay in query, got %s", mapping.Location("page"))
	}
}

func TestBuildInput_OpaqueBodyForNonJSON(t *testing.T) {
	op := definition.ParsedPath{
		Path:   "/upload",
		Method: "POST",
		RequestBody: &definition.ParsedRequestBody{
			Required: true,
			Content:  map[string]*openapi3.SchemaRef{"text/plain": stringRef()},
		},
	}

	input, mapping := BuildInput(op, nil, nil)

	if input.Properties["body"] == nil {
		t.Fatal("expected opaque body field")
	}
	if !mapping.RawBody {
		t.Error("expected RawBody for non-JSON content")
	}
	if mapping.BodyMediaType != "text/plain" {
		t.Errorf("expected media type text/plain, got %s", mapping.BodyMediaType)
	}
	if len(input.Required) != 1 || input.Required[0] != "body" {
		t.Errorf("expected required [body], got %v", input.Required)
	}
}

func TestBuildInput_PredefinedBecomeDefaults(t *testing.T) {
	op := definition.ParsedPath{
		Path:   "/museum-hours",
		Method: "GET",
		Parameters: []definition.ParsedParameter{
			{Name: "page", In: "query", Schema: openapi3.NewIntegerSchema().NewRef()},
			{Name: "limit", In: "query", Schema: openapi3.NewIntegerSchema().NewRef()},
		},
	}

	global := map[string]any{"page": 1, "organizer": "museum-bot"}
	perTool := map[string]any{"limit": 10, "page": 2}

	input, _ := BuildInput(op, global, perTool)

	// Per-tool value wins over global for the same field.
	if got := input.Properties["page"].Default; got != 2 {
		t.Errorf("expected page default 2, got %v", got)
	}
	if got := input.Properties["limit"].Default; got != 10 {
		t.Errorf("expected limit default 10, got %v", got)
	}
	// Values for undeclared fields never invent properties.
	if input.Properties["organizer"] != nil {
		t.Error("predefined value must not add a property the schema does not declare")
	}
}

func TestBuildInput_RequiredSortedAndDeduped(t *testing.T) {
	body := openapi3.NewObjectSchema()
	body.Properties = map[string]*openapi3.SchemaRef{
		"zeta":  stringRef(),
		"alpha": stringRef(),
	}
	body.Required = []string{"zeta", "alpha"}

	op := definition.ParsedPath{
		Path:   "/things/{id}",
		Method: "POST",
		Parameters: []definition.ParsedParameter{
			{Name: "id", In: "path", Required: true, Schema: stringRef()},
		},
		RequestBody: &definition.ParsedRequestBody{
			Content: map[string]*openapi3.SchemaRef{"application/json": body.NewRef()},
		},
	}

	input, _ := BuildInput(op, nil, nil)

	want := []string{"alpha", "id", "zeta"}
	if len(input.Required) != len(want) {
		t.Fatalf("expected required %v, got %v", want, input.Required)
	}
	for i, name := range want {
		if input.Required[i] != name {
			t.Errorf("expected required %v, got %v", want, input.Required)
			break
		}
	}
}

// --- Translate Tests ---

func TestTranslate_NestedStructures(t *testing.T) {
	item := openapi3.NewStringSchema()
	item.Enum = []any{"general", "member"}

	array := openapi3.NewArraySchema()
	array.Items = item.NewRef()
	array.MinItems = 1

	obj := openapi3.NewObjectSchema()
	obj.Properties = map[string]*openapi3.SchemaRef{"categories": array.NewRef()}

	out := Translate(obj.NewRef())
	if out.Type != "object" {
		t.Fatalf("expected object, got %s", out.Type)
	}
	cats := out.Properties["categories"]
	if cats == nil || cats.Type != "array" {
		t.Fatal("expected array property categories")
	}
	if cats.MinItems == nil || *cats.MinItems != 1 {
		t.Error("expected minItems 1")
	}
	if cats.Items == nil || len(cats.Items.Enum) != 2 {
		t.Error("expected item enum carried through")
	}
}

func TestTranslate_CycleTerminates(t *testing.T) {
	node := openapi3.NewObjectSchema()
	node.Properties = map[string]*openapi3.SchemaRef{
		"child": {Value: node},
	}

	out := Translate(node.NewRef())
	if out == nil {
		t.Fatal("expected schema for cyclic input")
	}
	child := out.Properties["child"]
	if child == nil || child.Type != "object" {
		t.Fatal("expected cycle to terminate with a bare type node")
	}
	if child.Properties != nil {
		t.Error("cycle node must not recurse into properties")
	}
}

func TestTranslate_ExtensionsCarriedThrough(t *testing.T) {
	s := openapi3.NewStringSchema()
	s.Extensions = map[string]any{"x-internal": true}

	out := Translate(s.NewRef())
	if out.Extra["x-internal"] != true {
		t.Error("expected vendor extension carried into Extra")
	}
}

// --- Generated Schema Validity Tests ---

func TestBuildInput_ProducesValidJSONSchema(t *testing.T) {
	body := openapi3.NewObjectSchema()
	body.Properties = map[string]*openapi3.SchemaRef{
		"name":     stringRef(),
		"capacity": openapi3.NewIntegerSchema().NewRef(),
	}
	body.Required = []string{"name"}

	op := definition.ParsedPath{
		Path:   "/special-events/{eventId}",
		Method: "PUT",
		Parameters: []definition.ParsedParameter{
			{Name: "eventId", In: "path", Required: true, Schema: stringRef()},
			{Name: "dryRun", In: "query", Schema: openapi3.NewBoolSchema().NewRef()},
		},
		RequestBody: &definition.ParsedRequestBody{
			Required: true,
			Content:  map[string]*openapi3.SchemaRef{"application/json": body.NewRef()},
		},
	}

	input, _ := BuildInput(op, map[string]any{"dryRun": false}, nil)

	data, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("input.json", bytes.NewReader(data)); err != nil {
		t.Fatalf("AddResource failed: %v", err)
	}
	compiled, err := compiler.Compile("input.json")
	if err != nil {
		t.Fatalf("generated schema does not compile: %v", err)
	}

	valid := map[string]any{"eventId": "evt-1", "name": "Night Tour", "capacity": 30.0}
	if err := compiled.Validate(valid); err != nil {
		t.Errorf("expected valid instance to pass: %v", err)
	}

	invalid := map[string]any{"eventId": "evt-1", "capacity": "thirty"}
	if err := compiled.Validate(invalid); err == nil {
		t.Error("expected invalid instance to fail validation")
	}
}
