package schema

import (
	"encoding/json"
	"testing"
)

func TestSchema_ExtraSurvivesRoundTrip(t *testing.T) {
	in := []byte(`{"type":"string","pattern":"^[a-z]+$","x-nullable":true,"contentEncoding":"base64"}`)

	var s Schema
	if err := json.Unmarshal(in, &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s.Type != "string" || s.Pattern != "^[a-z]+$" {
		t.Errorf("recognized keywords not decoded: %+v", s)
	}
	if s.Extra["x-nullable"] != true {
		t.Error("expected x-nullable preserved in Extra")
	}
	if s.Extra["contentEncoding"] != "base64" {
		t.Error("expected contentEncoding preserved in Extra")
	}

	out, err := json.Marshal(&s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["x-nullable"] != true || decoded["contentEncoding"] != "base64" {
		t.Errorf("extras lost on marshal: %v", decoded)
	}
}

func TestParameterMapping_LocationCoversBody(t *testing.T) {
	m := &ParameterMapping{
		Path:  []string{"id"},
		Query: []string{"page"},
		Body: &Schema{
			Type:       "object",
			Properties: map[string]*Schema{"name": {Type: "string"}},
		},
	}

	if m.Location("id") != "path" {
		t.Errorf("expected path, got %s", m.Location("id"))
	}
	if m.Location("name") != "body" {
		t.Errorf("expected body, got %s", m.Location("name"))
	}
	if m.Location("unknown") != "" {
		t.Errorf("expected unmapped, got %s", m.Location("unknown"))
	}
}
