package registry

import (
	"encoding/json"
	"testing"
)

type exampleArgs struct {
	Query string `json:"query" jsonschema:"required,description=search text"`
	Limit int    `json:"limit" jsonschema:"description=max results"`
}

func TestGenerateSchemaProducesValidJSON(t *testing.T) {
	raw, err := GenerateSchema(&exampleArgs{})
	if err != nil {
		t.Fatalf("GenerateSchema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("GenerateSchema produced invalid JSON: %v", err)
	}
	if doc["type"] != "object" {
		t.Errorf("expected object schema, got %v", doc["type"])
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties map, got %T", doc["properties"])
	}
	if _, ok := props["query"]; !ok {
		t.Error("expected query property in generated schema")
	}
	if _, ok := props["limit"]; !ok {
		t.Error("expected limit property in generated schema")
	}
}

func TestGenerateSchemaMarksRequiredFields(t *testing.T) {
	raw, err := GenerateSchema(&exampleArgs{})
	if err != nil {
		t.Fatalf("GenerateSchema: %v", err)
	}
	var doc struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	found := false
	for _, r := range doc.Required {
		if r == "query" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected query to be required, got required=%v", doc.Required)
	}
}

func TestGeneratedSchemaRoundTripsThroughValidateArgs(t *testing.T) {
	schema, err := GenerateSchema(&exampleArgs{})
	if err != nil {
		t.Fatalf("GenerateSchema: %v", err)
	}
	tool := &ToolDef{Name: "example_tool", ParametersSchema: schema, Dispatch: dummyDispatch}
	r := New()
	if err := r.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := ValidateArgs(tool, `{"query":"hello"}`); err != nil {
		t.Errorf("expected valid args to pass, got %v", err)
	}
	if err := ValidateArgs(tool, `{}`); err == nil {
		t.Error("expected missing required field to fail validation")
	}
}
