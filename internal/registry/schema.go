package registry

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaReflector produces the parameters_schema text for a tool's
// dispatch-argument struct, so a built-in tool's JSON schema and its
// Go argument type can never drift apart. Independent from the
// santhosh-tekuri/jsonschema/v5 validator Register/ValidateArgs use to
// check a model's arguments at dispatch time: this one only generates
// schema documents, the other only compiles and evaluates them.
var schemaReflector = &jsonschema.Reflector{
	DoNotReference:             true,
	ExpandedStruct:             true,
	AllowAdditionalProperties:  false,
	RequiredFromJSONSchemaTags: true,
}

// GenerateSchema reflects v (a pointer to a zero-valued argument
// struct) into a JSON-schema document suitable for ToolDef's
// ParametersSchema field.
func GenerateSchema(v any) (json.RawMessage, error) {
	schema := schemaReflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("registry: generate schema: %w", err)
	}
	return json.RawMessage(data), nil
}
