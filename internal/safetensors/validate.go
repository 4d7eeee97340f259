package safetensors

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var headerSchema []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("safetensors-header.json", bytes.NewReader(headerSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("safetensors-header.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// Validate checks that the header is a JSON object of tensor descriptors with
// an optional string-valued __metadata__ entry.
func (h Header) Validate() error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(h.Raw, &doc); err != nil {
		return fmt.Errorf("decode header json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("header does not match schema: %w", err)
	}
	return nil
}
