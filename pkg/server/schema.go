package server

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/process_request.schema.json
var processRequestSchema string

const processRequestSchemaURL = "https://aegis.schemas.local/api/v1/process_request.schema.json"

// compileProcessSchema compiles the process request schema once at startup.
func compileProcessSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(processRequestSchemaURL, strings.NewReader(processRequestSchema)); err != nil {
		return nil, fmt.Errorf("failed to load process request schema: %w", err)
	}
	schema, err := c.Compile(processRequestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile process request schema: %w", err)
	}
	return schema, nil
}

// schemaProblem reduces a validation error to the first leaf cause: the
// offending field and a message safe to return to the caller.
func schemaProblem(err error) (param, message string) {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "", "request body does not match the schema"
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return strings.TrimPrefix(ve.InstanceLocation, "/"), ve.Message
}
