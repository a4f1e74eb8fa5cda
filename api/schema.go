package api

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const maxBodyBytes = 1 << 20

// Request body schemas
const (
	schemaSavedSearch = "saved_search"
	schemaPreference  = "preference"
	schemaRunSearch   = "run_search"
	schemaCommand     = "command"
)

// validator holds the compiled request body schemas keyed by file name
type validator struct {
	schemas map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	files, err := fs.Glob(schemaFS, "schemas/*.json")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		f, err := schemaFS.Open(file)
		if err != nil {
			return nil, err
		}
		err = compiler.AddResource(file, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("add schema %s: %w", file, err)
		}
	}

	v := &validator{schemas: make(map[string]*jsonschema.Schema, len(files))}
	for _, file := range files {
		schema, err := compiler.Compile(file)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		v.schemas[strings.TrimSuffix(path.Base(file), ".json")] = schema
	}
	return v, nil
}

// decode reads the request body, checks it against the named schema and unmarshals it
// into dst. An empty body is validated as {}.
func (v *validator) decode(r *http.Request, name string, dst any) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("schema %q not registered", name)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &requestError{msg: "could not read request body"}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return &requestError{msg: "request body is not valid JSON"}
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &requestError{msg: "invalid request: " + strings.Join(leafMessages(ve), "; ")}
		}
		return err
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &requestError{msg: "invalid request: " + err.Error()}
	}
	return nil
}

func leafMessages(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, leafMessages(c)...)
	}
	return out
}

// requestError is a client mistake reported as 400
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }
