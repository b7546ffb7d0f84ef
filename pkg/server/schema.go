package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/programmer4yugal/buildchain/pkg/ledger"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaBaseURL    = "https://buildchain.dev/schemas/"
	genericSchema    = "generic"
	submissionSchema = "submission"
)

// SchemaSet validates request bodies before anything reaches the ledger.
type SchemaSet struct {
	schemas map[string]*jsonschema.Schema
}

// LoadSchemas compiles every embedded schema.
func LoadSchemas() (*SchemaSet, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+e.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("server: load schema %s: %w", e.Name(), err)
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}

	set := &SchemaSet{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		compiled, err := c.Compile(schemaBaseURL + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("server: compile schema %s: %w", name, err)
		}
		set.schemas[name] = compiled
	}
	return set, nil
}

// forCategory returns the category schema, falling back to the generic one.
func (s *SchemaSet) forCategory(c ledger.Category) *jsonschema.Schema {
	if sch, ok := s.schemas[string(c)]; ok {
		return sch
	}
	return s.schemas[genericSchema]
}

// decodeValidated reads a JSON body and checks it against sch. Numbers are
// kept as json.Number. On schema failure the individual messages are
// returned alongside the error.
func decodeValidated(r io.Reader, sch *jsonschema.Schema) (map[string]any, []string, error) {
	var doc any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return nil, nil, errors.New("malformed JSON: trailing data after object")
	}
	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, validationMessages(ve), err
		}
		return nil, nil, err
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, nil, errors.New("request body must be a JSON object")
	}
	return obj, nil, nil
}

func validationMessages(ve *jsonschema.ValidationError) []string {
	var msgs []string
	for _, e := range ve.BasicOutput().Errors {
		if e.Error == "" || strings.HasPrefix(e.Error, "doesn't validate with") {
			continue
		}
		loc := e.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		msgs = append(msgs, loc+": "+e.Error)
	}
	if len(msgs) == 0 {
		msgs = append(msgs, ve.Message)
	}
	return msgs
}
