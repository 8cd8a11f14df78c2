package seal

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed seal.schema.json
var schemaJSON []byte

const schemaURL = "https://verum.local/schema/seal-v1.schema.json"

// ErrInvalidSeal reports a serialized seal that does not match the schema.
var ErrInvalidSeal = errors.New("seal: invalid seal document")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Encode writes the seal as indented JSON. Map keys are emitted sorted.
func Encode(w io.Writer, s *Seal) error {
	if s == nil {
		return ErrNilSeal
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Marshal returns the JSON encoding of the seal.
func Marshal(s *Seal) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses and schema-validates a serialized seal.
func Decode(data []byte) (*Seal, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeal, err)
	}
	if err := sch.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeal, err)
	}

	var s Seal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeal, err)
	}
	if s.MetadataKV == nil {
		s.MetadataKV = map[string]string{}
	}
	return &s, nil
}

// Read decodes a seal from r.
func Read(r io.Reader) (*Seal, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("seal: read: %w", err)
	}
	return Decode(data)
}
